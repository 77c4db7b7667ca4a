package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/session"
	"parley/cmd/internal/chatlog"
	"parley/cmd/internal/metrics"
	"parley/cmd/internal/realtime"
)

// Handler wires the HTTP endpoints to identity, session, log, and hub.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	sessions session.Store
	messages chatlog.Store
	hub      *realtime.Hub

	argon identity.Argon2Params

	// Dummy hash for timing-resistant login checks.
	dummyHash string

	mu       sync.Mutex
	limiters map[string]*realtime.RateLimiter
}

// HandlerOption configures optional Handler behavior.
type HandlerOption func(*Handler)

// WithArgon2Params overrides the password hashing cost (tests use weak params).
func WithArgon2Params(p identity.Argon2Params) HandlerOption {
	return func(h *Handler) { h.argon = p }
}

// NewHandler constructs the API handler.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, sessions session.Store, messages chatlog.Store, hub *realtime.Hub, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil || sessions == nil || messages == nil || hub == nil {
		return nil, errors.New("api: missing dependency")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		messages: messages,
		hub:      hub,
		argon:    identity.DefaultArgon2Params(),
		limiters: make(map[string]*realtime.RateLimiter),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	if hash, err := identity.HashPassword("dummy-password-for-timing-only", h.argon); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires the API routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/me", h.handleMe)
	mux.HandleFunc("/messages", h.handleMessages)
	mux.HandleFunc("/presence", h.handlePresence)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	username, err := identity.ValidateUsername(req.Username)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_username", "username must be 2-24 characters of a-z, 0-9 and _")
		return
	}
	if err := identity.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_password", "password must be 8-128 characters")
		return
	}

	hash, err := identity.HashPassword(req.Password, h.argon)
	if err != nil {
		h.log.Error("api.register.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	user := identity.User{
		ID:           identity.NewUserID(now),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if err := h.users.Create(ctx, user); err != nil {
		if identity.IsConflict(err) {
			writeError(w, http.StatusConflict, "username_taken", "username already taken")
			return
		}
		h.log.Error("api.register.create.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	sess, err := h.sessions.Issue(ctx, now, user.Username)
	if err != nil {
		h.log.Error("api.register.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("api.register", "username", user.Username)
	writeJSON(w, http.StatusCreated, authResponse{
		User:    toUserResponse(user),
		Session: toSessionResponse(sess),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	username := identity.NormalizeUsername(req.Username)

	user, err := h.users.GetByUsername(ctx, username)
	if err != nil {
		// Timing resistance: perform a dummy verify when the user is missing.
		if h.dummyHash != "" {
			_, _ = identity.VerifyPassword(req.Password, h.dummyHash)
		}
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	ok, err := identity.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	sess, err := h.sessions.Issue(ctx, now, user.Username)
	if err != nil {
		h.log.Error("api.login.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("api.login", "username", user.Username)
	writeJSON(w, http.StatusOK, authResponse{
		User:    toUserResponse(user),
		Session: toSessionResponse(sess),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	// Revoke is idempotent: logging out an already dead token still succeeds.
	if err := h.sessions.Revoke(r.Context(), token); err != nil {
		h.log.Error("api.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	username, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetByUsername(r.Context(), username)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "not_found", "user not found")
			return
		}
		h.log.Error("api.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(user)})
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleMessagesGet(w, r)
	case http.MethodPost:
		h.handleMessagesPost(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleMessagesGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAuth(w, r); !ok {
		return
	}

	q := r.URL.Query()

	limit := chatlog.DefaultRangeLimit
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
			return
		}
		limit = n
	}

	ctx := r.Context()

	var since int64 = -1
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid since")
			return
		}
		since = n
	}

	msgs, err := withRetry(ctx, h.cfg.RetryAttempts, h.cfg.RetryBackoff, func() ([]chatlog.Message, error) {
		if since < 0 {
			return h.messages.Latest(ctx, limit)
		}
		return h.messages.Range(ctx, since, limit)
	})
	if err != nil {
		h.log.Error("api.messages.get.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "please retry later")
		return
	}

	if msgs == nil {
		msgs = []chatlog.Message{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs})
}

func (h *Handler) handleMessagesPost(w http.ResponseWriter, r *http.Request) {
	username, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	now := time.Now().UTC()
	if !h.senderLimiter(username).Allow(now) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many messages")
		return
	}

	ctx := r.Context()
	msg, err := withRetry(ctx, h.cfg.RetryAttempts, h.cfg.RetryBackoff, func() (chatlog.Message, error) {
		return h.messages.Append(ctx, username, req.Text)
	})
	if err != nil {
		if chatlog.IsInvalidMessage(err) {
			writeError(w, http.StatusBadRequest, "invalid_message", "message text is empty or too long")
			return
		}
		h.log.Error("api.messages.post.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "please retry later")
		return
	}

	metrics.MessagesAppended.Inc()
	h.hub.Publish(msg)

	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handlePresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.requireAuth(w, r); !ok {
		return
	}

	writeJSON(w, http.StatusOK, presenceResponse{Online: h.hub.Count()})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	username, err := h.sessions.Validate(r.Context(), time.Now().UTC(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
		return "", false
	}
	return username, true
}

func (h *Handler) senderLimiter(username string) *realtime.RateLimiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	rl, ok := h.limiters[username]
	if !ok {
		rl = realtime.NewRateLimiter(h.cfg.PostRateEvents, h.cfg.PostRateWindow)
		h.limiters[username] = rl
	}
	return rl
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}

func toSessionResponse(s session.Session) sessionResponse {
	return sessionResponse{Token: s.Token, ExpiresAt: s.ExpiresAt}
}
