package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"parley/cmd/internal/chatlog"
)

const (
	wsSubprotocolV1 = "parley.stream.v1"

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// TokenValidator resolves a bearer token to a username.
// Satisfied by the session store.
type TokenValidator interface {
	Validate(ctx context.Context, now time.Time, token string) (string, error)
}

// GatewayConfig tunes the WebSocket gateway. Zero values take the defaults.
type GatewayConfig struct {
	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout time.Duration

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// Dev-only knob for websocket.Accept TLS verification; not an origin policy.
	DevInsecure bool
}

// DefaultGatewayConfig returns the secure-by-default gateway settings.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:    true,
		AllowedOrigins:    splitCSV(wsDefaultAllowedOrigins),
		WriteTimeout:      wsDefaultWriteTimeout,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
	}
}

// WSGateway is the WebSocket entrypoint for the live message stream.
//
// It authenticates the token BEFORE upgrading, enforces origin policy, runs
// heartbeats with a failure budget, and drives one DeliverySession per
// connection over the socket.
type WSGateway struct {
	log      *slog.Logger
	hub      *Hub
	store    chatlog.Store
	sessions TokenValidator

	cfg GatewayConfig

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default; cross-origin needs OriginPatterns.
	originPatterns []string
}

// NewWSGateway constructs a gateway.
func NewWSGateway(log *slog.Logger, hub *Hub, store chatlog.Store, sessions TokenValidator, cfg GatewayConfig) *WSGateway {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = wsDefaultWriteTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = heartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = heartbeatTimeout
	}

	return &WSGateway{
		log:      log,
		hub:      hub,
		store:    store,
		sessions: sessions,
		cfg:      cfg,

		// websocket.Accept enforces its own origin policy; derive its host
		// patterns from the allowlist so the two layers agree.
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
	}
}

// ServeHTTP adapter so the gateway can be mounted as an http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// streamEvent is the wire frame sent to clients.
type streamEvent struct {
	Type    string           `json:"type"`
	Message *chatlog.Message `json:"message,omitempty"`
}

// HandleWS authenticates, upgrades, and runs the delivery loop for one client.
//
// Auth is carried in the "token" query parameter because browser WebSocket
// clients cannot set an Authorization header. The optional "since" parameter
// resumes delivery after the given message id.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	username, err := g.sessions.Validate(r.Context(), time.Now().UTC(), token)
	if err != nil {
		g.log.Info("ws.reject.token", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	lastSeenID := int64(-1)
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		lastSeenID = n
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	sub := g.hub.Subscribe(username)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. Unsubscribing before Close keeps fanout safe.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unsubscribe(sub.ID)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	g.log.Info("ws.connect", "subscriber_id", sub.ID, "username", username, "since", lastSeenID)

	// The client never sends application frames; the read pump exists to
	// surface peer close and to service control frames.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)

		for {
			_, _, err := conn.Read(ctx)
			if err == nil {
				continue
			}
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			default:
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			return
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "subscriber_id", sub.ID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	sess := NewDeliverySession(g.log, g.store, g.hub, sub, lastSeenID)
	sink := &wsSink{conn: conn, timeout: g.cfg.WriteTimeout}

	if err := sess.Run(ctx, sink); err != nil && !errors.Is(err, context.Canceled) {
		g.log.Info("ws.session.end", "subscriber_id", sub.ID, "err", err)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-readDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// wsSink writes stream events over the socket with a per-write deadline.
type wsSink struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (s *wsSink) SendMessage(parent context.Context, msg chatlog.Message) error {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	b, err := json.Marshal(streamEvent{Type: "message", Message: &msg})
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using
	// filepath.Match patterns; only hosts from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
