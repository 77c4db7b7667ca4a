package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/session"
	"parley/cmd/internal/chatlog"
	"parley/cmd/internal/realtime"
)

func newTestServer(t *testing.T, mutate func(*Config)) *httptest.Server {
	t.Helper()

	log := slog.New(slog.DiscardHandler)
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	sessions, err := session.NewMemoryStore(session.DefaultConfig())
	require.NoError(t, err)

	h, err := NewHandler(log, cfg,
		identity.NewMemoryStore(),
		sessions,
		chatlog.NewMemoryStore(),
		realtime.NewHub(log, 8),
		WithArgon2Params(identity.TestArgon2Params()),
	)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func registerUser(t *testing.T, srv *httptest.Server, username, password string) authResponse {
	t.Helper()

	resp := doJSON(t, http.MethodPost, srv.URL+"/auth/register", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[authResponse](t, resp)
}

func TestRegisterLoginLogoutFlow(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)

	reg := registerUser(t, srv, "Alice", "hunter2hunter2")
	assert.Equal(t, "alice", reg.User.Username)
	assert.NotEmpty(t, reg.Session.Token)

	// Login with the original (un-normalized) spelling.
	resp := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"username": "ALICE",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeBody[authResponse](t, resp)
	assert.NotEqual(t, reg.Session.Token, login.Session.Token)

	// Authenticated identity echo.
	resp = doJSON(t, http.MethodGet, srv.URL+"/me", login.Session.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decodeBody[meResponse](t, resp)
	assert.Equal(t, "alice", me.User.Username)

	// Logout kills exactly this session.
	resp = doJSON(t, http.MethodPost, srv.URL+"/auth/logout", login.Session.Token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/me", login.Session.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// The registration session is still alive.
	resp = doJSON(t, http.MethodGet, srv.URL+"/me", reg.Session.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	registerUser(t, srv, "alice", "hunter2hunter2")

	cases := []struct {
		name     string
		username string
		password string
		status   int
	}{
		{name: "duplicate username", username: "ALICE", password: "hunter2hunter2", status: http.StatusConflict},
		{name: "username too short", username: "a", password: "hunter2hunter2", status: http.StatusBadRequest},
		{name: "bad charset", username: "al ice", password: "hunter2hunter2", status: http.StatusBadRequest},
		{name: "password too short", username: "bob", password: "short", status: http.StatusBadRequest},
		{name: "missing password", username: "bob", password: "", status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, srv.URL+"/auth/register", "", map[string]string{
				"username": tc.username,
				"password": tc.password,
			})
			assert.Equal(t, tc.status, resp.StatusCode)
			resp.Body.Close()
		})
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	registerUser(t, srv, "alice", "hunter2hunter2")

	resp := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"username": "alice",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Unknown user answers identically to a bad password.
	resp = doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{
		"username": "nobody",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestMessagesPostAndRead(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	auth := registerUser(t, srv, "alice", "hunter2hunter2")
	token := auth.Session.Token

	resp := doJSON(t, http.MethodPost, srv.URL+"/messages", token, map[string]string{"text": "  hello world  "})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	posted := decodeBody[chatlog.Message](t, resp)
	assert.Equal(t, int64(1), posted.ID)
	assert.Equal(t, "alice", posted.Username)
	assert.Equal(t, "hello world", posted.Text)

	resp = doJSON(t, http.MethodPost, srv.URL+"/messages", token, map[string]string{"text": "second"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Full history from the beginning.
	resp = doJSON(t, http.MethodGet, srv.URL+"/messages?since=0", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[messagesResponse](t, resp)
	require.Len(t, list.Messages, 2)
	assert.Equal(t, int64(1), list.Messages[0].ID)
	assert.Equal(t, int64(2), list.Messages[1].ID)

	// Resume after a cursor.
	resp = doJSON(t, http.MethodGet, srv.URL+"/messages?since=1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tail := decodeBody[messagesResponse](t, resp)
	require.Len(t, tail.Messages, 1)
	assert.Equal(t, int64(2), tail.Messages[0].ID)

	// No cursor: the latest tail.
	resp = doJSON(t, http.MethodGet, srv.URL+"/messages?limit=1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	latest := decodeBody[messagesResponse](t, resp)
	require.Len(t, latest.Messages, 1)
	assert.Equal(t, int64(2), latest.Messages[0].ID)
}

func TestMessagesValidation(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	auth := registerUser(t, srv, "alice", "hunter2hunter2")
	token := auth.Session.Token

	resp := doJSON(t, http.MethodPost, srv.URL+"/messages", token, map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/messages?since=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/messages?limit=-1", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestMessagesPostRateLimited(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(c *Config) { c.PostRateEvents = 2 })
	auth := registerUser(t, srv, "alice", "hunter2hunter2")
	token := auth.Session.Token

	for i := 0; i < 2; i++ {
		resp := doJSON(t, http.MethodPost, srv.URL+"/messages", token, map[string]string{"text": "spam"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/messages", token, map[string]string{"text": "spam"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()
}

func TestPresence(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	auth := registerUser(t, srv, "alice", "hunter2hunter2")

	resp := doJSON(t, http.MethodGet, srv.URL+"/presence", auth.Session.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	presence := decodeBody[presenceResponse](t, resp)
	assert.Equal(t, 0, presence.Online)

	resp = doJSON(t, http.MethodGet, srv.URL+"/presence", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
