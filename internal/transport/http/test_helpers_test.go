package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/relaychat/relaychat-server/internal/auth"
	"github.com/relaychat/relaychat-server/internal/config"
	"github.com/relaychat/relaychat-server/internal/core"
	"github.com/relaychat/relaychat-server/internal/store/sqlite"
)

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.SQLiteStore) {
	return newTestServerAuthTimeout(t, 2*time.Second)
}

func newTestServerAuthTimeout(t *testing.T, authTimeout time.Duration) (*httptest.Server, *sqlite.SQLiteStore) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "relaychat-test",
		Audience: "relaychat-clients",
		TTL:      time.Hour,
	})

	registry := core.NewRegistry()
	membership := core.NewMembership(st, &logger)
	presence := core.NewPresence(registry, st, &logger)
	router := core.NewRouter(registry, membership, presence, st, authService, &logger, 0)

	cfg := config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
		AuthTimeout:       authTimeout,
		HistoryLimit:      50,
	}

	server := NewServer(router, authService, st, cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts, st
}

// doJSON performs a JSON request against the test server, with an optional
// bearer token, and decodes the response body into out when non-nil.
func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body, out any) int {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.URL+path, reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, out), "body: %s", raw)
		}
	}
	return resp.StatusCode
}

// registerUser registers a user through the REST edge and returns its token
// and id.
func registerUser(t *testing.T, ts *httptest.Server, username string) (string, int64) {
	t.Helper()

	var authResp AuthResponse
	status := doJSON(t, ts, http.MethodPost, "/api/register", "", RegisterRequest{
		Username: username,
		Password: "secret1",
	}, &authResp)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, authResp.Token)

	var me UserResponse
	status = doJSON(t, ts, http.MethodGet, "/api/me", authResp.Token, nil, &me)
	require.Equal(t, http.StatusOK, status)
	return authResp.Token, me.ID
}
