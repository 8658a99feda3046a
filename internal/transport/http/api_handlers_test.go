package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var resp AuthResponse
	status := doJSON(t, ts, http.MethodPost, "/api/register", "", RegisterRequest{
		Username:    "alice",
		DisplayName: "Alice A",
		Password:    "secret1",
	}, &resp)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, resp.Token)

	// Duplicate username conflicts.
	var errResp ErrorResponse
	status = doJSON(t, ts, http.MethodPost, "/api/register", "", RegisterRequest{
		Username: "alice",
		Password: "secret1",
	}, &errResp)
	assert.Equal(t, http.StatusConflict, status)

	// Binding rejects short usernames and passwords.
	status = doJSON(t, ts, http.MethodPost, "/api/register", "", RegisterRequest{
		Username: "ab",
		Password: "secret1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status = doJSON(t, ts, http.MethodPost, "/api/register", "", RegisterRequest{
		Username: "bob",
		Password: "12345",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLoginEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	registerUser(t, ts, "alice")

	var resp AuthResponse
	status := doJSON(t, ts, http.MethodPost, "/api/login", "", LoginRequest{
		Username: "alice",
		Password: "secret1",
	}, &resp)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, resp.Token)

	status = doJSON(t, ts, http.MethodPost, "/api/login", "", LoginRequest{
		Username: "alice",
		Password: "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMeEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	token, _ := registerUser(t, ts, "alice")

	var me UserResponse
	status := doJSON(t, ts, http.MethodGet, "/api/me", token, nil, &me)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "offline", me.Status)

	// Missing and malformed credentials are rejected.
	status = doJSON(t, ts, http.MethodGet, "/api/me", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status = doJSON(t, ts, http.MethodGet, "/api/me", "garbage", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
