package local

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.SandboxRoot = t.TempDir()
	return NewServer(cfg, zerolog.Nop())
}

func TestGetSession(t *testing.T) {
	s := testServer(t)

	a := s.getSession("s1")
	b := s.getSession("s1")
	c := s.getSession("s2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Contains(t, a.stateFile, "state_s1.pkl")
}

func TestHandleExecuteValidation(t *testing.T) {
	s := testServer(t)

	t.Run("invalid body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader("{bad"))
		s.handleExecute(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty code is a failure result", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/execute",
			strings.NewReader(`{"code": "  ", "session_id": "s1"}`))
		s.handleExecute(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var result backend.ExecutionResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "code is required")
	})
}

func TestHandleResetRemovesState(t *testing.T) {
	s := testServer(t)
	require.NoError(t, os.MkdirAll(s.env.SandboxDir, 0755))

	sess := s.getSession("s1")
	require.NoError(t, os.WriteFile(sess.stateFile, []byte("pickled"), 0644))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reset",
		strings.NewReader(`{"session_id": "s1"}`))
	s.handleReset(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	_, err := os.Stat(sess.stateFile)
	assert.True(t, os.IsNotExist(err))

	// The session record is gone too.
	s.mu.Lock()
	_, ok := s.sessions["s1"]
	s.mu.Unlock()
	assert.False(t, ok)
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t)
	s.getSession("s1")
	s.getSession("s2")

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var health backend.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 2, health.ActiveSessions)
}

func TestHandleSessions(t *testing.T) {
	s := testServer(t)
	s.getSession("beta")
	s.getSession("alpha")

	rec := httptest.NewRecorder()
	s.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sessions []sessionInfo `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 2)
	assert.Equal(t, "alpha", body.Sessions[0].SessionID)
	assert.Equal(t, "beta", body.Sessions[1].SessionID)
}

func TestHandleInstallValidation(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/install",
		strings.NewReader(`{"package_name": ""}`))
	s.handleInstall(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result backend.InstallResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "package_name is required")
}
