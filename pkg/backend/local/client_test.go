package local

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
)

func TestSessionClientExecute(t *testing.T) {
	t.Run("success round trip", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/execute", r.URL.Path)

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "print(1)", body["code"])
			assert.Equal(t, "sess-1", body["session_id"])

			json.NewEncoder(w).Encode(backend.ExecutionResult{Success: true, Output: "1\n"})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, zerolog.Nop()).ForSession("sess-1")
		result, err := client.Execute(context.Background(), "print(1)", nil)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "1\n", result.Output)
		// Nil slices are normalized so downstream JSON carries arrays.
		assert.NotNil(t, result.Plots)
		assert.NotNil(t, result.Tables)
	})

	t.Run("code failure is data not error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(backend.ExecutionResult{Success: false, Error: "ZeroDivisionError: division by zero"})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, zerolog.Nop()).ForSession("sess-1")
		result, err := client.Execute(context.Background(), "1/0", nil)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "ZeroDivisionError")
	})

	t.Run("unreachable service is an error", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", zerolog.Nop()).ForSession("sess-1")
		_, err := client.Execute(context.Background(), "print(1)", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unreachable")
	})
}

func TestSessionClientInstallPackage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/install", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "xlsxwriter", body["package_name"])

		json.NewEncoder(w).Encode(backend.InstallResult{Success: true, Output: "installed"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop()).ForSession("sess-1")
	result, err := client.InstallPackage(context.Background(), "xlsxwriter")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestSessionClientReset(t *testing.T) {
	var gotSession string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reset", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotSession = body["session_id"]
		w.Write([]byte(`{"status":"reset"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop()).ForSession("sess-1")
	require.NoError(t, client.Reset(context.Background(), ""))
	assert.Equal(t, "sess-1", gotSession)
}

func TestSessionClientHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(backend.Health{Status: "healthy", ActiveSessions: 2})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop()).ForSession("sess-1")
	health, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 2, health.ActiveSessions)
}

func TestSessionClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop()).ForSession("sess-1")
	_, err := client.Execute(context.Background(), "print(1)", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
