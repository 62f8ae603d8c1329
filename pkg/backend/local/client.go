package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
)

// Client talks to the interpreter service over HTTP and implements the
// backend contract. Slow executions come back as failure results rather than
// transport errors: a timeout means the code ran too long, not that the
// service is gone.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a client for the interpreter service at baseURL.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: backend.DefaultExecTimeout + 10*time.Second},
		logger:  logger.With().Str("component", "interpreter-client").Logger(),
	}
}

// SessionClient binds a client to one session id, satisfying backend.Backend.
type SessionClient struct {
	*Client
	sessionID string
}

// ForSession returns a session-bound view of the client.
func (c *Client) ForSession(sessionID string) *SessionClient {
	return &SessionClient{Client: c, sessionID: sessionID}
}

var _ backend.Backend = (*SessionClient)(nil)

// Execute runs code in the bound session. The interpreter sees files on the
// shared filesystem, so attachedFiles only inform logging here.
func (sc *SessionClient) Execute(ctx context.Context, code string, attachedFiles []string) (*backend.ExecutionResult, error) {
	body := map[string]string{"code": code, "session_id": sc.sessionID}

	var result backend.ExecutionResult
	if err := sc.post(ctx, "/execute", body, &result); err != nil {
		if isTimeout(err) {
			return backend.Failure("", fmt.Sprintf("execution timed out after %s", backend.DefaultExecTimeout)), nil
		}
		return nil, fmt.Errorf("interpreter service unreachable: %w", err)
	}
	if result.Plots == nil {
		result.Plots = []string{}
	}
	if result.Tables == nil {
		result.Tables = []backend.Table{}
	}
	return &result, nil
}

// InstallPackage installs a package into the shared sandbox environment.
func (sc *SessionClient) InstallPackage(ctx context.Context, name string) (*backend.InstallResult, error) {
	body := map[string]string{"package_name": name}

	var result backend.InstallResult
	if err := sc.post(ctx, "/install", body, &result); err != nil {
		if isTimeout(err) {
			return &backend.InstallResult{
				Success: false,
				Error:   fmt.Sprintf("installation timed out after %s", backend.DefaultInstallTimeout),
			}, nil
		}
		return nil, fmt.Errorf("interpreter service unreachable: %w", err)
	}
	return &result, nil
}

// Reset discards the session's persistent state.
func (sc *SessionClient) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = sc.sessionID
	}
	return sc.post(ctx, "/reset", map[string]string{"session_id": sessionID}, nil)
}

// HealthCheck probes the service.
func (sc *SessionClient) HealthCheck(ctx context.Context) (*backend.Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := sc.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("interpreter service unreachable: %w", err)
	}
	defer resp.Body.Close()

	var health backend.Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("invalid health response: %w", err)
	}
	return &health, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("interpreter service returned %d: %s", resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
