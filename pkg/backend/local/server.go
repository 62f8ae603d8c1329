package local

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dhruv1969Karnwal/excel-agent/internal/observability"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
)

// session tracks one interpreter session: its pickled variable store and a
// lock serializing executions. Sessions are created lazily on first use.
type session struct {
	id        string
	stateFile string
	createdAt time.Time
	lastUsed  time.Time
	execCount int
	mu        sync.Mutex
}

// ServerConfig holds the interpreter service settings.
type ServerConfig struct {
	Addr           string
	SandboxRoot    string
	ExecTimeout    time.Duration
	InstallTimeout time.Duration
}

// DefaultServerConfig returns the settings used when the config file is
// silent.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           ":8000",
		SandboxRoot:    filepath.Join(os.TempDir(), "excel-agent-sandbox"),
		ExecTimeout:    backend.DefaultExecTimeout,
		InstallTimeout: backend.DefaultInstallTimeout,
	}
}

// Server is the local interpreter service. It executes Python snippets in a
// sandboxed virtual environment with per-session persistent state, detects
// plot files by directory diff, and returns the uniform execution result.
type Server struct {
	cfg    ServerConfig
	env    *Env
	logger zerolog.Logger

	sessions map[string]*session
	mu       sync.Mutex

	httpServer *http.Server
}

// NewServer creates the interpreter service. Call Start to bootstrap the
// sandbox and begin serving.
func NewServer(cfg ServerConfig, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		env:      NewEnv(cfg.SandboxRoot),
		logger:   logger.With().Str("component", "interpreter-server").Logger(),
		sessions: make(map[string]*session),
	}
}

// Env exposes the sandbox layout, mainly for the janitor and tests.
func (s *Server) Env() *Env { return s.env }

// Start bootstraps the sandbox environment and serves HTTP until ctx is
// cancelled. Shutdown drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	if err := s.env.Ensure(ctx, s.logger); err != nil {
		return fmt.Errorf("sandbox bootstrap failed: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("POST /install", s.handleInstall)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.Handle("GET /metrics", observability.MetricsHandler())

	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("Interpreter service listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// getSession returns the session record, creating it on first use.
func (s *Server) getSession(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{
			id:        id,
			stateFile: filepath.Join(s.env.SandboxDir, fmt.Sprintf("state_%s.pkl", id)),
			createdAt: time.Now(),
		}
		s.sessions[id] = sess
		observability.SetActiveSessions(len(s.sessions))
		s.logger.Debug().Str("session_id", id).Msg("Session created")
	}
	return sess
}

type executeRequest struct {
	Code      string `json:"code"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}
	if strings.TrimSpace(req.Code) == "" {
		writeJSON(w, http.StatusOK, backend.Failure("", "code is required"))
		return
	}

	sess := s.getSession(req.SessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	start := time.Now()
	result := s.execute(r.Context(), sess, req.Code)
	observability.RecordExecution("local", time.Since(start), result.Success)
	observability.RecordExecutionAudit(r.Context(), "local", req.SessionID, executionStatus(result.Success), nil)

	sess.lastUsed = time.Now()
	sess.execCount++

	s.logger.Info().
		Str("session_id", req.SessionID).
		Bool("success", result.Success).
		Int("plots", len(result.Plots)).
		Int("tables", len(result.Tables)).
		Dur("elapsed", time.Since(start)).
		Msg("Execution finished")

	writeJSON(w, http.StatusOK, result)
}

// execute runs one snippet under the session lock. Each request gets its own
// plot and table directories so concurrent sessions never see each other's
// artifacts.
func (s *Server) execute(ctx context.Context, sess *session, code string) *backend.ExecutionResult {
	requestID := uuid.New().String()
	plotsDir := filepath.Join(s.env.PlotsDir, requestID)
	tablesDir := filepath.Join(s.env.TablesDir, requestID)
	for _, dir := range []string{plotsDir, tablesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return backend.Failure("", fmt.Sprintf("failed to create request directory: %v", err))
		}
	}

	before := snapshotDir(plotsDir)
	watcher, err := newPlotWatcher(plotsDir, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Plot watcher unavailable, falling back to snapshot diff")
	}

	execCtx, cancel := context.WithTimeout(ctx, s.cfg.ExecTimeout)
	defer cancel()

	driverRes, err := runDriver(execCtx, s.env.PythonPath(), sess.stateFile, code, plotsDir, tablesDir)

	var watched []string
	if watcher != nil {
		watched = watcher.Stop()
	}

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return backend.Failure("", fmt.Sprintf("execution timed out after %s", s.cfg.ExecTimeout))
		}
		return backend.Failure("", fmt.Sprintf("execution failed: %v", err))
	}

	result := &backend.ExecutionResult{
		Success: driverRes.Success,
		Output:  driverRes.Output,
		Plots:   diffDir(plotsDir, before, watched),
		Tables:  driverRes.tables(),
	}
	if driverRes.Error != nil {
		result.Error = *driverRes.Error
	}
	sort.Strings(result.Plots)
	return result
}

type installRequest struct {
	PackageName string `json:"package_name"`
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.PackageName)
	if name == "" {
		writeJSON(w, http.StatusOK, &backend.InstallResult{Success: false, Error: "package_name is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.InstallTimeout)
	defer cancel()

	start := time.Now()
	out, err := exec.CommandContext(ctx, s.env.PipPath(), "install", name).CombinedOutput()
	observability.RecordInstall("local", err == nil)
	if err != nil {
		msg := fmt.Sprintf("pip install failed: %v", err)
		if ctx.Err() == context.DeadlineExceeded {
			msg = fmt.Sprintf("pip install timed out after %s", s.cfg.InstallTimeout)
		}
		s.logger.Warn().Str("package", name).Err(err).Msg("Package installation failed")
		writeJSON(w, http.StatusOK, &backend.InstallResult{Success: false, Output: string(out), Error: msg})
		return
	}

	s.logger.Info().Str("package", name).Dur("elapsed", time.Since(start)).Msg("Package installed")
	writeJSON(w, http.StatusOK, &backend.InstallResult{Success: true, Output: string(out)})
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	s.mu.Lock()
	sess, ok := s.sessions[req.SessionID]
	if ok {
		delete(s.sessions, req.SessionID)
	}
	s.mu.Unlock()

	if ok {
		sess.mu.Lock()
		if err := os.Remove(sess.stateFile); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("session_id", req.SessionID).Msg("Failed to remove session state")
		}
		sess.mu.Unlock()
	}

	s.logger.Info().Str("session_id", req.SessionID).Msg("Session reset")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": req.SessionID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	active := len(s.sessions)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, &backend.Health{
		Status:         "healthy",
		SandboxDir:     s.env.SandboxDir,
		ActiveSessions: active,
	})
}

type sessionInfo struct {
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsed   time.Time `json:"last_used"`
	Executions int       `json:"executions"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	infos := make([]sessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, sessionInfo{
			SessionID:  sess.id,
			CreatedAt:  sess.createdAt,
			LastUsed:   sess.lastUsed,
			Executions: sess.execCount,
		})
	}
	s.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].SessionID < infos[j].SessionID })
	writeJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

func executionStatus(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
