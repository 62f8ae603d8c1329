package remote

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Dhruv1969Karnwal/excel-agent/internal/observability"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// DeploymentHandle identifies the platform application backing one session.
// It is created on first execution, reused for every subsequent call in the
// session, and never torn down here; deleting stale applications is an
// external operational concern.
type DeploymentHandle struct {
	ApplicationID string `json:"application_id"`
	InternalName  string `json:"internal_name"`
	ContainerID   string `json:"container_id"`
}

// Executor runs code on the remote platform for a single session. The
// backing container is redeployed on every call, so session state is
// reconstructed by replay: the accepted code history is concatenated ahead
// of each new snippet. A failed execution never appends to the history,
// preserving the last known good replay state.
type Executor struct {
	sessionID string
	client    *PlatformClient
	plotsDir  string
	logger    zerolog.Logger

	handle        *DeploymentHandle
	codeHistory   []string
	extraPackages []string
}

// NewExecutor creates a remote executor for one session. plotsDir is where
// embedded plot payloads are materialized into files.
func NewExecutor(sessionID string, client *PlatformClient, plotsDir string, logger zerolog.Logger) *Executor {
	return &Executor{
		sessionID: sessionID,
		client:    client,
		plotsDir:  plotsDir,
		logger: logger.With().
			Str("component", "remote-executor").
			Str("session_id", sessionID).
			Logger(),
	}
}

// Handle exposes the deployment handle, nil before the first execution.
func (e *Executor) Handle() *DeploymentHandle { return e.handle }

// History returns a copy of the accepted code history.
func (e *Executor) History() []string {
	out := make([]string, len(e.codeHistory))
	copy(out, e.codeHistory)
	return out
}

// Execute deploys the replayed history plus the new snippet and extracts the
// marker-delimited result from the container logs. All deployment, transport,
// and parse failures come back as failure results, never as raised errors,
// except for context cancellation.
func (e *Executor) Execute(ctx context.Context, code string, attachedFiles []string) (*backend.ExecutionResult, error) {
	start := time.Now()
	replayed := strings.Join(append(e.History(), code), "\n")

	bundle, err := BuildBundle(replayed, e.extraPackages, attachedFiles)
	if err != nil {
		return backend.Failure("", fmt.Sprintf("failed to build bundle: %v", err)), nil
	}

	handle, err := e.resolveHandle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return backend.Failure("", fmt.Sprintf("failed to resolve deployment: %v", err)), nil
	}

	if err := e.client.UploadBundle(ctx, handle.ApplicationID, bundle); err != nil {
		return e.failureOrCancel(ctx, "bundle upload failed", err)
	}
	if err := e.client.Deploy(ctx, handle.ApplicationID); err != nil {
		return e.failureOrCancel(ctx, "deploy trigger failed", err)
	}
	deployStart := time.Now()
	if err := e.client.AwaitDeployment(ctx, handle.ApplicationID); err != nil {
		observability.RecordDeployment(time.Since(deployStart), false)
		return e.failureOrCancel(ctx, "deployment did not complete", err)
	}
	observability.RecordDeployment(time.Since(deployStart), true)

	// Fresh containers need a moment before the log endpoint knows them.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(e.client.cfg.StartupGrace):
	}

	containerID, err := e.client.ContainerID(ctx, handle.ApplicationID, handle.InternalName)
	if err != nil {
		return e.failureOrCancel(ctx, "container lookup failed", err)
	}
	handle.ContainerID = containerID

	logs, err := e.client.StreamLogs(ctx, containerID)
	if err != nil {
		return e.failureOrCancel(ctx, "log stream failed", err)
	}

	result := e.parseAndMaterialize(logs)
	observability.RecordExecution("remote", time.Since(start), result.Success)
	auditStatus := "failure"
	if result.Success {
		auditStatus = "success"
	}
	observability.RecordExecutionAudit(ctx, "remote", e.sessionID, auditStatus, nil)

	if result.Success {
		e.codeHistory = append(e.codeHistory, code)
		e.logger.Info().Int("history_len", len(e.codeHistory)).Msg("Execution succeeded, history advanced")
	} else {
		e.logger.Warn().Str("error", result.Error).Msg("Execution failed, history preserved")
	}
	return result, nil
}

// InstallPackage records the package in the session's dependency manifest so
// the next bundle ships it. There is no live process to install into; the
// redeploy on the next Execute performs the actual installation.
func (e *Executor) InstallPackage(ctx context.Context, name string) (*backend.InstallResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return &backend.InstallResult{Success: false, Error: "package name is required"}, nil
	}
	for _, existing := range e.extraPackages {
		if existing == name {
			return &backend.InstallResult{Success: true, Output: fmt.Sprintf("%s already queued", name)}, nil
		}
	}
	e.extraPackages = append(e.extraPackages, name)
	observability.RecordInstall("remote", true)
	e.logger.Info().Str("package", name).Msg("Package queued for next deployment")
	return &backend.InstallResult{
		Success: true,
		Output:  fmt.Sprintf("%s added to the environment; it will be available on the next execution", name),
	}, nil
}

// Reset clears the session's replay state. The session identity and its
// deployment handle survive; only the code history and queued packages go.
func (e *Executor) Reset(ctx context.Context, sessionID string) error {
	e.codeHistory = nil
	e.extraPackages = nil
	e.logger.Info().Msg("Session replay state cleared")
	return nil
}

// HealthCheck verifies the platform is reachable by listing applications.
func (e *Executor) HealthCheck(ctx context.Context) (*backend.Health, error) {
	var apps []Application
	if err := e.client.getJSON(ctx, "/api/application.all", &apps); err != nil {
		return nil, err
	}
	return &backend.Health{Status: "healthy", ActiveSessions: 1}, nil
}

// resolveHandle creates the platform application on first use and reuses it
// afterwards. Creation is idempotent: a name collision falls back to looking
// the existing application up. Build type is set only for new applications.
func (e *Executor) resolveHandle(ctx context.Context) (*DeploymentHandle, error) {
	if e.handle != nil {
		return e.handle, nil
	}

	suffix, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 10)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("python-agent-%s-%s", sanitizeName(e.sessionID), suffix)

	app, err := e.client.CreateApplication(ctx, name)
	if err != nil {
		if !isAlreadyExists(err) {
			return nil, err
		}
		app, err = e.client.FindApplication(ctx, name)
		if err != nil {
			return nil, err
		}
	} else {
		if err := e.client.SaveBuildType(ctx, app.ApplicationID); err != nil {
			return nil, err
		}
	}

	if app.ApplicationID == "" {
		return nil, fmt.Errorf("%w: %s", ErrApplicationNotFound, name)
	}

	e.handle = &DeploymentHandle{
		ApplicationID: app.ApplicationID,
		InternalName:  app.AppName,
	}
	return e.handle, nil
}

// parseAndMaterialize turns raw logs into an ExecutionResult, decoding each
// embedded plot into a uniquely named file under a per-request directory.
// Base64 payloads never leak past this boundary.
func (e *Executor) parseAndMaterialize(logs string) *backend.ExecutionResult {
	raw, ok := ParseLogs(logs)
	if !ok {
		return parseFailure(logs)
	}

	result := &backend.ExecutionResult{
		Success: raw.Success,
		Output:  raw.Output,
		Plots:   []string{},
		Tables:  []backend.Table{},
	}
	if raw.Error != nil {
		result.Error = *raw.Error
	}

	if len(raw.Plots) == 0 {
		return result
	}

	requestDir := filepath.Join(e.plotsDir, uuid.New().String())
	if err := os.MkdirAll(requestDir, 0o755); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to create plot directory")
		return result
	}

	for i, payload := range raw.Plots {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			e.logger.Warn().Err(err).Int("plot", i).Msg("Failed to decode plot payload")
			continue
		}
		path := filepath.Join(requestDir, fmt.Sprintf("plot_%s.png", uuid.New().String()))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			e.logger.Warn().Err(err).Str("path", path).Msg("Failed to write plot file")
			continue
		}
		result.Plots = append(result.Plots, path)
	}
	return result
}

func (e *Executor) failureOrCancel(ctx context.Context, msg string, err error) (*backend.ExecutionResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return backend.Failure("", fmt.Sprintf("%s: %v", msg, err)), nil
}

// sanitizeName maps a session id onto the platform's application name
// alphabet.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 20 {
		out = out[:20]
	}
	if out == "" {
		out = "default"
	}
	return out
}
