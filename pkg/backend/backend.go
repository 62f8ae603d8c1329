package backend

import (
	"context"
	"time"
)

// ExecutionResult is the canonical outcome of a single code execution.
// It is produced by exactly one backend call and is immutable once returned.
// The same JSON shape travels from the sandbox all the way to the artifact
// collector; callers must never re-encode it through ad hoc string forms.
type ExecutionResult struct {
	Success bool     `json:"success"`
	Output  string   `json:"output"`
	Error   string   `json:"error,omitempty"`
	Plots   []string `json:"plots"`
	Tables  []Table  `json:"tables"`
}

// Table is a tabular value auto-rendered by the interpreter.
type Table struct {
	Name     string `json:"name"`
	Markdown string `json:"markdown"`
	Shape    [2]int `json:"shape"`
}

// InstallResult reports a package installation attempt.
type InstallResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Health reports backend liveness.
type Health struct {
	Status         string `json:"status"`
	SandboxDir     string `json:"sandbox_dir,omitempty"`
	ActiveSessions int    `json:"active_sessions"`
}

// Backend is the uniform execution contract shared by the local interpreter
// service and the remote container executor.
//
// Execute is NOT safe for concurrent use within one session: callers must
// serialize calls per session id. Different sessions are fully independent.
// Failures of the executed code, of the deployment, or of result parsing
// surface as ExecutionResult{Success:false, Error:...}, never as a Go error;
// the error return is reserved for conditions where no structured result
// could be produced at all.
type Backend interface {
	Execute(ctx context.Context, code string, attachedFiles []string) (*ExecutionResult, error)
	InstallPackage(ctx context.Context, name string) (*InstallResult, error)
	Reset(ctx context.Context, sessionID string) error
	HealthCheck(ctx context.Context) (*Health, error)
}

// Failure builds a failed ExecutionResult with empty plot and table slices,
// so downstream JSON always carries arrays rather than nulls.
func Failure(output, errMsg string) *ExecutionResult {
	return &ExecutionResult{
		Success: false,
		Output:  output,
		Error:   errMsg,
		Plots:   []string{},
		Tables:  []Table{},
	}
}

// DefaultExecTimeout bounds a single code execution round-trip.
const DefaultExecTimeout = 120 * time.Second

// DefaultInstallTimeout bounds a package installation.
const DefaultInstallTimeout = 120 * time.Second
