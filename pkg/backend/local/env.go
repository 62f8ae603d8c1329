package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
)

// Env describes the on-disk sandbox layout: an isolated virtual environment
// plus the shared plots and tables trees.
type Env struct {
	SandboxDir string
	VenvDir    string
	PlotsDir   string
	TablesDir  string
}

// NewEnv lays out sandbox paths under root.
func NewEnv(root string) *Env {
	return &Env{
		SandboxDir: root,
		VenvDir:    filepath.Join(root, "venv"),
		PlotsDir:   filepath.Join(root, "plots"),
		TablesDir:  filepath.Join(root, "tables"),
	}
}

// PythonPath returns the interpreter executable inside the venv.
func (e *Env) PythonPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(e.VenvDir, "Scripts", "python.exe")
	}
	return filepath.Join(e.VenvDir, "bin", "python")
}

// PipPath returns the pip executable inside the venv.
func (e *Env) PipPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(e.VenvDir, "Scripts", "pip.exe")
	}
	return filepath.Join(e.VenvDir, "bin", "pip")
}

// baseEnvPackages are installed once at bootstrap; they mirror the dependency
// manifest the remote bundle ships.
var baseEnvPackages = []string{
	"pandas",
	"numpy",
	"openpyxl",
	"matplotlib",
	"seaborn",
	"scipy",
	"statsmodels",
	"scikit-learn",
	"tabulate",
	"python-dateutil",
}

// Ensure creates the sandbox directories and, on first run, the virtual
// environment with the base packages. Safe to call on every startup.
func (e *Env) Ensure(ctx context.Context, logger zerolog.Logger) error {
	for _, dir := range []string{e.SandboxDir, e.PlotsDir, e.TablesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create sandbox directory %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(e.PythonPath()); err == nil {
		return nil
	}

	logger.Info().Str("venv", e.VenvDir).Msg("Creating sandbox virtual environment (first-time setup)")

	if out, err := exec.CommandContext(ctx, "python3", "-m", "venv", e.VenvDir).CombinedOutput(); err != nil {
		return fmt.Errorf("venv creation failed: %w: %s", err, out)
	}

	args := append([]string{"install"}, baseEnvPackages...)
	logger.Info().Int("packages", len(baseEnvPackages)).Msg("Installing base packages; this may take a few minutes")
	if out, err := exec.CommandContext(ctx, e.PipPath(), args...).CombinedOutput(); err != nil {
		return fmt.Errorf("base package installation failed: %w: %s", err, out)
	}

	logger.Info().Msg("Sandbox environment ready")
	return nil
}

// Cleanup removes the sandbox tree entirely.
func (e *Env) Cleanup() error {
	return os.RemoveAll(e.SandboxDir)
}
