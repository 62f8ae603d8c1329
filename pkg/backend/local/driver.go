package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
)

// driverScript is the per-call execution driver. The service has no
// embeddable Python, so each call shells out with serialized state handoff:
// the driver loads the session's pickled variable store, executes the code
// against it while capturing stdout, auto-renders small DataFrames as
// markdown tables, persists the picklable bindings back, and prints one
// result JSON object to its own stdout.
//
// argv: driver.py <state_file> <code_file> <plots_dir> <tables_dir>
const driverScript = `import json
import io
import pickle
import sys
import traceback
import contextlib

import matplotlib
matplotlib.use("Agg")

state_file, code_file, plots_dir, tables_dir = sys.argv[1:5]

bindings = {}
try:
    with open(state_file, "rb") as f:
        bindings = pickle.load(f)
except (FileNotFoundError, EOFError):
    pass

bindings["plots_dir"] = plots_dir
bindings["tables_dir"] = tables_dir

with open(code_file, "r", encoding="utf-8") as f:
    code = f.read()

capture = io.StringIO()
tables = []
try:
    with contextlib.redirect_stdout(capture), contextlib.redirect_stderr(capture):
        exec(code, bindings)
    success = True
    error = None
except Exception as e:
    success = False
    error = "%s: %s\n%s" % (type(e).__name__, e, traceback.format_exc())

try:
    import pandas as pd
    for name, value in list(bindings.items()):
        if isinstance(value, pd.DataFrame) and not name.startswith("_"):
            if len(value) <= 100:
                tables.append({
                    "name": name,
                    "markdown": value.to_markdown(index=True),
                    "shape": list(value.shape),
                })
except ImportError:
    pass
except Exception as e:
    capture.write("Warning: could not format DataFrames: %s\n" % e)

persistable = {}
for name, value in bindings.items():
    if name == "__builtins__":
        continue
    try:
        pickle.dumps(value)
    except Exception:
        continue
    persistable[name] = value

with open(state_file, "wb") as f:
    pickle.dump(persistable, f)

json.dump({
    "success": success,
    "output": capture.getvalue(),
    "error": error,
    "tables": tables,
}, sys.stdout)
`

// driverResult is what the driver prints; plots are detected Go-side by
// diffing the plot directory, so the driver only reports tables.
type driverResult struct {
	Success bool          `json:"success"`
	Output  string        `json:"output"`
	Error   *string       `json:"error"`
	Tables  []driverTable `json:"tables"`
}

type driverTable struct {
	Name     string `json:"name"`
	Markdown string `json:"markdown"`
	Shape    []int  `json:"shape"`
}

// runDriver executes one code snippet through the driver and decodes its
// result. A non-zero exit with undecodable output becomes a failure result.
func runDriver(ctx context.Context, python, stateFile, code, plotsDir, tablesDir string) (*driverResult, error) {
	workDir, err := os.MkdirTemp("", "interp-run-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	driverPath := filepath.Join(workDir, "driver.py")
	if err := os.WriteFile(driverPath, []byte(driverScript), 0o644); err != nil {
		return nil, err
	}
	codePath := filepath.Join(workDir, "snippet.py")
	if err := os.WriteFile(codePath, []byte(code), 0o644); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, python, driverPath, stateFile, codePath, plotsDir, tablesDir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var result driverResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := fmt.Sprintf("interpreter driver failed: %v: %s", runErr, stderr.String())
		return &driverResult{Success: false, Output: stdout.String(), Error: &msg}, nil
	}
	return &result, nil
}

func (r *driverResult) tables() []backend.Table {
	out := make([]backend.Table, 0, len(r.Tables))
	for _, t := range r.Tables {
		table := backend.Table{Name: t.Name, Markdown: t.Markdown}
		if len(t.Shape) == 2 {
			table.Shape = [2]int{t.Shape[0], t.Shape[1]}
		}
		out = append(out, table)
	}
	return out
}
