package remote

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// dockerfileContent is the fixed deploy manifest: base image, install step,
// entrypoint command.
const dockerfileContent = `FROM python:3.11-slim

WORKDIR /app

COPY requirements.txt .
RUN pip install --no-cache-dir -r requirements.txt

COPY . .

CMD ["python", "main.py"]
`

// basePackages is the fixed dependency manifest shipped with every bundle.
var basePackages = []string{
	"numpy",
	"matplotlib",
	"pandas",
	"openpyxl",
	"seaborn",
	"scipy",
	"statsmodels",
	"scikit-learn",
	"tabulate",
	"python-dateutil",
}

// entrypointTemplate is the fixed execution harness. The replayed code is
// embedded verbatim as an escaped string literal at __USER_CODE__, and the
// marker constants at __START_MARKER__/__END_MARKER__. Figures are collected
// through an explicit capture callback after execution; no plotting internals
// are overridden. The result JSON goes to the raw process stdout, bypassing
// the redirection that captures the user's own prints, and the process then
// idles so the platform keeps the container (and its logs) around.
const entrypointTemplate = `import matplotlib
matplotlib.use("Agg")

import base64
import contextlib
import io
import json
import sys
import time
import traceback

import matplotlib.pyplot as plt

_plots = []


def capture_figure(fig):
    fig.canvas.draw()
    try:
        fig.tight_layout()
    except Exception:
        pass
    buf = io.BytesIO()
    fig.savefig(buf, format="png", dpi=100, bbox_inches="tight", facecolor="white")
    buf.seek(0)
    _plots.append(base64.b64encode(buf.read()).decode("utf-8"))
    plt.close(fig)


user_code = __USER_CODE__

output_capture = io.StringIO()
try:
    with contextlib.redirect_stdout(output_capture), contextlib.redirect_stderr(output_capture):
        exec(user_code, globals())
        for num in plt.get_fignums():
            capture_figure(plt.figure(num))
    success = True
    error = None
except Exception as e:
    success = False
    error = "%s: %s\n%s" % (type(e).__name__, e, traceback.format_exc())
finally:
    plt.close("all")

result = {
    "success": success,
    "output": output_capture.getvalue(),
    "error": error,
    "plots": _plots,
}

sys.__stdout__.write("__START_MARKER__\n")
sys.__stdout__.write(json.dumps(result) + "\n")
sys.__stdout__.write("__END_MARKER__\n")
sys.__stdout__.flush()

while True:
    time.sleep(60)
`

// renderEntrypoint embeds the replayed code into the entrypoint template as
// an escaped string literal.
func renderEntrypoint(code string) string {
	// Markers are substituted before the code so that user code containing
	// a placeholder string cannot hijack the template.
	rendered := strings.Replace(entrypointTemplate, "__START_MARKER__", StartMarker, 1)
	rendered = strings.Replace(rendered, "__END_MARKER__", EndMarker, 1)
	return strings.Replace(rendered, "__USER_CODE__", pythonQuote(code), 1)
}

// pythonQuote escapes code as a double-quoted string literal. Go's quoting
// rules produce only escape sequences Python also accepts (\n, \", \\,
// \xXX, \uXXXX, \UXXXXXXXX).
func pythonQuote(code string) string {
	return strconv.Quote(code)
}

// renderRequirements renders the flat dependency manifest, appending any
// session-scoped extras after the base packages.
func renderRequirements(extras []string) string {
	var b strings.Builder
	for _, pkg := range basePackages {
		b.WriteString(pkg)
		b.WriteString("\n")
	}
	for _, pkg := range extras {
		b.WriteString(pkg)
		b.WriteString("\n")
	}
	return b.String()
}

// BuildBundle assembles the deployable zip: deploy manifest, rendered
// entrypoint, dependency manifest, and any attached input files placed at
// bundle root.
func BuildBundle(code string, extraPackages []string, attachedFiles []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	entries := map[string]string{
		"Dockerfile":       dockerfileContent,
		"main.py":          renderEntrypoint(code),
		"requirements.txt": renderRequirements(extraPackages),
	}
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("failed to create bundle entry %s: %w", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			return nil, fmt.Errorf("failed to write bundle entry %s: %w", name, err)
		}
	}

	for _, path := range attachedFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", path, err)
		}
		w, err := zw.Create(filepath.Base(path))
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment entry %s: %w", path, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write attachment %s: %w", path, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize bundle: %w", err)
	}
	return buf.Bytes(), nil
}
