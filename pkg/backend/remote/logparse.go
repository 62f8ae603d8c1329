package remote

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
)

// Markers delimit the structured result inside an otherwise freeform log
// stream. The entrypoint template writes them to the raw process stdout, so
// the same constants are shared between the bundle builder and this parser.
const (
	StartMarker = "__START__"
	EndMarker   = "__END__"
)

// parseFailureMessage is the error carried by synthetic failure results when
// the markers or the embedded JSON cannot be recovered.
const parseFailureMessage = "Failed to parse execution result from logs"

// The log transport may prefix every line with an ISO-8601 timestamp and
// arbitrary trailing whitespace.
var timestampPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z\s*`)

// rawResult is the JSON object the entrypoint emits between the markers.
// Plots are base64-encoded PNG payloads at this stage; they are materialized
// to files before the result crosses the Backend boundary.
type rawResult struct {
	Success bool     `json:"success"`
	Output  string   `json:"output"`
	Error   *string  `json:"error"`
	Plots   []string `json:"plots"`
}

// ParseLogs extracts the marker-delimited result JSON from accumulated
// container logs. Lines between the markers are stripped of their timestamp
// prefixes and concatenated; the markers themselves may appear mid-line with
// content on either side. Any failure yields a synthetic failure result
// carrying the raw logs for diagnosis; this function never returns an error.
func ParseLogs(logs string) (*rawResult, bool) {
	var parts []string
	capturing := false

	for _, line := range strings.Split(logs, "\n") {
		if idx := strings.Index(line, StartMarker); idx != -1 {
			capturing = true
			content := strings.TrimSpace(timestampPrefix.ReplaceAllString(line[idx+len(StartMarker):], ""))
			if content != "" {
				parts = append(parts, content)
			}
			continue
		}

		if idx := strings.Index(line, EndMarker); idx != -1 {
			content := strings.TrimSpace(timestampPrefix.ReplaceAllString(line[:idx], ""))
			if content != "" {
				parts = append(parts, content)
			}
			capturing = false
			break
		}

		if capturing {
			parts = append(parts, timestampPrefix.ReplaceAllString(line, ""))
		}
	}

	if len(parts) == 0 {
		return nil, false
	}

	payload := strings.Join(parts, "")
	if start := strings.Index(payload, "{"); start > 0 {
		payload = payload[start:]
	} else if start == -1 {
		return nil, false
	}

	var result rawResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, false
	}
	return &result, true
}

// parseFailure converts unparseable logs into the synthetic failure result
// mandated by the contract: raw logs preserved, no exception propagation.
func parseFailure(logs string) *backend.ExecutionResult {
	return backend.Failure(logs, parseFailureMessage)
}
