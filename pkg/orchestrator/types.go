package orchestrator

import (
	"strings"
	"time"
)

// StepStatus is the lifecycle state of one analysis step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepSkipped    StepStatus = "skipped"
)

// AnalysisStep is one unit of the analysis plan. Steps are mutated only by
// the dispatcher and the complete_step handler, and are never deleted.
type AnalysisStep struct {
	Order         int        `json:"order"`
	Description   string     `json:"description"`
	AssignedAgent string     `json:"assigned_agent"`
	Status        StepStatus `json:"status"`
	ResultSummary string     `json:"result_summary,omitempty"`
}

// Plan is the ordered list of analysis steps for one request.
type Plan struct {
	Goal  string         `json:"goal"`
	Steps []AnalysisStep `json:"steps"`
}

// FirstPending returns the index of the first pending step in plan order,
// or -1 when none remains.
func (p *Plan) FirstPending() int {
	for i := range p.Steps {
		if p.Steps[i].Status == StepPending {
			return i
		}
	}
	return -1
}

// CompletedSummary folds finished steps into a compact digest for prompting:
// description plus result summary, nothing else.
func (p *Plan) CompletedSummary() string {
	var b strings.Builder
	for _, step := range p.Steps {
		if step.Status != StepCompleted {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(step.Description)
		if step.ResultSummary != "" {
			b.WriteString(": ")
			b.WriteString(step.ResultSummary)
		}
	}
	return b.String()
}

// Message is one turn of the worker conversation.
type Message struct {
	Role       string         `json:"role"` // user, assistant, tool
	Content    string         `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AssetFile describes one attached input file visible to the sandbox.
type AssetFile struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// Request is one analysis run: a plan executed against a session.
type Request struct {
	SessionID string      `json:"session_id"`
	Plan      *Plan       `json:"plan"`
	Assets    []AssetFile `json:"assets,omitempty"`
	StartedAt time.Time   `json:"started_at"`
}

// IsRetryableError checks if a provider error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// Network errors
	if strings.Contains(msg, "ECONNRESET") || strings.Contains(msg, "ETIMEDOUT") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") {
		return true
	}

	// Rate limits
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return true
	}

	// Server errors
	if strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504") {
		return true
	}

	return false
}
