package artifacts

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
)

// ArtifactType classifies collected outputs.
type ArtifactType string

const (
	TypePlot    ArtifactType = "plot"
	TypeTable   ArtifactType = "table"
	TypeInsight ArtifactType = "insight"
)

// Artifact is one user-facing output of a finished analysis. Artifacts are
// derived state, rebuilt on every finalization.
type Artifact struct {
	Type        ArtifactType `json:"type"`
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	Description string       `json:"description,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Result is the outcome of finalization: the artifact list plus the single
// message shown to the user.
type Result struct {
	Artifacts []Artifact `json:"artifacts"`
	Message   string     `json:"message"`
}

// minInsightLen is the shortest freeform response accepted as the final
// narrative before falling back to summarization.
const minInsightLen = 80

// Summarizer produces the fallback narrative from completed-step summaries
// when no freeform response qualifies.
type Summarizer func(stepSummaries []string) (string, error)

// Collector rebuilds the artifact set from an analysis run's execution
// history.
type Collector struct {
	logger     zerolog.Logger
	summarizer Summarizer
}

// NewCollector creates a collector. summarizer may be nil; the fallback then
// joins step summaries verbatim.
func NewCollector(logger zerolog.Logger, summarizer Summarizer) *Collector {
	return &Collector{
		logger:     logger.With().Str("component", "artifact-collector").Logger(),
		summarizer: summarizer,
	}
}

// Collect walks the run's execution results and freeform responses and
// produces the deduplicated artifact set plus the final message. Plots
// dedupe by path, tables by name; exactly one insight is appended.
func (c *Collector) Collect(executions []*backend.ExecutionResult, responses []string, stepSummaries []string) *Result {
	seenPlots := make(map[string]struct{})
	seenTables := make(map[string]struct{})
	var artifacts []Artifact

	now := time.Now()
	for _, exec := range executions {
		if exec == nil {
			continue
		}
		for _, plot := range exec.Plots {
			if _, ok := seenPlots[plot]; ok {
				continue
			}
			seenPlots[plot] = struct{}{}
			artifacts = append(artifacts, Artifact{
				Type:        TypePlot,
				ID:          uuid.New().String(),
				Content:     plot,
				Description: strings.TrimSuffix(filepath.Base(plot), filepath.Ext(plot)),
				Timestamp:   now,
			})
		}
		for _, table := range exec.Tables {
			if _, ok := seenTables[table.Name]; ok {
				continue
			}
			seenTables[table.Name] = struct{}{}
			artifacts = append(artifacts, Artifact{
				Type:        TypeTable,
				ID:          uuid.New().String(),
				Content:     table.Markdown,
				Description: fmt.Sprintf("%s (%d rows x %d columns)", table.Name, table.Shape[0], table.Shape[1]),
				Timestamp:   now,
			})
		}
	}

	insight := c.insight(responses, stepSummaries)
	artifacts = append(artifacts, Artifact{
		Type:      TypeInsight,
		ID:        uuid.New().String(),
		Content:   insight,
		Timestamp: now,
	})

	c.logger.Info().
		Int("plots", len(seenPlots)).
		Int("tables", len(seenTables)).
		Msg("Artifacts collected")

	return &Result{
		Artifacts: artifacts,
		Message:   insight,
	}
}

// insight picks the final narrative: the last sufficiently long freeform
// response, else a summarization over the completed-step summaries.
func (c *Collector) insight(responses []string, stepSummaries []string) string {
	for i := len(responses) - 1; i >= 0; i-- {
		if resp := strings.TrimSpace(responses[i]); len(resp) >= minInsightLen {
			return resp
		}
	}

	if c.summarizer != nil {
		summary, err := c.summarizer(stepSummaries)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Summarization failed, joining step summaries")
		} else if strings.TrimSpace(summary) != "" {
			return summary
		}
	}

	if len(stepSummaries) == 0 {
		return "The analysis finished without producing findings."
	}
	return "Analysis summary:\n- " + strings.Join(stepSummaries, "\n- ")
}
