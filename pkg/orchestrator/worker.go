package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dhruv1969Karnwal/excel-agent/internal/observability"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/progress"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/tools"
)

// ToolInvoker is what the worker loop needs from the tool layer.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (*tools.Result, error)
}

// LoopConfig bounds the per-step worker loop.
type LoopConfig struct {
	MaxIterations  int
	SoftIterations int
	LLMRetries     int
	RetryBaseDelay time.Duration
	Model          string
	Temperature    float64
	MaxTokens      int
}

// DefaultLoopConfig returns the loop bounds used when configuration is
// silent.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxIterations:  40,
		SoftIterations: 10,
		LLMRetries:     3,
		RetryBaseDelay: time.Second,
	}
}

// StepOutcome is what one worker run produced.
type StepOutcome struct {
	Summary    string
	Iterations int
	Capped     bool
	Executions []*backend.ExecutionResult
	Responses  []string
}

// worker drives the model through one analysis step: call the provider,
// execute requested tools, feed results back, until complete_step or the
// iteration cap.
type worker struct {
	provider LLMProvider
	invoker  ToolInvoker
	notifier *progress.Notifier
	cfg      LoopConfig
	logger   zerolog.Logger
}

// runStep executes the loop for the step at stepIdx. The iteration counter
// starts fresh for every step.
func (w *worker) runStep(ctx context.Context, req *Request, stepIdx int) (*StepOutcome, error) {
	step := req.Plan.Steps[stepIdx]
	logger := w.logger.With().Int("step_order", step.Order).Logger()

	messages := []Message{{Role: "user", Content: stepUserPrompt(req, stepIdx)}}
	systemPrompt := stepSystemPrompt(step.AssignedAgent, step)
	toolDefs := tools.Definitions()

	outcome := &StepOutcome{}

	for iteration := 1; iteration <= w.cfg.MaxIterations; iteration++ {
		outcome.Iterations = iteration

		if w.cfg.SoftIterations > 0 && iteration == w.cfg.SoftIterations+1 {
			logger.Warn().
				Int("iteration", iteration).
				Msg("Step exceeded the soft iteration threshold")
		}

		response, err := w.callWithRetry(ctx, LLMRequest{
			Model:        w.cfg.Model,
			Messages:     messages,
			Tools:        toolDefs,
			Temperature:  w.cfg.Temperature,
			MaxTokens:    w.cfg.MaxTokens,
			SystemPrompt: systemPrompt,
		})
		if err != nil {
			return nil, err
		}

		if response.Content != "" {
			outcome.Responses = append(outcome.Responses, response.Content)
		}

		// Dispatcher-mode sessions never finish on silence: a tool-less
		// response is recorded and the model is re-prompted.
		if len(response.ToolCalls) == 0 {
			logger.Debug().Int("iteration", iteration).Msg("Tool-less response, re-prompting")
			messages = append(messages,
				Message{Role: "assistant", Content: response.Content},
				Message{Role: "user", Content: "Continue working on the current step using tools. " +
					"Call complete_step with a summary when the step is done."},
			)
			continue
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		completed := false
		for _, call := range response.ToolCalls {
			w.notifier.Emit(progress.Event{
				Type:      "tool_started",
				SessionID: req.SessionID,
				StepOrder: step.Order,
				Tool:      call.Name,
			})

			result, err := w.invoker.Invoke(ctx, call.Name, call.Parameters)
			if err != nil {
				return nil, err
			}

			w.notifier.Emit(progress.Event{
				Type:      "tool_finished",
				SessionID: req.SessionID,
				StepOrder: step.Order,
				Tool:      call.Name,
			})

			if result.Execution != nil {
				outcome.Executions = append(outcome.Executions, result.Execution)
			}

			messages = append(messages, Message{
				Role:       "tool",
				Content:    result.Content,
				ToolCallID: call.ID,
			})

			if result.StepCompleted {
				outcome.Summary = result.Summary
				completed = true
			}
		}

		if completed {
			return outcome, nil
		}
	}

	// The hard cap forces finalization so the plan always terminates.
	logger.Warn().Int("max_iterations", w.cfg.MaxIterations).Msg("Step hit the iteration cap, forcing completion")
	outcome.Capped = true
	outcome.Summary = fmt.Sprintf("Step stopped after reaching the %d-iteration limit without an explicit completion.", w.cfg.MaxIterations)
	if len(outcome.Responses) > 0 {
		outcome.Summary += " Last remark: " + outcome.Responses[len(outcome.Responses)-1]
	}
	return outcome, nil
}

// callWithRetry calls the provider with exponential backoff on retryable
// errors.
func (w *worker) callWithRetry(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	retries := w.cfg.LLMRetries
	if retries <= 0 {
		retries = 3
	}
	baseDelay := w.cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		start := time.Now()
		response, err := w.provider.Call(ctx, request)
		observability.RecordLLMCall(w.provider.Provider(), time.Since(start), err == nil)
		if err == nil {
			return response, nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			return nil, err
		}
		if attempt == retries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		observability.RecordLLMRetry(w.provider.Provider())
		w.logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying model call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("model call failed after %d attempts: %w", retries, lastErr)
}

// stepUserPrompt folds the assets and the completed-steps digest into the
// step's opening user message.
func stepUserPrompt(req *Request, stepIdx int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analysis goal: %s\n", req.Plan.Goal)

	if len(req.Assets) > 0 {
		b.WriteString("\nAvailable files:\n")
		for _, asset := range req.Assets {
			b.WriteString("- ")
			b.WriteString(asset.Path)
			if asset.Description != "" {
				b.WriteString(": ")
				b.WriteString(asset.Description)
			}
			b.WriteString("\n")
		}
	}

	if summary := req.Plan.CompletedSummary(); summary != "" {
		b.WriteString("\nCompleted steps so far:\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nCurrent step: %s\n", req.Plan.Steps[stepIdx].Description)
	return b.String()
}
