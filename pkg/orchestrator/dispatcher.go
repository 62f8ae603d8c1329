package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dhruv1969Karnwal/excel-agent/internal/observability"
	"github.com/Dhruv1969Karnwal/excel-agent/internal/tracing"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/artifacts"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/progress"
)

// dispatchState names the dispatcher's position in the run.
type dispatchState string

const (
	stateDispatching dispatchState = "dispatching"
	stateFinalizing  dispatchState = "finalizing"
)

// Dispatcher walks an analysis plan step by step: pick the first pending
// step, run the worker loop on it, fold its summary back into the plan, and
// finalize into artifacts when no pending step remains.
type Dispatcher struct {
	provider  LLMProvider
	invoker   ToolInvoker
	collector *artifacts.Collector
	notifier  *progress.Notifier
	lanes     *LaneQueue
	cfg       LoopConfig
	logger    zerolog.Logger
}

// DispatcherConfig wires a dispatcher.
type DispatcherConfig struct {
	Provider  LLMProvider
	Invoker   ToolInvoker
	Collector *artifacts.Collector
	Notifier  *progress.Notifier
	Lanes     *LaneQueue
	Loop      LoopConfig
	Logger    zerolog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("tool invoker is required")
	}
	if cfg.Collector == nil {
		return nil, fmt.Errorf("artifact collector is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = progress.NewNotifier(0, cfg.Logger)
	}
	if cfg.Lanes == nil {
		cfg.Lanes = NewLaneQueue(cfg.Logger)
	}
	if cfg.Loop.MaxIterations <= 0 {
		cfg.Loop = DefaultLoopConfig()
	}

	return &Dispatcher{
		provider:  cfg.Provider,
		invoker:   cfg.Invoker,
		collector: cfg.Collector,
		notifier:  cfg.Notifier,
		lanes:     cfg.Lanes,
		cfg:       cfg.Loop,
		logger:    cfg.Logger.With().Str("component", "dispatcher").Logger(),
	}, nil
}

// Run executes the plan on the session's lane, serializing with any other
// run for the same session, and returns the finalized artifacts.
func (d *Dispatcher) Run(ctx context.Context, req *Request) (*artifacts.Result, error) {
	if req == nil || req.Plan == nil || len(req.Plan.Steps) == 0 {
		return nil, fmt.Errorf("request requires a plan with at least one step")
	}
	if req.StartedAt.IsZero() {
		req.StartedAt = time.Now()
	}

	ctx = tracing.NewAnalysisContext(ctx, req.SessionID)

	lane := "session-" + req.SessionID
	value, err := d.lanes.Enqueue(ctx, lane, func(taskCtx context.Context) (interface{}, error) {
		return d.execute(taskCtx, req)
	})
	if err != nil {
		return nil, err
	}
	return value.(*artifacts.Result), nil
}

// execute drives the state machine for one run.
func (d *Dispatcher) execute(ctx context.Context, req *Request) (*artifacts.Result, error) {
	logger := tracing.LoggerFromContext(ctx, d.logger)

	var allExecutions []*backend.ExecutionResult
	var allResponses []string

	state := stateDispatching
	status := "completed"

	for state == stateDispatching {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		idx := req.Plan.FirstPending()
		if idx == -1 {
			state = stateFinalizing
			break
		}

		step := &req.Plan.Steps[idx]
		step.Status = StepInProgress
		logger.Info().
			Int("step_order", step.Order).
			Str("agent", step.AssignedAgent).
			Msg("Dispatching step")

		d.notifier.Emit(progress.Event{
			Type:      "step_started",
			SessionID: req.SessionID,
			StepOrder: step.Order,
			Message:   step.Description,
		})

		stepCtx := tracing.PropagateToStep(ctx, fmt.Sprintf("step-%d", step.Order))
		w := &worker{
			provider: d.provider,
			invoker:  d.invoker,
			notifier: d.notifier,
			cfg:      d.cfg,
			logger:   tracing.LoggerFromContext(stepCtx, d.logger),
		}

		outcome, err := w.runStep(stepCtx, req, idx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Terminal conditions finalize with an explanation instead of
			// crashing the session.
			logger.Error().Err(err).Int("step_order", step.Order).Msg("Step failed terminally, finalizing")
			d.markCompleted(step, fmt.Sprintf("Step could not run: %v", err))
			allResponses = append(allResponses,
				fmt.Sprintf("The analysis stopped early: step %d (%s) failed with a terminal error: %v.",
					step.Order, step.Description, err))
			status = "error"
			state = stateFinalizing
			break
		}

		d.markCompleted(step, outcome.Summary)
		allExecutions = append(allExecutions, outcome.Executions...)
		allResponses = append(allResponses, outcome.Responses...)

		stepStatus := "completed"
		if outcome.Capped {
			stepStatus = "capped"
		}
		observability.RecordStep(stepStatus, outcome.Iterations)
		observability.RecordStepAudit(stepCtx, fmt.Sprintf("step-%d", step.Order), stepStatus,
			map[string]interface{}{"iterations": outcome.Iterations})

		d.notifier.Emit(progress.Event{
			Type:      "step_completed",
			SessionID: req.SessionID,
			StepOrder: step.Order,
			Message:   outcome.Summary,
		})

		logger.Info().
			Int("step_order", step.Order).
			Int("iterations", outcome.Iterations).
			Bool("capped", outcome.Capped).
			Msg("Step finished")
	}

	result := d.collector.Collect(allExecutions, allResponses, d.stepSummaries(req.Plan))
	observability.RecordAnalysis(status)

	d.notifier.Emit(progress.Event{
		Type:      "analysis_finished",
		SessionID: req.SessionID,
		Message:   result.Message,
	})

	logger.Info().
		Int("artifacts", len(result.Artifacts)).
		Dur("elapsed", time.Since(req.StartedAt)).
		Str("status", status).
		Msg("Analysis finalized")

	return result, nil
}

// markCompleted transitions a step to completed. Completion is idempotent: a
// completed step keeps its first summary and never re-activates.
func (d *Dispatcher) markCompleted(step *AnalysisStep, summary string) {
	if step.Status == StepCompleted {
		return
	}
	step.Status = StepCompleted
	step.ResultSummary = summary
}

func (d *Dispatcher) stepSummaries(plan *Plan) []string {
	var summaries []string
	for _, step := range plan.Steps {
		if step.Status == StepCompleted && step.ResultSummary != "" {
			summaries = append(summaries, step.ResultSummary)
		}
	}
	return summaries
}
