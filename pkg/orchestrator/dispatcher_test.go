package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhruv1969Karnwal/excel-agent/pkg/artifacts"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/tools"
)

// scriptedProvider replays canned responses in order, repeating the last one
// once the script runs out.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*LLMResponse
	errs      []error
	calls     int
}

func (p *scriptedProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	if len(p.responses) == 0 {
		return &LLMResponse{}, nil
	}
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

func (p *scriptedProvider) Provider() string { return "scripted" }

// recordingInvoker answers complete_step immediately and run_code with a
// canned execution result.
type recordingInvoker struct {
	mu        sync.Mutex
	invoked   []string
	execution *backend.ExecutionResult
	err       error
}

func (r *recordingInvoker) Invoke(ctx context.Context, name string, args map[string]any) (*tools.Result, error) {
	r.mu.Lock()
	r.invoked = append(r.invoked, name)
	r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	switch name {
	case tools.ToolCompleteStep:
		summary, _ := args["summary"].(string)
		return &tools.Result{Name: name, Content: "Step marked as complete.", StepCompleted: true, Summary: summary}, nil
	case tools.ToolRunCode:
		return &tools.Result{Name: name, Content: "{}", Execution: r.execution}, nil
	default:
		return &tools.Result{Name: name, Content: "ok"}, nil
	}
}

func toolCall(name string, params map[string]any) ToolCall {
	return ToolCall{ID: "call-" + name, Name: name, Parameters: params}
}

func twoStepPlan() *Plan {
	return &Plan{
		Goal: "Analyze the sales workbook",
		Steps: []AnalysisStep{
			{Order: 1, Description: "Load and inspect the data", AssignedAgent: AgentExcel, Status: StepPending},
			{Order: 2, Description: "Summarize revenue by region", AssignedAgent: AgentExcel, Status: StepPending},
		},
	}
}

func newTestDispatcher(t *testing.T, provider LLMProvider, invoker ToolInvoker) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherConfig{
		Provider:  provider,
		Invoker:   invoker,
		Collector: artifacts.NewCollector(zerolog.Nop(), nil),
		Loop: LoopConfig{
			MaxIterations:  5,
			SoftIterations: 2,
			LLMRetries:     2,
			RetryBaseDelay: 1,
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return d
}

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher(DispatcherConfig{})
	assert.Error(t, err)

	_, err = NewDispatcher(DispatcherConfig{Provider: &scriptedProvider{}})
	assert.Error(t, err)

	_, err = NewDispatcher(DispatcherConfig{Provider: &scriptedProvider{}, Invoker: &recordingInvoker{}})
	assert.Error(t, err)
}

func TestDispatcherRunsAllSteps(t *testing.T) {
	execution := &backend.ExecutionResult{
		Success: true,
		Output:  "found 10 rows",
		Plots:   []string{"/plots/revenue.png"},
		Tables:  []backend.Table{},
	}
	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCall{toolCall(tools.ToolRunCode, map[string]any{"code": "df.shape"})}},
		{ToolCalls: []ToolCall{toolCall(tools.ToolCompleteStep, map[string]any{"summary": "found 10 rows"})}},
		{ToolCalls: []ToolCall{toolCall(tools.ToolCompleteStep, map[string]any{"summary": "grouped revenue by region"})}},
	}}
	invoker := &recordingInvoker{execution: execution}
	d := newTestDispatcher(t, provider, invoker)

	req := &Request{SessionID: "s1", Plan: twoStepPlan()}
	result, err := d.Run(context.Background(), req)
	require.NoError(t, err)

	for _, step := range req.Plan.Steps {
		assert.Equal(t, StepCompleted, step.Status)
	}
	assert.Equal(t, "found 10 rows", req.Plan.Steps[0].ResultSummary)
	assert.Equal(t, "grouped revenue by region", req.Plan.Steps[1].ResultSummary)

	// One plot artifact plus the single insight.
	var plots, insights int
	for _, artifact := range result.Artifacts {
		switch artifact.Type {
		case artifacts.TypePlot:
			plots++
		case artifacts.TypeInsight:
			insights++
		}
	}
	assert.Equal(t, 1, plots)
	assert.Equal(t, 1, insights)
}

func TestDispatcherTerminatesWhenEveryStepCaps(t *testing.T) {
	// The model never calls complete_step; the hard cap must still finish
	// the plan.
	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCall{toolCall(tools.ToolReflect, map[string]any{"reflection": "thinking"})}},
	}}
	d := newTestDispatcher(t, provider, &recordingInvoker{})

	req := &Request{SessionID: "s1", Plan: twoStepPlan()}
	result, err := d.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)

	for _, step := range req.Plan.Steps {
		assert.Equal(t, StepCompleted, step.Status)
		assert.Contains(t, step.ResultSummary, "iteration limit")
	}
}

func TestDispatcherRePromptsToolLessResponses(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{Content: "Let me think about this."},
		{ToolCalls: []ToolCall{toolCall(tools.ToolCompleteStep, map[string]any{"summary": "done"})}},
		{ToolCalls: []ToolCall{toolCall(tools.ToolCompleteStep, map[string]any{"summary": "done"})}},
	}}
	invoker := &recordingInvoker{}
	d := newTestDispatcher(t, provider, invoker)

	req := &Request{SessionID: "s1", Plan: twoStepPlan()}
	_, err := d.Run(context.Background(), req)
	require.NoError(t, err)

	// Silence never ends a step: only complete_step did.
	assert.Equal(t, StepCompleted, req.Plan.Steps[0].Status)
	assert.Equal(t, "done", req.Plan.Steps[0].ResultSummary)
}

func TestDispatcherTerminalErrorFinalizesWithExplanation(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCall{toolCall(tools.ToolRunCode, map[string]any{"code": "x"})}},
	}}
	invoker := &recordingInvoker{err: errors.New("interpreter service unreachable")}
	d := newTestDispatcher(t, provider, invoker)

	req := &Request{SessionID: "s1", Plan: twoStepPlan()}
	result, err := d.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Contains(t, result.Message, "stopped early")
	assert.Equal(t, StepCompleted, req.Plan.Steps[0].Status)
	assert.Contains(t, req.Plan.Steps[0].ResultSummary, "could not run")
	// The second step never ran.
	assert.Equal(t, StepPending, req.Plan.Steps[1].Status)
}

func TestDispatcherRetriesRetryableProviderErrors(t *testing.T) {
	provider := &scriptedProvider{
		errs: []error{errors.New("rate limit exceeded"), nil},
		responses: []*LLMResponse{
			{ToolCalls: []ToolCall{toolCall(tools.ToolCompleteStep, map[string]any{"summary": "done"})}},
			{ToolCalls: []ToolCall{toolCall(tools.ToolCompleteStep, map[string]any{"summary": "done"})}},
		},
	}
	d := newTestDispatcher(t, provider, &recordingInvoker{})

	req := &Request{SessionID: "s1", Plan: twoStepPlan()}
	_, err := d.Run(context.Background(), req)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, provider.calls, 3)
}

func TestDispatcherRejectsEmptyPlan(t *testing.T) {
	d := newTestDispatcher(t, &scriptedProvider{}, &recordingInvoker{})

	_, err := d.Run(context.Background(), &Request{SessionID: "s1", Plan: &Plan{}})
	assert.Error(t, err)

	_, err = d.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestDispatcherSerializesRunsPerSession(t *testing.T) {
	var mu sync.Mutex
	var active, maxActive int

	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCall{toolCall(tools.ToolCompleteStep, map[string]any{"summary": "done"})}},
	}}

	invoker := &trackingInvoker{onInvoke: func() {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
	}}
	d := newTestDispatcher(t, provider, invoker)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := &Request{
				SessionID: "shared",
				Plan: &Plan{
					Goal:  fmt.Sprintf("run %d", i),
					Steps: []AnalysisStep{{Order: 1, Description: "step", Status: StepPending}},
				},
			}
			_, err := d.Run(context.Background(), req)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "runs on one session must not overlap")
}

type trackingInvoker struct {
	onInvoke func()
}

func (ti *trackingInvoker) Invoke(ctx context.Context, name string, args map[string]any) (*tools.Result, error) {
	ti.onInvoke()
	if name == tools.ToolCompleteStep {
		summary, _ := args["summary"].(string)
		return &tools.Result{Name: name, StepCompleted: true, Summary: summary}, nil
	}
	return &tools.Result{Name: name, Content: "ok"}, nil
}

func TestMarkCompletedIsIdempotent(t *testing.T) {
	d := newTestDispatcher(t, &scriptedProvider{}, &recordingInvoker{})

	step := &AnalysisStep{Order: 1, Status: StepInProgress}
	d.markCompleted(step, "first summary")
	d.markCompleted(step, "second summary")

	assert.Equal(t, StepCompleted, step.Status)
	assert.Equal(t, "first summary", step.ResultSummary)
}
