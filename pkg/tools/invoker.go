package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Dhruv1969Karnwal/excel-agent/internal/observability"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
)

// KnowledgeSearcher is what the search_knowledge_base tool needs from the
// knowledge store.
type KnowledgeSearcher interface {
	SearchFormatted(ctx context.Context, query string) (string, error)
}

// Result is the outcome of one tool invocation. Content is what goes back to
// the model as the tool result; Execution carries the structured result for
// artifact collection when the tool ran code.
type Result struct {
	Name          string
	Content       string
	IsError       bool
	StepCompleted bool
	Summary       string
	Execution     *backend.ExecutionResult
}

// Invoker dispatches validated tool calls against the execution backend and
// the knowledge store. Tool failures are reported in the result content so
// the model can react; only context cancellation surfaces as an error.
type Invoker struct {
	backend   backend.Backend
	knowledge KnowledgeSearcher
	logger    zerolog.Logger
}

// NewInvoker creates a tool invoker. knowledge may be nil, in which case
// search_knowledge_base reports that no knowledge base is configured.
func NewInvoker(b backend.Backend, knowledge KnowledgeSearcher, logger zerolog.Logger) *Invoker {
	return &Invoker{
		backend:   b,
		knowledge: knowledge,
		logger:    logger.With().Str("component", "tool-invoker").Logger(),
	}
}

// Invoke validates the arguments against the tool's schema and dispatches.
func (inv *Invoker) Invoke(ctx context.Context, name string, args map[string]any) (*Result, error) {
	def, ok := DefinitionByName(name)
	if !ok {
		return &Result{
			Name:    name,
			Content: fmt.Sprintf("unknown tool: %s", name),
			IsError: true,
		}, nil
	}

	if msg, ok := validateArgs(def, args); !ok {
		return &Result{
			Name:    name,
			Content: fmt.Sprintf("invalid arguments for %s: %s", name, msg),
			IsError: true,
		}, nil
	}

	start := time.Now()
	result, err := inv.dispatch(ctx, name, args)
	if err != nil {
		return nil, err
	}

	status := "success"
	if result.IsError {
		status = "error"
	}
	observability.RecordToolExecution(name, time.Since(start), !result.IsError)
	observability.RecordToolAudit(ctx, name, "model", status, nil)
	inv.logger.Debug().
		Str("tool", name).
		Bool("is_error", result.IsError).
		Dur("elapsed", time.Since(start)).
		Msg("Tool invoked")

	return result, nil
}

func (inv *Invoker) dispatch(ctx context.Context, name string, args map[string]any) (*Result, error) {
	switch name {
	case ToolRunCode:
		return inv.runCode(ctx, args["code"].(string))
	case ToolInstallPackage:
		return inv.installPackage(ctx, args["package_name"].(string))
	case ToolReflect:
		return &Result{
			Name:    ToolReflect,
			Content: "Reflection recorded. Continue with the analysis.",
		}, nil
	case ToolSearchKnowledgeBase:
		return inv.searchKnowledge(ctx, args["query"].(string))
	case ToolCompleteStep:
		summary := args["summary"].(string)
		return &Result{
			Name:          ToolCompleteStep,
			Content:       "Step marked as complete.",
			StepCompleted: true,
			Summary:       summary,
		}, nil
	default:
		return &Result{Name: name, Content: "unknown tool: " + name, IsError: true}, nil
	}
}

func (inv *Invoker) runCode(ctx context.Context, code string) (*Result, error) {
	execResult, err := inv.backend.Execute(ctx, code, nil)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(execResult)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize execution result: %w", err)
	}

	return &Result{
		Name:      ToolRunCode,
		Content:   string(payload),
		IsError:   !execResult.Success,
		Execution: execResult,
	}, nil
}

func (inv *Invoker) installPackage(ctx context.Context, name string) (*Result, error) {
	// Models sometimes pass the full pip command instead of the bare name.
	name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "pip install"))

	installResult, err := inv.backend.InstallPackage(ctx, name)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(installResult)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize install result: %w", err)
	}

	return &Result{
		Name:    ToolInstallPackage,
		Content: string(payload),
		IsError: !installResult.Success,
	}, nil
}

func (inv *Invoker) searchKnowledge(ctx context.Context, query string) (*Result, error) {
	if inv.knowledge == nil {
		return &Result{
			Name:    ToolSearchKnowledgeBase,
			Content: "No knowledge base is configured for this session.",
		}, nil
	}

	start := time.Now()
	formatted, err := inv.knowledge.SearchFormatted(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Result{
			Name:    ToolSearchKnowledgeBase,
			Content: fmt.Sprintf("knowledge base search failed: %v", err),
			IsError: true,
		}, nil
	}
	observability.RecordKnowledgeSearch(time.Since(start))

	if formatted == "" {
		formatted = "No relevant snippets found."
	}
	return &Result{Name: ToolSearchKnowledgeBase, Content: formatted}, nil
}

// validateArgs checks args against the tool's JSON schema. Returns a
// human-readable message on failure.
func validateArgs(def Definition, args map[string]any) (string, bool) {
	schemaLoader := gojsonschema.NewGoLoader(def.InputSchema)
	docLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return err.Error(), false
	}
	if result.Valid() {
		return "", true
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; "), false
}
