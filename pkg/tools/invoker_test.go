package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
)

type fakeBackend struct {
	execResult    *backend.ExecutionResult
	execErr       error
	installResult *backend.InstallResult
	lastCode      string
	lastPackage   string
}

func (f *fakeBackend) Execute(ctx context.Context, code string, attachedFiles []string) (*backend.ExecutionResult, error) {
	f.lastCode = code
	return f.execResult, f.execErr
}

func (f *fakeBackend) InstallPackage(ctx context.Context, name string) (*backend.InstallResult, error) {
	f.lastPackage = name
	return f.installResult, nil
}

func (f *fakeBackend) Reset(ctx context.Context, sessionID string) error { return nil }

func (f *fakeBackend) HealthCheck(ctx context.Context) (*backend.Health, error) {
	return &backend.Health{Status: "healthy"}, nil
}

type fakeSearcher struct {
	formatted string
	err       error
	lastQuery string
}

func (f *fakeSearcher) SearchFormatted(ctx context.Context, query string) (string, error) {
	f.lastQuery = query
	return f.formatted, f.err
}

func TestInvokeRunCode(t *testing.T) {
	t.Run("success carries canonical result json", func(t *testing.T) {
		be := &fakeBackend{execResult: &backend.ExecutionResult{
			Success: true,
			Output:  "found 10 rows",
			Plots:   []string{"/plots/a.png"},
			Tables:  []backend.Table{},
		}}
		inv := NewInvoker(be, nil, zerolog.Nop())

		result, err := inv.Invoke(context.Background(), ToolRunCode, map[string]any{"code": "df.shape"})
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, "df.shape", be.lastCode)
		require.NotNil(t, result.Execution)

		var decoded backend.ExecutionResult
		require.NoError(t, json.Unmarshal([]byte(result.Content), &decoded))
		assert.Equal(t, "found 10 rows", decoded.Output)
		assert.Equal(t, []string{"/plots/a.png"}, decoded.Plots)
	})

	t.Run("code failure flags the result", func(t *testing.T) {
		be := &fakeBackend{execResult: backend.Failure("", "NameError")}
		inv := NewInvoker(be, nil, zerolog.Nop())

		result, err := inv.Invoke(context.Background(), ToolRunCode, map[string]any{"code": "x"})
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "NameError")
	})

	t.Run("backend error propagates", func(t *testing.T) {
		be := &fakeBackend{execErr: errors.New("service unreachable")}
		inv := NewInvoker(be, nil, zerolog.Nop())

		_, err := inv.Invoke(context.Background(), ToolRunCode, map[string]any{"code": "x"})
		assert.Error(t, err)
	})

	t.Run("missing code argument rejected by schema", func(t *testing.T) {
		inv := NewInvoker(&fakeBackend{}, nil, zerolog.Nop())

		result, err := inv.Invoke(context.Background(), ToolRunCode, map[string]any{})
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "invalid arguments")
	})
}

func TestInvokeInstallPackage(t *testing.T) {
	t.Run("bare name", func(t *testing.T) {
		be := &fakeBackend{installResult: &backend.InstallResult{Success: true, Output: "ok"}}
		inv := NewInvoker(be, nil, zerolog.Nop())

		result, err := inv.Invoke(context.Background(), ToolInstallPackage, map[string]any{"package_name": "xlsxwriter"})
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, "xlsxwriter", be.lastPackage)
	})

	t.Run("full pip command is stripped", func(t *testing.T) {
		be := &fakeBackend{installResult: &backend.InstallResult{Success: true}}
		inv := NewInvoker(be, nil, zerolog.Nop())

		_, err := inv.Invoke(context.Background(), ToolInstallPackage, map[string]any{"package_name": "pip install xlsxwriter"})
		require.NoError(t, err)
		assert.Equal(t, "xlsxwriter", be.lastPackage)
	})
}

func TestInvokeReflect(t *testing.T) {
	inv := NewInvoker(&fakeBackend{}, nil, zerolog.Nop())

	result, err := inv.Invoke(context.Background(), ToolReflect, map[string]any{"reflection": "the join lost rows"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, "Reflection recorded")
}

func TestInvokeSearchKnowledgeBase(t *testing.T) {
	t.Run("formatted results", func(t *testing.T) {
		searcher := &fakeSearcher{formatted: "## Loading Excel (excel)\npd.read_excel(...)"}
		inv := NewInvoker(&fakeBackend{}, searcher, zerolog.Nop())

		result, err := inv.Invoke(context.Background(), ToolSearchKnowledgeBase, map[string]any{"query": "load excel"})
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, "load excel", searcher.lastQuery)
		assert.Contains(t, result.Content, "Loading Excel")
	})

	t.Run("no knowledge base configured", func(t *testing.T) {
		inv := NewInvoker(&fakeBackend{}, nil, zerolog.Nop())

		result, err := inv.Invoke(context.Background(), ToolSearchKnowledgeBase, map[string]any{"query": "anything"})
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Contains(t, result.Content, "No knowledge base")
	})

	t.Run("search failure is data", func(t *testing.T) {
		searcher := &fakeSearcher{err: errors.New("db locked")}
		inv := NewInvoker(&fakeBackend{}, searcher, zerolog.Nop())

		result, err := inv.Invoke(context.Background(), ToolSearchKnowledgeBase, map[string]any{"query": "x"})
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "db locked")
	})

	t.Run("empty results get a friendly message", func(t *testing.T) {
		searcher := &fakeSearcher{formatted: ""}
		inv := NewInvoker(&fakeBackend{}, searcher, zerolog.Nop())

		result, err := inv.Invoke(context.Background(), ToolSearchKnowledgeBase, map[string]any{"query": "x"})
		require.NoError(t, err)
		assert.Contains(t, result.Content, "No relevant snippets")
	})
}

func TestInvokeCompleteStep(t *testing.T) {
	inv := NewInvoker(&fakeBackend{}, nil, zerolog.Nop())

	result, err := inv.Invoke(context.Background(), ToolCompleteStep, map[string]any{"summary": "loaded 10 rows"})
	require.NoError(t, err)
	assert.True(t, result.StepCompleted)
	assert.Equal(t, "loaded 10 rows", result.Summary)
}

func TestInvokeUnknownTool(t *testing.T) {
	inv := NewInvoker(&fakeBackend{}, nil, zerolog.Nop())

	result, err := inv.Invoke(context.Background(), "format_disk", map[string]any{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "unknown tool")
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	require.Len(t, defs, 5)

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	assert.ElementsMatch(t, []string{
		ToolRunCode, ToolInstallPackage, ToolReflect, ToolSearchKnowledgeBase, ToolCompleteStep,
	}, names)

	def, ok := DefinitionByName(ToolRunCode)
	require.True(t, ok)
	assert.NotEmpty(t, def.Description)
	assert.Equal(t, "object", def.InputSchema["type"])
}
