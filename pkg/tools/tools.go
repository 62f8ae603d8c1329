package tools

// Definition describes one tool exposed to the model. InputSchema is a JSON
// Schema object; it is sent to the provider verbatim and used to validate
// arguments before dispatch.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Tool names. The set is closed: the worker loop exposes exactly these.
const (
	ToolRunCode             = "run_code"
	ToolInstallPackage      = "install_package"
	ToolReflect             = "reflect"
	ToolSearchKnowledgeBase = "search_knowledge_base"
	ToolCompleteStep        = "complete_step"
)

// Definitions returns the full tool set in a stable order.
func Definitions() []Definition {
	return []Definition{
		{
			Name: ToolRunCode,
			Description: "Execute Python code in the analysis sandbox. Variables persist " +
				"between calls within the session. pandas, numpy, matplotlib, seaborn, " +
				"openpyxl, and scipy are preinstalled. Save plots into the plots_dir " +
				"directory. Returns the execution output, any error, and generated " +
				"plots and tables.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"code": map[string]any{
						"type":        "string",
						"description": "Python code to execute",
					},
				},
				"required": []any{"code"},
			},
		},
		{
			Name: ToolInstallPackage,
			Description: "Install an additional Python package into the sandbox " +
				"environment. Use only when an import fails.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"package_name": map[string]any{
						"type":        "string",
						"description": "PyPI package name, optionally with a version specifier",
					},
				},
				"required": []any{"package_name"},
			},
		},
		{
			Name: ToolReflect,
			Description: "Record intermediate reasoning about the analysis so far: what " +
				"worked, what failed, and what to try next. Has no side effects.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reflection": map[string]any{
						"type":        "string",
						"description": "Reasoning about the current state of the analysis",
					},
				},
				"required": []any{"reflection"},
			},
		},
		{
			Name: ToolSearchKnowledgeBase,
			Description: "Search the snippet knowledge base for analysis patterns and " +
				"code examples relevant to the current task.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Natural language description of what to look for",
					},
					"kb_id": map[string]any{
						"type":        "string",
						"description": "Optional knowledge base identifier",
					},
				},
				"required": []any{"query"},
			},
		},
		{
			Name: ToolCompleteStep,
			Description: "Mark the current analysis step as complete. Call this exactly " +
				"once, when the step's goal has been achieved, with a concise summary " +
				"of findings.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"summary": map[string]any{
						"type":        "string",
						"description": "Summary of what the step accomplished and key findings",
					},
				},
				"required": []any{"summary"},
			},
		},
	}
}

// DefinitionByName looks a tool up in the closed set.
func DefinitionByName(name string) (Definition, bool) {
	for _, def := range Definitions() {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}
