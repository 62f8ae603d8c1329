package orchestrator

import "fmt"

// Specialist profile names. Plans assign each step to one of these; unknown
// names fall back to the general profile.
const (
	AgentExcel      = "excel_agent"
	AgentDocument   = "document_agent"
	AgentPowerPoint = "powerpoint_agent"
	AgentCode       = "code_agent"
	AgentGeneral    = "general_agent"
)

var specialistProfiles = map[string]string{
	AgentExcel: `You are a spreadsheet analysis specialist. You work with Excel ` +
		`workbooks and CSV files using pandas and openpyxl. You inspect sheet ` +
		`structure before analyzing, handle messy headers and mixed-type columns, ` +
		`and produce summary tables and charts that answer the user's question ` +
		`directly. Keep DataFrames you want reported as named variables.`,
	AgentDocument: `You are a document analysis specialist. You extract and ` +
		`analyze text and tabular content from documents, summarize findings, ` +
		`and quantify patterns where the data allows it.`,
	AgentPowerPoint: `You are a presentation analysis specialist. You extract ` +
		`slide content, speaker notes, and embedded tables, and summarize the ` +
		`narrative and data of a deck.`,
	AgentCode: `You are a Python data engineering specialist. You write robust, ` +
		`well-structured analysis code: defensive loading, explicit type ` +
		`coercion, and clear intermediate outputs. Prefer vectorized pandas ` +
		`operations over loops.`,
	AgentGeneral: `You are a data analysis assistant. You analyze the provided ` +
		`files with Python, reason carefully about data quality, and report ` +
		`concrete, quantified findings.`,
}

// SpecialistProfile returns the system prompt body for an assigned agent,
// falling back to the general profile.
func SpecialistProfile(agent string) string {
	if profile, ok := specialistProfiles[agent]; ok {
		return profile
	}
	return specialistProfiles[AgentGeneral]
}

// stepSystemPrompt combines the specialist profile with the dispatcher's
// step contract.
func stepSystemPrompt(agent string, step AnalysisStep) string {
	return fmt.Sprintf(`%s

You are executing one step of a larger analysis plan. Your current step:

%s

Work only on this step. Use the run_code tool to execute Python; variables
persist between calls. When the step's goal is achieved, call complete_step
exactly once with a concise summary of your findings. Do not announce
completion in plain text; only complete_step finishes the step.`,
		SpecialistProfile(agent), step.Description)
}
