// Package backend defines the uniform execution contract shared by all code
// execution engines: a local long-lived interpreter service and a remote
// redeployed-container executor. Both return structured results; execution
// failures are data, not errors, so the agent loop can always inspect them.
package backend
