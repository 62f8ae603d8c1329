// Package tools defines the closed tool set exposed to the model during an
// analysis step and dispatches validated tool calls against the execution
// backend and the knowledge store.
package tools
