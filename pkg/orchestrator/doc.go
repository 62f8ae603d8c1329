// Package orchestrator executes analysis plans: a dispatcher walks the
// plan's steps in order, a per-step worker loop drives the model through
// tool calls against the execution backend, and per-session lanes keep
// concurrent sessions isolated while serializing work within one session.
package orchestrator
