package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// AnalysisIDKey is the context key for analysis run ID
	AnalysisIDKey ContextKey = "analysis_id"
	// SessionIDKey is the context key for the execution session ID
	SessionIDKey ContextKey = "session_id"
	// StepIDKey is the context key for the active analysis step ID
	StepIDKey ContextKey = "step_id"
	// RequestIDKey is the context key for request ID (for idempotency)
	RequestIDKey ContextKey = "request_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID    string
	AnalysisID string
	SessionID  string
	StepID     string
	RequestID  string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewAnalysisID generates a new analysis run ID
func NewAnalysisID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithAnalysisID adds an analysis run ID to the context
func WithAnalysisID(ctx context.Context, analysisID string) context.Context {
	return context.WithValue(ctx, AnalysisIDKey, analysisID)
}

// WithSessionID adds an execution session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithStepID adds the active step ID to the context
func WithStepID(ctx context.Context, stepID string) context.Context {
	return context.WithValue(ctx, StepIDKey, stepID)
}

// WithRequestID adds a request ID to the context for idempotency
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetAnalysisID retrieves the analysis run ID from the context
func GetAnalysisID(ctx context.Context) string {
	if analysisID, ok := ctx.Value(AnalysisIDKey).(string); ok {
		return analysisID
	}
	return ""
}

// GetSessionID retrieves the execution session ID from the context
func GetSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// GetStepID retrieves the active step ID from the context
func GetStepID(ctx context.Context) string {
	if stepID, ok := ctx.Value(StepIDKey).(string); ok {
		return stepID
	}
	return ""
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:    GetTraceID(ctx),
		AnalysisID: GetAnalysisID(ctx),
		SessionID:  GetSessionID(ctx),
		StepID:     GetStepID(ctx),
		RequestID:  GetRequestID(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.AnalysisID != "" {
		ctx = WithAnalysisID(ctx, tc.AnalysisID)
	}
	if tc.SessionID != "" {
		ctx = WithSessionID(ctx, tc.SessionID)
	}
	if tc.StepID != "" {
		ctx = WithStepID(ctx, tc.StepID)
	}
	if tc.RequestID != "" {
		ctx = WithRequestID(ctx, tc.RequestID)
	}
	return ctx
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// NewAnalysisContext creates a context for one analysis run, keeping the
// parent trace ID and binding the run and session identifiers
func NewAnalysisContext(ctx context.Context, sessionID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithAnalysisID(ctx, NewAnalysisID())
	return WithSessionID(ctx, sessionID)
}
