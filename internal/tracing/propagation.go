package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToStep derives a context for one analysis step. The trace,
// analysis, and session identifiers carry over; the step ID is rebound.
func PropagateToStep(ctx context.Context, stepID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithStepID(ctx, stepID)
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.AnalysisID != "" {
		logger = logger.With().Str("analysis_id", tc.AnalysisID).Logger()
	}
	if tc.SessionID != "" {
		logger = logger.With().Str("session_id", tc.SessionID).Logger()
	}
	if tc.StepID != "" {
		logger = logger.With().Str("step_id", tc.StepID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext merges tracing information from source context into target context
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.AnalysisID != "" && GetAnalysisID(target) == "" {
		target = WithAnalysisID(target, tc.AnalysisID)
	}
	if tc.SessionID != "" && GetSessionID(target) == "" {
		target = WithSessionID(target, tc.SessionID)
	}
	if tc.StepID != "" && GetStepID(target) == "" {
		target = WithStepID(target, tc.StepID)
	}

	return target
}

// CloneContext creates a detached context carrying the same tracing
// information, for work that must outlive the request
func CloneContext(ctx context.Context) context.Context {
	return NewContext(context.Background(), FromContext(ctx))
}
