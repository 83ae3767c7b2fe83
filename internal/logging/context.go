package logging

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	taskKey
	requestIDKey
)

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidID reports whether id can be stored with WithRunID or WithRequestID:
// 1 to 128 characters from [a-zA-Z0-9._-].
func ValidID(id string) bool {
	return len(id) <= maxIDLen && idPattern.MatchString(id)
}

func mustID(kind, id string) {
	if !ValidID(id) {
		panic(fmt.Sprintf("logging: invalid %s %q", kind, id))
	}
}

func stringValue(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// WithRunID tags ctx with the pipeline run id. It panics on an id that
// ValidID rejects; run ids are generated, never user input.
func WithRunID(ctx context.Context, runID string) context.Context {
	mustID("run id", runID)
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run id, or "".
func RunIDFromContext(ctx context.Context) string {
	return stringValue(ctx, runIDKey)
}

// WithTask tags ctx with the task of the current stage. Task names come
// from planner output and are logged as-is; an empty task leaves ctx
// unchanged.
func WithTask(ctx context.Context, task string) context.Context {
	if task == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKey, task)
}

// TaskFromContext returns the current stage's task, or "".
func TaskFromContext(ctx context.Context) string {
	return stringValue(ctx, taskKey)
}

// WithRequestID tags ctx with the HTTP request id. Check client-supplied
// ids with ValidID first; WithRequestID panics on invalid ones.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	mustID("request id", requestID)
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// ContextFields returns the correlation fields carried by ctx: trace and
// span ids from an active span, then run.id, run.task and request.id.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if v := RunIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("run.id", v))
	}
	if v := TaskFromContext(ctx); v != "" {
		fields = append(fields, zap.String("run.task", v))
	}
	if v := RequestIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("request.id", v))
	}
	return fields
}
