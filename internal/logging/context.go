package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// ContextFields extracts correlation fields from context: the active trace
// span and the tenant key, when present.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if tc, err := tenant.FromContext(ctx); err == nil {
		fields = append(fields,
			zap.String("tenant.project", tc.Project),
			zap.String("tenant.branch", tc.Branch),
			zap.String("tenant.workspace", tc.WorkspaceHash),
		)
	}

	return fields
}

// WithContext returns a child logger carrying the context's correlation
// fields.
func WithContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
