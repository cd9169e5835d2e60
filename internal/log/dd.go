package log

import (
	"context"
	"strconv"

	"github.com/tazhibayda/authcore/internal/queue"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// WithDD returns base enriched with the request id and, when ctx carries a
// span, the Datadog correlation fields dd.trace_id and dd.span_id.
func WithDD(ctx context.Context, base *zap.Logger, extra ...zap.Field) *zap.Logger {
	if rid := queue.RequestID(ctx); rid != "" {
		extra = append(extra, zap.String("request_id", rid))
	}
	if sp, ok := tracer.SpanFromContext(ctx); ok && sp != nil {
		sc := sp.Context()
		extra = append(extra,
			zap.String("dd.trace_id", strconv.FormatUint(sc.TraceID(), 10)),
			zap.String("dd.span_id", strconv.FormatUint(sc.SpanID(), 10)),
		)
	}
	return base.With(extra...)
}

// Ctx is WithDD over the package default logger.
func Ctx(ctx context.Context, extra ...zap.Field) *zap.Logger {
	return WithDD(ctx, L(), extra...)
}
