package http

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// Tracing opens one Datadog span per request, continuing an upstream trace
// when the propagation headers are present.
func Tracing(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		opts := []tracer.StartSpanOption{
			tracer.ServiceName(service),
			tracer.ResourceName(c.Request.Method + " " + route),
			tracer.SpanType(ext.SpanTypeWeb),
			tracer.Tag(ext.HTTPMethod, c.Request.Method),
			tracer.Tag(ext.HTTPRoute, route),
			tracer.Measured(),
		}
		if sctx, err := tracer.Extract(tracer.HTTPHeadersCarrier(c.Request.Header)); err == nil {
			opts = append(opts, tracer.ChildOf(sctx))
		}
		span, ctx := tracer.StartSpanFromContext(c.Request.Context(), "http.request", opts...)
		defer span.Finish()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetTag(ext.HTTPCode, strconv.Itoa(status))
		if rid := c.GetString(requestIDHeader); rid != "" {
			span.SetTag("request_id", rid)
		}
		if status >= 500 {
			span.SetTag(ext.Error, true)
		}
	}
}

// WithSpan runs fn inside a child span named name.
func WithSpan(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	span, ctx := tracer.StartSpanFromContext(ctx, name)
	err := fn(ctx)
	span.Finish(tracer.WithError(err))
	return err
}
