package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	appctx "traceledger/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"

	KeyRequestID = "request_id"
	KeyTraceID   = "trace_id"
)

var tracer = otel.Tracer("traceledger/http")

// Trace starts a server span per request and stores trace and request IDs
// in the request context. When no tracer provider is installed the IDs are
// taken from the headers or generated.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.FullPath(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", c.FullPath()),
			),
		)
		defer span.End()

		var tc *appctx.TraceContext
		if sc := span.SpanContext(); sc.IsValid() {
			tc = appctx.NewTraceContext(c.GetHeader(HeaderRequestID), sc.TraceID().String(), sc.SpanID().String())
		} else {
			tc = appctx.NewTraceContext(c.GetHeader(HeaderRequestID), c.GetHeader(HeaderTraceID), "")
		}
		requestID := tc.RequestID

		c.Request = c.Request.WithContext(appctx.WithTrace(ctx, tc))
		c.Set(KeyTraceID, tc.TraceID)
		c.Set(KeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, tc.TraceID)

		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
	}
}
