package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	obscontext "github.com/smallbiznis/soarecon/internal/observability/context"
)

const tracerName = "soarecon/http"

// routeAttributes maps path parameters to span attributes.
var routeAttributes = map[string]attribute.Key{
	"vendor_id":      "soa.vendor_id",
	"case_id":        "soa.case_id",
	"line_id":        "soa.line_id",
	"match_id":       "soa.match_id",
	"discrepancy_id": "soa.discrepancy_id",
}

// GinMiddleware opens a server span per request, continuing any propagated
// trace. Spans are named after the matched route and tagged with the
// reconciliation ids in its path.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}

		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		for _, p := range c.Params {
			if key, ok := routeAttributes[p.Key]; ok && strings.TrimSpace(p.Value) != "" {
				span.SetAttributes(key.String(p.Value))
			}
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			if last := c.Errors.Last(); last != nil {
				span.RecordError(last.Err)
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
