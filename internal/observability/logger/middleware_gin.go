package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	obscontext "github.com/smallbiznis/soarecon/internal/observability/context"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-Id"
)

type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier returns the kind and code logged for a handler error.
	ErrorClassifier func(err error) (kind, code string)
}

// quietRoutes are probed constantly; they log at debug.
var quietRoutes = map[string]bool{"/health": true, "/metrics": true}

// GinMiddleware puts the request id, acting user and the case and vendor from
// the path into the request context, then logs one entry per request.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		if actor := strings.TrimSpace(c.GetHeader(HeaderUserID)); actor != "" {
			ctx = obscontext.WithActor(ctx, actor)
		}
		if caseID := strings.TrimSpace(c.Param("case_id")); caseID != "" {
			ctx = obscontext.WithCaseID(ctx, caseID)
		}
		if vendorID := strings.TrimSpace(c.Param("vendor_id")); vendorID != "" {
			ctx = obscontext.WithVendorID(ctx, vendorID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if last := c.Errors.Last(); last != nil && cfg.ErrorClassifier != nil {
			kind, code := cfg.ErrorClassifier(last.Err)
			fields = append(fields, zap.String("error_type", kind), zap.String("error_code", code))
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		log := FromContext(c.Request.Context())
		switch {
		case quietRoutes[route]:
			log.Debug("http_request", fields...)
		case status >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}
