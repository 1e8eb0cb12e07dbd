package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/store-composite/internal/platform/ctxutil"
)

const (
	HeaderTraceID   = "X-Trace-Id"
	HeaderRequestID = "X-Request-Id"
)

// AttachTraceContext builds the request scope, stamps it onto the active
// span and echoes the ids on the response. It runs after routing, so the
// matched route and :id parameter are already known.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span := trace.SpanFromContext(ctx)

		rs := &ctxutil.RequestScope{
			RequestID: strings.TrimSpace(c.GetHeader(HeaderRequestID)),
			TraceID:   strings.TrimSpace(c.GetHeader(HeaderTraceID)),
			Route:     c.FullPath(),
			ProductID: strings.TrimSpace(c.Param("id")),
		}
		if rs.RequestID == "" {
			rs.RequestID = uuid.NewString()
		}
		if rs.TraceID == "" {
			if sc := span.SpanContext(); sc.HasTraceID() {
				rs.TraceID = sc.TraceID().String()
			} else {
				rs.TraceID = uuid.NewString()
			}
		}
		span.SetAttributes(rs.SpanAttributes()...)

		c.Request = c.Request.WithContext(ctxutil.WithRequestScope(ctx, rs))
		c.Set("trace_id", rs.TraceID)
		c.Set("request_id", rs.RequestID)
		if rs.ProductID != "" {
			c.Set("product_id", rs.ProductID)
		}
		c.Writer.Header().Set(HeaderTraceID, rs.TraceID)
		c.Writer.Header().Set(HeaderRequestID, rs.RequestID)
		c.Next()
	}
}
