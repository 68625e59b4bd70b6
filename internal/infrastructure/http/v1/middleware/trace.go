package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "querygrid/internal/core/context"
	"querygrid/internal/core/id"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
	// HeaderRegion names the grid region a request was issued for.
	HeaderRegion = "X-Grid-Region"
)

// Trace extracts or generates request and trace ids and tags the request
// context with them, plus the grid region when the client sent one.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = id.New()
		}

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = id.New()
		}

		trace := &appctx.TraceContext{
			TraceID:   traceID,
			SpanID:    id.Short(),
			RequestID: requestID,
		}

		ctx := appctx.WithTrace(c.Request.Context(), trace)
		if region := c.GetHeader(HeaderRegion); region != "" {
			ctx = appctx.WithRegion(ctx, region)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Set("trace_id", traceID)
		c.Set("request_id", requestID)

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}
