package instrument

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/skytrace/internal/propagation"
	"github.com/GriffinCanCode/skytrace/internal/segment"
)

// Gin traces each request as the entry span of a new segment. The operation
// name is the matched route, or the raw path for unmatched requests.
func Gin(t Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := t.NewContextWithHeader(
			c.GetHeader(propagation.Header),
			c.GetHeader(propagation.HeaderExtension),
		)

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		span := sc.CreateCurrentSegmentRootSpan()
		span.SetOperationName(route)
		span.SetSpanType(segment.SpanTypeEntry)
		span.SetSpanLayer(segment.SpanLayerHTTP)
		span.SetComponentID(ComponentGin)
		span.SetPeer(c.ClientIP())
		span.AddTag("http.method", c.Request.Method)
		span.AddTag("url", c.Request.URL.String())
		span.StartSpan()

		c.Request = c.Request.WithContext(ContextWithSegment(c.Request.Context(), sc, span))
		c.Next()

		status := c.Writer.Status()
		span.AddTag("status_code", strconv.Itoa(status))
		if status >= 500 || len(c.Errors) > 0 {
			span.ErrorOccurred()
		}
		for _, err := range c.Errors {
			span.AddLog("error.kind", "gin", "message", err.Error())
		}

		span.EndSpan()
		t.Report(sc)
	}
}
