package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sentraproxy/sentra/internal/observability"
)

// CorrelationIDHeader is the header carrying the request correlation id.
const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationID tags every request with a correlation id, reusing the
// caller's id when present. The id is attached to the request context and
// echoed on the response.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		ctx := observability.ContextWithCorrelationID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(CorrelationIDHeader, id)

		c.Next()
	}
}
