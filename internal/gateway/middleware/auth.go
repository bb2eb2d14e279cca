package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentraproxy/sentra/internal/auth"
	"github.com/sentraproxy/sentra/internal/observability"
)

// unauthorizedBody is the uniform denial answer. Internal reasons are never
// echoed to the caller.
var unauthorizedBody = gin.H{"error": "unauthorized"}

// Authenticate extracts and verifies the caller credential. The verified
// subject is attached to the gin and request contexts; any failure answers
// 401 with a generic message.
func Authenticate(validator auth.Validator, logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		ctx, span := observability.Tracer().Start(c.Request.Context(), "admission.authenticate")
		defer span.End()

		token, err := auth.ExtractToken(c.Request)
		if err != nil {
			logger.WithContext(ctx).Debug("request without usable credential")
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorizedBody)
			return
		}

		claims, err := validator.Validate(ctx, token)
		if err != nil {
			logger.WithContext(ctx).Info("credential rejected",
				observability.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorizedBody)
			return
		}

		c.Set(ContextClientID, claims.Subject)
		c.Set(ContextClaims, claims)
		c.Request = c.Request.WithContext(
			observability.ContextWithClientID(ctx, claims.Subject),
		)

		c.Next()
	}
}
