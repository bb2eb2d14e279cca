package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentraproxy/sentra/internal/access"
	"github.com/sentraproxy/sentra/internal/observability"
)

// Authorize checks the authenticated caller against its access rules for the
// matched route. Unknown clients, inactive configurations, malformed
// identities and rule denials all answer the same generic 401.
func Authorize(store *access.Store, route Route, opts ...AuthorizeOption) gin.HandlerFunc {
	o := authorizeOptions{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		ctx, span := observability.Tracer().Start(c.Request.Context(), "admission.authorize")
		defer span.End()

		clientID := c.GetString(ContextClientID)

		// The extracted subject is untrusted until it passes the identity
		// screen; keep the raw value out of log fields until then.
		if !access.ValidateIdentity(clientID) {
			if o.metrics != nil {
				o.metrics.RecordIdentityReject()
			}
			o.logger.WithContext(ctx).Warn("client identity failed validation",
				observability.String("route", route.Name),
				observability.Int("identity_length", len(clientID)),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorizedBody)
			return
		}

		log := o.logger.WithContext(ctx).With(
			observability.String("client_id", clientID),
			observability.String("route", route.Name),
		)

		cfg, ok := store.Get(ctx, clientID)
		if !ok {
			log.Info("no access configuration for client")
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorizedBody)
			return
		}

		if !cfg.Active {
			log.Info("client configuration inactive")
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorizedBody)
			return
		}

		allowed := access.Allowed(cfg.Rules, route.Service, route.Name)
		if o.metrics != nil {
			o.metrics.RecordDecision(allowed)
		}
		if !allowed {
			log.Info("access denied by rule evaluation")
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorizedBody)
			return
		}

		c.Next()
	}
}

type authorizeOptions struct {
	logger  observability.Logger
	metrics *access.Metrics
}

// AuthorizeOption is a functional option for Authorize.
type AuthorizeOption func(*authorizeOptions)

// WithAuthorizeLogger sets the logger.
func WithAuthorizeLogger(logger observability.Logger) AuthorizeOption {
	return func(o *authorizeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuthorizeMetrics sets the metrics recorder.
func WithAuthorizeMetrics(m *access.Metrics) AuthorizeOption {
	return func(o *authorizeOptions) { o.metrics = m }
}
