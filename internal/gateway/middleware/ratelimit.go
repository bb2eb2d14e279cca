package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentraproxy/sentra/internal/observability"
	"github.com/sentraproxy/sentra/internal/ratelimit"
)

// rateLimitedBody is the answer for requests turned away on quota.
var rateLimitedBody = gin.H{"error": "too many requests"}

// RateLimit enforces the route's quota. Requests whose resolver yields no
// key are rejected with the configured status when denyEmptyKey is set, and
// admitted unkeyed otherwise. Store failures never reject a request.
func RateLimit(limiter ratelimit.Limiter, registry *ratelimit.Registry, route Route, opts ...RateLimitOption) gin.HandlerFunc {
	o := rateLimitOptions{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		ctx, span := observability.Tracer().Start(c.Request.Context(), "admission.ratelimit")
		defer span.End()

		cfg, err := registry.Lookup(route.Name)
		if err != nil {
			// No config at all, not even a default. Quota is not configured
			// for this deployment; admit.
			c.Next()
			return
		}

		key := ratelimit.ResolveKey(cfg, ratelimit.RequestInfo{
			Request:   c.Request,
			RouteID:   route.Name,
			RoutePath: route.Path,
		})
		if key == "" {
			if o.metrics != nil {
				o.metrics.RecordEmptyKey()
			}
			if cfg.DenyEmptyKey {
				status := cfg.EmptyKeyStatus
				if status == 0 {
					status = http.StatusTooManyRequests
				}
				o.logger.WithContext(ctx).Info("rate limit key resolved empty",
					observability.String("route", route.Name),
					observability.String("resolver", string(cfg.KeyResolver)),
				)
				c.AbortWithStatusJSON(status, rateLimitedBody)
				return
			}
			c.Next()
			return
		}

		decision, err := limiter.Allow(ctx, route.Name, key)
		if err != nil {
			// The limiter itself fails open; an error here means the route
			// has no usable config. Treat the same way: admit.
			o.logger.WithContext(ctx).Warn("rate limit check unavailable",
				observability.String("route", route.Name),
				observability.Error(err),
			)
			c.Next()
			return
		}

		if cfg.IncludeHeaders {
			for name, value := range decision.Headers() {
				c.Header(name, value)
			}
		}

		if !decision.Allowed {
			o.logger.WithContext(ctx).Debug("request over quota",
				observability.String("route", route.Name),
				observability.Int64("tokens_remaining", decision.TokensRemaining),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, rateLimitedBody)
			return
		}

		c.Next()
	}
}

type rateLimitOptions struct {
	logger  observability.Logger
	metrics *ratelimit.Metrics
}

// RateLimitOption is a functional option for RateLimit.
type RateLimitOption func(*rateLimitOptions)

// WithRateLimitLogger sets the logger.
func WithRateLimitLogger(logger observability.Logger) RateLimitOption {
	return func(o *rateLimitOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRateLimitMetrics sets the metrics recorder.
func WithRateLimitMetrics(m *ratelimit.Metrics) RateLimitOption {
	return func(o *rateLimitOptions) { o.metrics = m }
}
