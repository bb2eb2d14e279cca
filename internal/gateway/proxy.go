package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/sentraproxy/sentra/internal/config"
	"github.com/sentraproxy/sentra/internal/observability"
)

// newForwarder builds the terminal handler for an admitted request: a
// reverse proxy to the route's upstream. Routes without an upstream answer
// 204, which keeps the admission chain testable without a backend.
func newForwarder(rc config.RouteConfig, logger observability.Logger) (gin.HandlerFunc, error) {
	if rc.Upstream == "" {
		return func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		}, nil
	}

	target, err := url.Parse(rc.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream %q: %w", rc.Upstream, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q: scheme and host are required", rc.Upstream)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.WithContext(r.Context()).Error("upstream request failed",
			observability.String("route", rc.Name),
			observability.String("upstream", rc.Upstream),
			observability.Error(err),
		)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"bad gateway"}`))
	}

	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}, nil
}
