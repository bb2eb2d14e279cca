package ratelimit

import (
	"net/http"
	"strings"
)

// ResolverName is the canonical name of a key resolver.
type ResolverName string

const (
	// ResolverClientIP keys the quota by client IP.
	ResolverClientIP ResolverName = "clientIP"

	// ResolverHeader keys the quota by a named request header's value.
	ResolverHeader ResolverName = "header"

	// ResolverRouteName keys the quota by the route's logical name.
	ResolverRouteName ResolverName = "routeName"

	// ResolverRoutePath keys the quota by the route's configured path.
	ResolverRoutePath ResolverName = "routePath"
)

// Valid reports whether the name is a registered resolver.
func (n ResolverName) Valid() bool {
	switch n {
	case ResolverClientIP, ResolverHeader, ResolverRouteName, ResolverRoutePath:
		return true
	}
	return false
}

// RequestInfo is what a resolver may draw the routing key from.
type RequestInfo struct {
	// Request is the inbound HTTP request.
	Request *http.Request

	// RouteID is the matched route's logical name.
	RouteID string

	// RoutePath is the matched route's configured path.
	RoutePath string
}

// ResolveKey derives the routing key for a request per the route's config.
// An empty result means the resolver could not produce a key; policy then
// consults DenyEmptyKey.
func ResolveKey(cfg Config, info RequestInfo) string {
	switch cfg.KeyResolver {
	case ResolverClientIP:
		return ClientIP(info.Request)
	case ResolverHeader:
		return info.Request.Header.Get(cfg.HeaderName)
	case ResolverRouteName:
		return info.RouteID
	case ResolverRoutePath:
		return info.RoutePath
	default:
		return ""
	}
}

// ClientIP extracts the client IP, preferring the forwarded-for header's
// first hop and falling back to the transport-level peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	ip = strings.TrimPrefix(ip, "[")
	ip = strings.TrimSuffix(ip, "]")
	return ip
}
