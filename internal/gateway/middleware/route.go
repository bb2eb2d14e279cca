package middleware

// Route describes the matched route the pipeline is gating.
type Route struct {
	// Name is the route's logical name, used as the rate limit route id and
	// as the route term in access rules.
	Name string

	// Service is the backend service name, the service term in access rules.
	Service string

	// Path is the route's configured path pattern.
	Path string
}

// Context keys set by the pipeline for downstream handlers.
const (
	// ContextClientID carries the verified caller identity.
	ContextClientID = "client_id"

	// ContextClaims carries the verified credential claims.
	ContextClaims = "claims"
)
