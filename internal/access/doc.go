// Package access resolves a verified caller identity to a set of allow/deny
// rules and evaluates them against the requested service and route. Client
// configurations are merged from static configuration and a remote registry,
// cached, and invalidated by change notifications.
package access
