// Package middleware composes the admission pipeline applied to every
// inbound request before it is proxied: correlation-id tagging, credential
// verification, access-rule decision, and rate limiting, in that order.
// Callers always receive a generic denial; internal reason codes go to audit
// logs and metrics only.
package middleware
