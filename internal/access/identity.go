package access

import (
	"regexp"
	"strings"
)

// Identity input defense. The extracted identity string is screened against
// three independent pattern classes before it reaches any log line, cache
// key, or downstream call.
var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)(\b(select|insert|update|delete|drop|union|exec|execute)\b|--|/\*|\*/|;|'\s*or\s+|"\s*or\s+|\bor\s+\d+\s*=\s*\d+)`)

	xssPattern = regexp.MustCompile(`(?i)(<\s*script|<\s*iframe|javascript\s*:|\bon\w+\s*=)`)

	pathTraversalPattern = regexp.MustCompile(`(?i)(\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.\.%2f|%2e%2e%5c)`)

	cleanIdentityPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ValidateIdentity reports whether an extracted identity string is safe to
// use. Null, blank, and empty inputs fail; any SQL-injection, XSS, or
// path-traversal marker fails; a clean alphanumeric-plus-hyphen/underscore
// string passes.
func ValidateIdentity(identity string) bool {
	if strings.TrimSpace(identity) == "" {
		return false
	}
	if sqlInjectionPattern.MatchString(identity) {
		return false
	}
	if xssPattern.MatchString(identity) {
		return false
	}
	if pathTraversalPattern.MatchString(identity) {
		return false
	}
	return cleanIdentityPattern.MatchString(identity)
}
