package access

import (
	"strings"
)

// Wildcard matches any service or route.
const Wildcard = "*"

// Rule is a parsed access rule of the form [!]service:route. Immutable once
// parsed; Raw is retained for audit traceability only.
type Rule struct {
	// Service is the target service name or a wildcard.
	Service string

	// Route is the target route or a wildcard.
	Route string

	// Deny marks the rule as a veto rule.
	Deny bool

	// Raw is the original rule text.
	Raw string
}

// ParseRule parses a rule string. A leading '!' marks a deny rule and is
// stripped before splitting on the first ':'. A string without ':' is a
// load-time configuration error.
func ParseRule(raw string) (Rule, error) {
	text := raw
	deny := strings.HasPrefix(text, "!")
	if deny {
		text = text[1:]
	}

	idx := strings.Index(text, ":")
	if idx < 0 {
		return Rule{}, NewRuleError(raw, "missing service:route separator")
	}

	return Rule{
		Service: text[:idx],
		Route:   text[idx+1:],
		Deny:    deny,
		Raw:     raw,
	}, nil
}

// ParseRules parses a list of rule strings, failing fast on the first
// malformed entry.
func ParseRules(raws []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(raws))
	for _, raw := range raws {
		rule, err := ParseRule(raw)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Matches reports whether the rule applies to the given service and route.
func (r Rule) Matches(service, route string) bool {
	return segmentMatch(r.Service, service) && segmentMatch(r.Route, route)
}

// segmentMatch compares one rule segment against a request value. A bare
// wildcard matches anything; a single trailing '*' matches by prefix, the
// same form the gateway's path matching uses.
func segmentMatch(pattern, value string) bool {
	if pattern == Wildcard {
		return true
	}
	if strings.HasSuffix(pattern, Wildcard) {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, Wildcard))
	}
	return pattern == value
}

// Allowed evaluates a rule set against a request using deny-overrides
// semantics: an empty set fails closed, any matching deny rule vetoes the
// request regardless of matching allow rules, and otherwise at least one
// matching allow rule is required.
func Allowed(rules []Rule, service, route string) bool {
	if len(rules) == 0 {
		return false
	}

	allowed := false
	for _, rule := range rules {
		if !rule.Matches(service, route) {
			continue
		}
		if rule.Deny {
			return false
		}
		allowed = true
	}
	return allowed
}
