package access

import (
	"errors"
	"fmt"
)

// Sentinel errors for access configuration.
var (
	// ErrMalformedRule indicates a rule string without a service:route separator.
	ErrMalformedRule = errors.New("access rule is malformed")

	// ErrRegistryUnavailable indicates that the remote registry fetch failed.
	ErrRegistryUnavailable = errors.New("remote registry is unavailable")
)

// RuleError is a configuration error for a specific rule string. Surfaced at
// load time, never at request time.
type RuleError struct {
	Raw     string
	Message string
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	return fmt.Sprintf("rule error (%q): %s", e.Raw, e.Message)
}

// Is checks if the error matches the target.
func (e *RuleError) Is(target error) bool {
	if errors.Is(target, ErrMalformedRule) {
		return true
	}
	_, ok := target.(*RuleError)
	return ok
}

// NewRuleError creates a new RuleError.
func NewRuleError(raw, message string) *RuleError {
	return &RuleError{Raw: raw, Message: message}
}
