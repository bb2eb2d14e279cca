package keys

import (
	"errors"
	"fmt"
)

// Sentinel errors for key registry operations.
var (
	// ErrInvalidKey indicates that key material is malformed or unreadable.
	ErrInvalidKey = errors.New("key material is invalid")

	// ErrEmptySource indicates that a key source yielded no key material.
	ErrEmptySource = errors.New("key source is empty")

	// ErrUnknownSourceType indicates an unsupported key source type.
	ErrUnknownSourceType = errors.New("unknown key source type")

	// ErrSourceNotFound indicates that the configured location does not exist.
	ErrSourceNotFound = errors.New("key source location not found")
)

// KeyError represents a key loading error tied to a configured source.
// The failing location is carried so one bad source can be reported and
// skipped without affecting keys from other sources.
type KeyError struct {
	SourceID string
	Location string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("key error (source=%s location=%s): %s: %v", e.SourceID, e.Location, e.Message, e.Cause)
	}
	return fmt.Sprintf("key error (source=%s location=%s): %s", e.SourceID, e.Location, e.Message)
}

// Unwrap returns the underlying error.
func (e *KeyError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *KeyError) Is(target error) bool {
	_, ok := target.(*KeyError)
	return ok || errors.Is(e.Cause, target)
}

// NewKeyError creates a new KeyError.
func NewKeyError(sourceID, location, message string, cause error) *KeyError {
	return &KeyError{
		SourceID: sourceID,
		Location: location,
		Message:  message,
		Cause:    cause,
	}
}

// IsInvalidKeyError checks if an error indicates malformed key material.
func IsInvalidKeyError(err error) bool {
	return errors.Is(err, ErrInvalidKey)
}
