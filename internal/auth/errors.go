package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for credential verification.
var (
	// ErrNoCredentials indicates that no credential was provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrTokenMalformed indicates that the credential is not a well-formed token.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenExpired indicates that the token has expired.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenNotYetValid indicates that the token is not yet valid.
	ErrTokenNotYetValid = errors.New("token is not yet valid")

	// ErrInvalidSignature indicates that the token signature does not verify.
	ErrInvalidSignature = errors.New("token signature is invalid")

	// ErrInvalidIssuer indicates that the token issuer is not accepted.
	ErrInvalidIssuer = errors.New("token issuer is invalid")

	// ErrKeyNotFound indicates that no key matches the token's key id.
	ErrKeyNotFound = errors.New("verification key not found")

	// ErrUnsupportedAlgorithm indicates an algorithm outside the allowed set.
	ErrUnsupportedAlgorithm = errors.New("signing algorithm is not supported")

	// ErrMissingSubject indicates that the token carries no caller identity.
	ErrMissingSubject = errors.New("token subject is missing")
)

// VerificationError carries the internal reason for a failed verification.
// The reason is recorded in audit logs and metrics only; callers receive a
// generic denial.
type VerificationError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("verification error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("verification error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *VerificationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *VerificationError) Is(target error) bool {
	_, ok := target.(*VerificationError)
	return ok || errors.Is(e.Cause, target)
}

// NewVerificationError creates a new VerificationError.
func NewVerificationError(message string, cause error) *VerificationError {
	return &VerificationError{Message: message, Cause: cause}
}

// IsUnknownKeyError checks if an error indicates a missing verification key.
func IsUnknownKeyError(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsSignatureError checks if an error indicates a signature mismatch.
func IsSignatureError(err error) bool {
	return errors.Is(err, ErrInvalidSignature)
}
