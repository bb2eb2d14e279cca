package auth

import (
	"net/http"
	"strings"
)

// BearerPrefix is the Authorization scheme for signed credentials.
const BearerPrefix = "Bearer "

// ExtractToken pulls the signed credential from the Authorization header.
// Returns ErrNoCredentials when the header is absent or carries a different
// scheme.
func ExtractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoCredentials
	}

	if !strings.HasPrefix(header, BearerPrefix) {
		return "", ErrNoCredentials
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	if token == "" {
		return "", ErrNoCredentials
	}
	return token, nil
}
