package auth

import (
	"encoding/json"
	"fmt"
	"time"
)

// Claims are the verified claims of a caller credential.
type Claims struct {
	// Subject is the caller identity.
	Subject string

	// Issuer is the token issuer.
	Issuer string

	// Audience is the set of intended audiences.
	Audience []string

	// ExpiresAt is the expiry instant; zero when absent.
	ExpiresAt time.Time

	// NotBefore is the validity start; zero when absent.
	NotBefore time.Time

	// IssuedAt is the issue instant; zero when absent.
	IssuedAt time.Time

	// Extra holds all remaining claims.
	Extra map[string]any
}

// reserved claim names handled explicitly in ParseClaims.
var reservedClaims = map[string]bool{
	"sub": true, "iss": true, "aud": true,
	"exp": true, "nbf": true, "iat": true,
}

// ParseClaims converts a decoded claim map into Claims.
func ParseClaims(m map[string]any) (*Claims, error) {
	c := &Claims{Extra: make(map[string]any)}

	if v, ok := m["sub"].(string); ok {
		c.Subject = v
	}
	if v, ok := m["iss"].(string); ok {
		c.Issuer = v
	}

	switch aud := m["aud"].(type) {
	case string:
		c.Audience = []string{aud}
	case []any:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				c.Audience = append(c.Audience, s)
			}
		}
	}

	var err error
	if c.ExpiresAt, err = numericDate(m, "exp"); err != nil {
		return nil, err
	}
	if c.NotBefore, err = numericDate(m, "nbf"); err != nil {
		return nil, err
	}
	if c.IssuedAt, err = numericDate(m, "iat"); err != nil {
		return nil, err
	}

	for k, v := range m {
		if !reservedClaims[k] {
			c.Extra[k] = v
		}
	}

	return c, nil
}

// numericDate reads a JSON numeric date claim.
func numericDate(m map[string]any, name string) (time.Time, error) {
	raw, ok := m[name]
	if !ok {
		return time.Time{}, nil
	}

	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0), nil
	case json.Number:
		sec, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: claim %q is not numeric", ErrTokenMalformed, name)
		}
		return time.Unix(int64(sec), 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: claim %q is not numeric", ErrTokenMalformed, name)
	}
}

// HasAudience reports whether the claims include the given audience.
func (c *Claims) HasAudience(aud string) bool {
	for _, a := range c.Audience {
		if a == aud {
			return true
		}
	}
	return false
}
