package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sentraproxy/sentra/internal/keys"
	"github.com/sentraproxy/sentra/internal/observability"
)

// Supported signing algorithms.
const (
	AlgRS256 = "RS256"
	AlgRS384 = "RS384"
	AlgRS512 = "RS512"
	AlgES256 = "ES256"
	AlgES384 = "ES384"
	AlgES512 = "ES512"
)

// Validator verifies signed credentials and returns their claims.
type Validator interface {
	// Validate verifies the token and returns its claims.
	Validate(ctx context.Context, token string) (*Claims, error)
}

// Config holds validator configuration.
type Config struct {
	// Algorithms is the allowed algorithm set; empty allows all supported.
	Algorithms []string

	// Issuer, when set, must match the token's iss claim.
	Issuer string

	// ClockSkew is the tolerance applied to time-based claims.
	ClockSkew time.Duration

	// RequireSubject rejects tokens without a sub claim.
	RequireSubject bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Algorithms:     []string{AlgRS256, AlgES256},
		ClockSkew:      30 * time.Second,
		RequireSubject: true,
	}
}

// validator implements Validator against the key registry cache.
type validator struct {
	config  *Config
	cache   *keys.Cache
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time
}

// ValidatorOption is a functional option for the validator.
type ValidatorOption func(*validator)

// WithValidatorLogger sets the logger.
func WithValidatorLogger(logger observability.Logger) ValidatorOption {
	return func(v *validator) {
		v.logger = logger
	}
}

// WithValidatorMetrics sets the metrics recorder.
func WithValidatorMetrics(m *Metrics) ValidatorOption {
	return func(v *validator) {
		v.metrics = m
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *validator) {
		v.now = now
	}
}

// NewValidator creates a validator backed by the given key cache.
func NewValidator(config *Config, cache *keys.Cache, opts ...ValidatorOption) (Validator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if cache == nil {
		return nil, fmt.Errorf("key cache is required")
	}

	v := &validator{
		config: config,
		cache:  cache,
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// tokenHeader is the decoded JOSE header.
type tokenHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
	KeyID     string `json:"kid"`
}

// Validate implements Validator.
func (v *validator) Validate(ctx context.Context, token string) (*Claims, error) {
	start := time.Now()

	claims, err := v.validate(ctx, token)
	if err != nil {
		if v.metrics != nil {
			v.metrics.RecordValidation("error", reasonFor(err), time.Since(start))
		}
		return nil, err
	}

	if v.metrics != nil {
		v.metrics.RecordValidation("success", "", time.Since(start))
	}
	// The subject has not passed the identity screen yet, so it stays out
	// of log fields here.
	v.logger.WithContext(ctx).Debug("credential verified")
	return claims, nil
}

func (v *validator) validate(_ context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrNoCredentials
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrTokenMalformed
	}

	header, err := decodeHeader(parts[0])
	if err != nil {
		return nil, NewVerificationError("failed to decode header", err)
	}

	if err := v.checkAlgorithm(header.Algorithm); err != nil {
		return nil, err
	}

	claims, err := decodePayload(parts[1])
	if err != nil {
		return nil, NewVerificationError("failed to decode payload", err)
	}

	if err := v.verifySignature(header, parts[0]+"."+parts[1], parts[2]); err != nil {
		return nil, err
	}

	if err := v.checkClaims(claims); err != nil {
		return nil, err
	}

	return claims, nil
}

// lookupKey resolves the verification key for a token, falling back to the
// default sentinel id when the credential carries no key-id hint.
func (v *validator) lookupKey(kid string) (crypto.PublicKey, error) {
	if kid == "" {
		kid = keys.DefaultKeyID
	}
	info, ok := v.cache.Get(kid)
	if !ok {
		return nil, NewVerificationError(fmt.Sprintf("no key for id %q", kid), ErrKeyNotFound)
	}
	return info.Key, nil
}

func (v *validator) checkAlgorithm(alg string) error {
	if len(v.config.Algorithms) == 0 {
		return nil
	}
	for _, allowed := range v.config.Algorithms {
		if alg == allowed {
			return nil
		}
	}
	return NewVerificationError(fmt.Sprintf("algorithm %s is not allowed", alg), ErrUnsupportedAlgorithm)
}

func (v *validator) verifySignature(header *tokenHeader, signingInput, signature string) error {
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return NewVerificationError("failed to decode signature", ErrTokenMalformed)
	}

	key, err := v.lookupKey(header.KeyID)
	if err != nil {
		return err
	}

	switch header.Algorithm {
	case AlgRS256:
		return verifyRSA(key, signingInput, sig, crypto.SHA256)
	case AlgRS384:
		return verifyRSA(key, signingInput, sig, crypto.SHA384)
	case AlgRS512:
		return verifyRSA(key, signingInput, sig, crypto.SHA512)
	case AlgES256:
		return verifyECDSA(key, signingInput, sig, crypto.SHA256)
	case AlgES384:
		return verifyECDSA(key, signingInput, sig, crypto.SHA384)
	case AlgES512:
		return verifyECDSA(key, signingInput, sig, crypto.SHA512)
	default:
		return NewVerificationError(fmt.Sprintf("unsupported algorithm: %s", header.Algorithm), ErrUnsupportedAlgorithm)
	}
}

func (v *validator) checkClaims(c *Claims) error {
	now := v.now()
	skew := v.config.ClockSkew

	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt.Add(skew)) {
		return NewVerificationError("token expired", ErrTokenExpired)
	}
	if !c.NotBefore.IsZero() && now.Before(c.NotBefore.Add(-skew)) {
		return NewVerificationError("token not yet valid", ErrTokenNotYetValid)
	}
	if v.config.Issuer != "" && c.Issuer != v.config.Issuer {
		return NewVerificationError(fmt.Sprintf("issuer %q not accepted", c.Issuer), ErrInvalidIssuer)
	}
	if v.config.RequireSubject && c.Subject == "" {
		return NewVerificationError("subject claim required", ErrMissingSubject)
	}
	return nil
}

func decodeHeader(encoded string) (*tokenHeader, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrTokenMalformed
	}
	var header tokenHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, ErrTokenMalformed
	}
	return &header, nil
}

func decodePayload(encoded string) (*Claims, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrTokenMalformed
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ErrTokenMalformed
	}
	return ParseClaims(m)
}

// verifyRSA verifies a PKCS#1 v1.5 signature.
func verifyRSA(key crypto.PublicKey, signingInput string, sig []byte, hash crypto.Hash) error {
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return NewVerificationError("key is not an RSA public key", ErrInvalidSignature)
	}

	h := hash.New()
	h.Write([]byte(signingInput))
	if err := rsa.VerifyPKCS1v15(rsaKey, hash, h.Sum(nil), sig); err != nil {
		return NewVerificationError("RSA signature verification failed", ErrInvalidSignature)
	}
	return nil
}

// verifyECDSA verifies a raw r||s signature as used in JOSE.
func verifyECDSA(key crypto.PublicKey, signingInput string, sig []byte, hash crypto.Hash) error {
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return NewVerificationError("key is not an ECDSA public key", ErrInvalidSignature)
	}

	keySize := (ecKey.Curve.Params().BitSize + 7) / 8
	if len(sig) != 2*keySize {
		return NewVerificationError("invalid ECDSA signature length", ErrInvalidSignature)
	}

	h := hash.New()
	h.Write([]byte(signingInput))

	r := new(big.Int).SetBytes(sig[:keySize])
	s := new(big.Int).SetBytes(sig[keySize:])
	if !ecdsa.Verify(ecKey, h.Sum(nil), r, s) {
		return NewVerificationError("ECDSA signature verification failed", ErrInvalidSignature)
	}
	return nil
}

// reasonFor maps an error to the metric reason label.
func reasonFor(err error) string {
	switch {
	case IsUnknownKeyError(err):
		return "unknown_key"
	case IsSignatureError(err):
		return "bad_signature"
	default:
		return "invalid_token"
	}
}
