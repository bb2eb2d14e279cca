package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentraproxy/sentra/internal/access"
	"github.com/sentraproxy/sentra/internal/auth"
	"github.com/sentraproxy/sentra/internal/observability"
	"github.com/sentraproxy/sentra/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeValidator maps tokens to claims.
type fakeValidator struct {
	tokens map[string]*auth.Claims
}

func (v *fakeValidator) Validate(_ context.Context, token string) (*auth.Claims, error) {
	claims, ok := v.tokens[token]
	if !ok {
		return nil, auth.NewVerificationError("signature mismatch", auth.ErrInvalidSignature)
	}
	return claims, nil
}

// fakeLimiter answers with a scripted decision.
type fakeLimiter struct {
	decision *ratelimit.Decision
	lastKey  string
}

func (l *fakeLimiter) Allow(_ context.Context, _, key string) (*ratelimit.Decision, error) {
	l.lastKey = key
	return l.decision, nil
}

func testStore(t *testing.T) *access.Store {
	t.Helper()
	return access.NewStore([]access.ClientRecord{
		{ClientID: "client-a", Active: true, Rules: []string{"orders:*", "!orders:delete-order"}},
		{ClientID: "client-inactive", Active: false, Rules: []string{"*:*"}},
	}, nil)
}

type pipelineFixture struct {
	engine    *gin.Engine
	limiter   *fakeLimiter
	seenCtx   map[string]any
	routeName string
}

func newPipeline(t *testing.T, route Route, limitCfg ratelimit.Config) *pipelineFixture {
	t.Helper()

	validator := &fakeValidator{tokens: map[string]*auth.Claims{
		"good-token":     {Subject: "client-a"},
		"inactive-token": {Subject: "client-inactive"},
		"stranger-token": {Subject: "client-unknown"},
		"tainted-token":  {Subject: "' OR 1=1--"},
	}}

	limiter := &fakeLimiter{decision: &ratelimit.Decision{
		Allowed:         true,
		TokensRemaining: 9,
		ReplenishRate:   10,
		BurstCapacity:   20,
		RequestedTokens: 1,
	}}

	registry := ratelimit.NewRegistry(ratelimit.DefaultConfig())
	require.NoError(t, registry.Register(route.Name, limitCfg))

	f := &pipelineFixture{limiter: limiter, seenCtx: make(map[string]any), routeName: route.Name}

	engine := gin.New()
	engine.Use(CorrelationID())
	engine.Any(route.Path,
		Authenticate(validator, observability.NopLogger()),
		Authorize(testStore(t), route),
		RateLimit(limiter, registry, route),
		func(c *gin.Context) {
			f.seenCtx["client_id"], _ = c.Get(ContextClientID)
			f.seenCtx["request_client_id"] = observability.ClientIDFromContext(c.Request.Context())
			f.seenCtx["correlation_id"] = observability.CorrelationIDFromContext(c.Request.Context())
			c.Status(http.StatusNoContent)
		},
	)

	f.engine = engine
	return f
}

func defaultRoute() Route {
	return Route{Name: "get-order", Service: "orders", Path: "/orders"}
}

func perform(f *pipelineFixture, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/orders", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestPipelineAdmitsAuthorizedRequest(t *testing.T) {
	f := newPipeline(t, defaultRoute(), ratelimit.DefaultConfig())

	w := perform(f, "good-token")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "client-a", f.seenCtx["client_id"])
	assert.Equal(t, "client-a", f.seenCtx["request_client_id"])
	assert.NotEmpty(t, f.seenCtx["correlation_id"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestPipelineEchoesCallerCorrelationID(t *testing.T) {
	f := newPipeline(t, defaultRoute(), ratelimit.DefaultConfig())

	req := httptest.NewRequest("GET", "/orders", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	req.Header.Set("X-Correlation-ID", "caller-chosen-id")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	assert.Equal(t, "caller-chosen-id", w.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "caller-chosen-id", f.seenCtx["correlation_id"])
}

func TestPipelineDeniesWithGeneric401(t *testing.T) {
	f := newPipeline(t, defaultRoute(), ratelimit.DefaultConfig())

	tests := []struct {
		name  string
		token string
	}{
		{"no credential", ""},
		{"unverifiable credential", "forged-token"},
		{"unknown client", "stranger-token"},
		{"inactive client", "inactive-token"},
		{"tainted identity", "tainted-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(f, tt.token)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			// The body never explains which stage denied.
			assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
		})
	}
}

// capturingLogger records every field handed to it, on any level.
type capturingLogger struct {
	mu     sync.Mutex
	fields []observability.Field
}

func (l *capturingLogger) record(fields []observability.Field) {
	l.mu.Lock()
	l.fields = append(l.fields, fields...)
	l.mu.Unlock()
}

func (l *capturingLogger) Debug(_ string, fields ...observability.Field) { l.record(fields) }
func (l *capturingLogger) Info(_ string, fields ...observability.Field)  { l.record(fields) }
func (l *capturingLogger) Warn(_ string, fields ...observability.Field)  { l.record(fields) }
func (l *capturingLogger) Error(_ string, fields ...observability.Field) { l.record(fields) }
func (l *capturingLogger) Fatal(_ string, fields ...observability.Field) { l.record(fields) }

func (l *capturingLogger) With(fields ...observability.Field) observability.Logger {
	l.record(fields)
	return l
}

func (l *capturingLogger) WithContext(context.Context) observability.Logger { return l }
func (l *capturingLogger) Sync() error                                      { return nil }

func (l *capturingLogger) fieldValues() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.fields))
	for _, f := range l.fields {
		out = append(out, f.String)
		if s, ok := f.Interface.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestRejectedIdentityNeverReachesLogFields(t *testing.T) {
	tainted := "' OR 1=1--"
	validator := &fakeValidator{tokens: map[string]*auth.Claims{
		"tainted-token": {Subject: tainted},
	}}
	logger := &capturingLogger{}

	route := defaultRoute()
	engine := gin.New()
	engine.Use(CorrelationID())
	engine.Any(route.Path,
		Authenticate(validator, logger),
		Authorize(testStore(t), route, WithAuthorizeLogger(logger)),
	)

	req := httptest.NewRequest("GET", "/orders", nil)
	req.Header.Set("Authorization", "Bearer tainted-token")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	for _, value := range logger.fieldValues() {
		assert.NotContains(t, value, tainted, "unscreened identity attached to a log field")
	}
}

func TestPipelineDenyRuleVetoes(t *testing.T) {
	route := Route{Name: "delete-order", Service: "orders", Path: "/orders"}
	f := newPipeline(t, route, ratelimit.DefaultConfig())

	// client-a has orders:* but also !orders:delete-order.
	w := perform(f, "good-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPipelineRateLimitDeny(t *testing.T) {
	f := newPipeline(t, defaultRoute(), ratelimit.DefaultConfig())
	f.limiter.decision = &ratelimit.Decision{
		Allowed:         false,
		TokensRemaining: 0,
		ReplenishRate:   10,
		BurstCapacity:   20,
		RequestedTokens: 1,
	}

	w := perform(f, "good-token")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get(ratelimit.HeaderRemaining))
}

func TestPipelineRateLimitHeaders(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.IncludeHeaders = true
	f := newPipeline(t, defaultRoute(), cfg)

	w := perform(f, "good-token")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "9", w.Header().Get(ratelimit.HeaderRemaining))
	assert.Equal(t, "10", w.Header().Get(ratelimit.HeaderReplenishRate))
	assert.Equal(t, "20", w.Header().Get(ratelimit.HeaderBurstCapacity))
}

func TestPipelineRateLimitHeadersSuppressed(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.IncludeHeaders = false
	f := newPipeline(t, defaultRoute(), cfg)

	w := perform(f, "good-token")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get(ratelimit.HeaderRemaining))
}

func TestPipelineEmptyKeyPolicy(t *testing.T) {
	t.Run("deny with configured status", func(t *testing.T) {
		cfg := ratelimit.DefaultConfig()
		cfg.KeyResolver = ratelimit.ResolverHeader
		cfg.HeaderName = "X-Api-Key"
		cfg.DenyEmptyKey = true
		cfg.EmptyKeyStatus = http.StatusForbidden
		f := newPipeline(t, defaultRoute(), cfg)

		// No X-Api-Key header: resolver yields an empty key.
		w := perform(f, "good-token")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admit unkeyed when allowed", func(t *testing.T) {
		cfg := ratelimit.DefaultConfig()
		cfg.KeyResolver = ratelimit.ResolverHeader
		cfg.HeaderName = "X-Api-Key"
		cfg.DenyEmptyKey = false
		f := newPipeline(t, defaultRoute(), cfg)

		w := perform(f, "good-token")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, f.limiter.lastKey, "limiter not consulted for empty key")
	})
}

func TestPipelineRateLimitFailOpenDecision(t *testing.T) {
	f := newPipeline(t, defaultRoute(), ratelimit.DefaultConfig())
	f.limiter.decision = &ratelimit.Decision{
		Allowed:         true,
		TokensRemaining: ratelimit.DegradedTokens,
		ReplenishRate:   10,
		BurstCapacity:   20,
		RequestedTokens: 1,
	}

	w := perform(f, "good-token")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "-1", w.Header().Get(ratelimit.HeaderRemaining))
}
