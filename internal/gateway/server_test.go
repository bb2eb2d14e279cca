package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentraproxy/sentra/internal/access"
	"github.com/sentraproxy/sentra/internal/auth"
	"github.com/sentraproxy/sentra/internal/config"
	"github.com/sentraproxy/sentra/internal/health"
	"github.com/sentraproxy/sentra/internal/ratelimit"
)

type stubValidator struct{}

func (stubValidator) Validate(_ context.Context, token string) (*auth.Claims, error) {
	if token != "valid" {
		return nil, auth.ErrInvalidSignature
	}
	return &auth.Claims{Subject: "client-a"}, nil
}

type stubLimiter struct{}

func (stubLimiter) Allow(context.Context, string, string) (*ratelimit.Decision, error) {
	return &ratelimit.Decision{Allowed: true, TokensRemaining: 1, ReplenishRate: 1, BurstCapacity: 1, RequestedTokens: 1}, nil
}

func testServer(t *testing.T, upstream string) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Routes = []config.RouteConfig{
		{Name: "get-order", Service: "orders", Path: "/orders", Upstream: upstream},
	}

	store := access.NewStore([]access.ClientRecord{
		{ClientID: "client-a", Active: true, Rules: []string{"orders:*"}},
	}, nil)

	srv, err := NewServer(cfg, Dependencies{
		Validator: stubValidator{},
		Store:     store,
		Limiter:   stubLimiter{},
		Limits:    ratelimit.NewRegistry(ratelimit.DefaultConfig()),
		Checker:   health.NewChecker(),
	})
	require.NoError(t, err)
	return srv
}

func TestServerHealthEndpoints(t *testing.T) {
	srv := testServer(t, "")

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerAdmissionChainOnRoutes(t *testing.T) {
	srv := testServer(t, "")

	// No credential: denied before any forwarding.
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest("GET", "/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Admitted request reaches the route handler.
	req := httptest.NewRequest("GET", "/orders", nil)
	req.Header.Set("Authorization", "Bearer valid")
	w = httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestServerForwardsToUpstream(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusTeapot)
	}))
	defer upstream.Close()

	srv := testServer(t, upstream.URL)

	req := httptest.NewRequest("GET", "/orders", nil)
	// ReverseProxy falls back to http.CloseNotifier (unimplemented by
	// httptest.ResponseRecorder) unless the request context is cancellable.
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer valid")
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "/orders", gotPath)
}

func TestServerRejectsInvalidUpstream(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Routes = []config.RouteConfig{
		{Name: "r", Service: "s", Path: "/r", Upstream: "not-a-url"},
	}

	_, err := NewServer(cfg, Dependencies{
		Validator: stubValidator{},
		Store:     access.NewStore(nil, nil),
		Limiter:   stubLimiter{},
		Limits:    ratelimit.NewRegistry(ratelimit.DefaultConfig()),
	})
	require.Error(t, err)
}
