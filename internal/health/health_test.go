package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerAggregation(t *testing.T) {
	checker := NewChecker()
	checker.Register("ok", func(context.Context) Check {
		return Check{Status: StatusHealthy}
	})

	resp := checker.Readiness(context.Background())
	assert.Equal(t, StatusHealthy, resp.Status)

	checker.Register("degraded", func(context.Context) Check {
		return Check{Status: StatusDegraded, Message: "limping"}
	})
	resp = checker.Readiness(context.Background())
	assert.Equal(t, StatusDegraded, resp.Status)

	checker.Register("down", func(context.Context) Check {
		return Check{Status: StatusUnhealthy}
	})
	resp = checker.Readiness(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Len(t, resp.Checks, 3)
}

func TestReadinessHandler(t *testing.T) {
	checker := NewChecker()
	checker.Register("degraded", func(context.Context) Check {
		return Check{Status: StatusDegraded, Message: "store unreachable"}
	})

	w := httptest.NewRecorder()
	checker.ReadinessHandler()(w, httptest.NewRequest("GET", "/readyz", nil))

	// Degraded still answers 200: admission continues fail-open.
	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, "store unreachable", resp.Checks["degraded"].Message)
}

func TestReadinessHandlerUnhealthy(t *testing.T) {
	checker := NewChecker()
	checker.Register("down", func(context.Context) Check {
		return Check{Status: StatusUnhealthy}
	})

	w := httptest.NewRecorder()
	checker.ReadinessHandler()(w, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NewChecker().LivenessHandler()(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	check := RedisCheck(client)

	assert.Equal(t, StatusHealthy, check(context.Background()).Status)

	mr.Close()
	assert.Equal(t, StatusDegraded, check(context.Background()).Status)
}
