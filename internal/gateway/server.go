package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/sentraproxy/sentra/internal/access"
	"github.com/sentraproxy/sentra/internal/auth"
	"github.com/sentraproxy/sentra/internal/config"
	"github.com/sentraproxy/sentra/internal/gateway/middleware"
	"github.com/sentraproxy/sentra/internal/health"
	"github.com/sentraproxy/sentra/internal/observability"
	"github.com/sentraproxy/sentra/internal/ratelimit"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Dependencies are the admission components the server wires per route.
type Dependencies struct {
	Validator auth.Validator
	Store     *access.Store
	Limiter   ratelimit.Limiter
	Limits    *ratelimit.Registry
	Checker   *health.Checker
	Logger    observability.Logger

	AccessMetrics    *access.Metrics
	RateLimitMetrics *ratelimit.Metrics
}

// Server is the admission-layer HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	logger     observability.Logger

	mu      sync.Mutex
	running bool
}

// NewServer builds the server: one gin route per configured route, each
// behind the full admission chain, plus liveness and readiness endpoints.
func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CorrelationID())

	if deps.Checker != nil {
		engine.GET("/healthz", gin.WrapF(deps.Checker.LivenessHandler()))
		engine.GET("/readyz", gin.WrapF(deps.Checker.ReadinessHandler()))
	}

	for _, rc := range cfg.Routes {
		route := middleware.Route{
			Name:    rc.Name,
			Service: rc.Service,
			Path:    rc.Path,
		}

		forward, err := newForwarder(rc, deps.Logger)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", rc.Name, err)
		}

		engine.Any(rc.Path,
			middleware.Authenticate(deps.Validator, deps.Logger),
			middleware.Authorize(deps.Store, route,
				middleware.WithAuthorizeLogger(deps.Logger),
				middleware.WithAuthorizeMetrics(deps.AccessMetrics),
			),
			middleware.RateLimit(deps.Limiter, deps.Limits, route,
				middleware.WithRateLimitLogger(deps.Logger),
				middleware.WithRateLimitMetrics(deps.RateLimitMetrics),
			),
			forward,
		)
	}

	return &Server{
		engine: engine,
		httpServer: &http.Server{
			Addr:         cfg.Server.Listen,
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
			WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		},
		logger: deps.Logger,
	}, nil
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start runs the listener until Stop or a listener error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("admission server starting",
		observability.String("addr", s.httpServer.Addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("admission server stopping")
	return s.httpServer.Shutdown(ctx)
}
