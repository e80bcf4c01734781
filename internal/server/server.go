package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/fghsg9075-lab/aios/internal/analytics"
	"github.com/fghsg9075-lab/aios/internal/config"
	"github.com/fghsg9075-lab/aios/internal/server/middleware"
	v1 "github.com/fghsg9075-lab/aios/internal/server/v1"
	"github.com/fghsg9075-lab/aios/internal/server/validator"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Deps are the collaborators the HTTP surface serves.
type Deps struct {
	Dispatcher v1.Dispatcher
	// Analytics is optional; without it the analytics routes are not mounted.
	Analytics analytics.Service
	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	Version  string
}

type Server struct {
	router    *gin.Engine
	config    *config.Config
	logger    *zap.Logger
	deps      Deps
	validator *validator.Validator
	limiter   *middleware.RateLimiter
}

func New(cfg *config.Config, logger *zap.Logger, deps Deps) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	engine := gin.New()
	engine.Use(middleware.Recovery(logger))
	engine.Use(middleware.Identity())
	engine.Use(middleware.Logger(logger))

	s := &Server{
		router:    engine,
		config:    cfg,
		logger:    logger,
		deps:      deps,
		validator: validator.New(),
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
	}
	if len(cfg.Server.AdminKeys) == 0 {
		logger.Warn("No admin keys configured, the API is open to anyone who can reach it")
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if s.limiter != nil {
		go s.sweepLimiter(ctx)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Sweep(); n > 0 {
				s.logger.Debug("Evicted idle rate limiters", zap.Int("count", n))
			}
		}
	}
}
