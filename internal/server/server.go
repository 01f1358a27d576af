package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/skytrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/skytrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/skytrace/internal/tracer"
)

// StatusSource reports tracer health.
type StatusSource interface {
	Status() tracer.Status
}

// Deps are the collaborators the admin server exposes.
type Deps struct {
	Status   StatusSource
	Gatherer prometheus.Gatherer
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger
	Version  string
}

// Server is the agent's admin HTTP listener.
type Server struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger
	router *gin.Engine
	http   *http.Server
}

// New builds the admin router. Nothing listens until Serve or Run.
func New(cfg *config.Config, deps Deps) *Server {
	logger := logging.OrNop(deps.Logger).Named("admin")
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(deps.Metrics))
	if len(cfg.Admin.AllowOrigins) > 0 {
		cors := DefaultCORSConfig()
		cors.AllowOrigins = cfg.Admin.AllowOrigins
		router.Use(CORS(cors))
	}
	if cfg.Admin.RateLimit > 0 {
		logger.Info("rate limiting enabled", zap.Int("rps", cfg.Admin.RateLimit))
		router.Use(RateLimit(RateLimitConfig{
			RequestsPerSecond: cfg.Admin.RateLimit,
			Burst:             cfg.Admin.RateLimit * 2,
		}))
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		router: router,
	}
	router.GET("/", s.root)
	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	s.http = &http.Server{
		Addr:              cfg.Admin.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the admin router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured admin address.
func (s *Server) Run() error {
	lis, err := net.Listen("tcp", s.cfg.Admin.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Admin.Address, err)
	}
	return s.Serve(lis)
}

// Serve accepts admin requests on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("admin server listening", zap.String("addr", lis.Addr().String()))
	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   s.cfg.Agent.Service,
		"instance":  s.cfg.Agent.Instance,
		"collector": s.cfg.Collector.Address,
		"protocol":  s.cfg.Collector.Protocol,
		"version":   s.deps.Version,
	})
}

func (s *Server) health(c *gin.Context) {
	if s.deps.Status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tracer not started"})
		return
	}
	st := s.deps.Status.Status()
	code := http.StatusOK
	if st.Closed {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, st)
}
