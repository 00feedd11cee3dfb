package api

import (
	"context"
	"net/http"
	"time"

	"example.com/backstage/services/partyup/config"
	"example.com/backstage/services/partyup/internal/api/handlers"
	"example.com/backstage/services/partyup/internal/identity"
	"example.com/backstage/services/partyup/internal/metrics"
	"example.com/backstage/services/partyup/internal/services"
	"example.com/backstage/services/partyup/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Dependencies are the collaborators the HTTP surface is built from
type Dependencies struct {
	Service  *services.Service
	UoW      services.UnitOfWork
	Verifier identity.Verifier
	Stream   handlers.Stream
	Metrics  *metrics.Metrics
	Tracer   tracing.Tracer
}

// Server represents the HTTP server
type Server struct {
	config     config.Config
	deps       Dependencies
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, deps Dependencies) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}
	server := &Server{
		config: cfg,
		deps:   deps,
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
	}

	return server
}

// Router exposes the configured engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers.RegisterCustomValidations()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(s.deps.Metrics))
	if s.config.Server.CorsEnabled {
		router.Use(CORSMiddleware(s.config.Server))
	}
	if s.deps.Tracer != nil {
		router.Use(s.deps.Tracer.Middleware()...)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.config.MetricsEnabled {
		handlers.NewMetricsHandler(s.deps.Metrics).RegisterRoutes(router)
	}

	authed := router.Group("", handlers.Authenticate(s.deps.Verifier))

	handlers.NewAuthHandler(s.deps.Service, s.deps.UoW).RegisterRoutes(authed)
	handlers.NewUserHandler(s.deps.Service, s.deps.UoW).RegisterRoutes(authed)
	handlers.NewHiverHandler(s.deps.Service, s.deps.UoW).RegisterRoutes(authed)
	handlers.NewEventHandler(s.deps.Service, s.deps.UoW).RegisterRoutes(authed)
	if s.deps.Stream != nil {
		handlers.NewStreamHandler(s.deps.Service, s.deps.UoW, s.deps.Stream, s.config.Server.CorsOrigins).RegisterRoutes(authed)
	}

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
