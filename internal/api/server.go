package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quakewatch/quakewatch/internal/config"
	"github.com/quakewatch/quakewatch/internal/services"
)

// Server wraps the HTTP API server and lifecycle helpers.
type Server struct {
	cfg        config.ServerConfig
	httpServer *http.Server
}

// NewServer constructs the API server bound to the configured address.
func NewServer(cfg config.ServerConfig, service *services.QuakeService, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := newHandlers(service, logger)
	h.register(router)

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves incoming requests until Shutdown is invoked.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until the context expires.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	_ = s.httpServer.Shutdown(ctx)
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
