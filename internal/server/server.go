// Package server runs the check-in HTTP server with graceful shutdown.
// TLS is terminated in front of the service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/feirinha/checkin-module/internal/api/handlers"
	"github.com/bigkaa/feirinha/checkin-module/internal/config"
)

// Server is the check-in HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New builds the router and the http.Server.
// adminAuth guards the registrations listing; nil leaves it open.
// middlewares apply to every route, in the given order.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	h *handlers.APIHandler,
	adminAuth func(http.Handler) http.Handler,
	middlewares ...func(http.Handler) http.Handler,
) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg.APIPrefix, h, adminAuth, middlewares...),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// NewRouter mounts health endpoints at the root and the API under
// apiPrefix.
func NewRouter(
	apiPrefix string,
	h *handlers.APIHandler,
	adminAuth func(http.Handler) http.Handler,
	middlewares ...func(http.Handler) http.Handler,
) http.Handler {
	router := chi.NewRouter()
	for _, mw := range middlewares {
		router.Use(mw)
	}

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	api := func(r chi.Router) {
		r.Get("/worker/{identifier}", h.GetWorker)
		r.Get("/check-registration/{identifier}", h.CheckRegistration)
		r.Post("/check-registration", h.LegacyCheckRegistration)
		r.Get("/functions", h.ListSectors)
		r.Get("/functions/{sector}", h.ListRoles)
		r.Post("/register", h.Register)
		r.Post("/register-presence", h.LegacyRegisterPresence)

		r.Group(func(r chi.Router) {
			if adminAuth != nil {
				r.Use(adminAuth)
			}
			r.Get("/registrations", h.ListRegistrations)
		})
	}

	prefix := strings.TrimSuffix(apiPrefix, "/")
	if prefix == "" {
		api(router)
	} else {
		router.Route(prefix, api)
	}
	return router
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server started",
			slog.String("addr", s.httpServer.Addr),
			slog.String("api_prefix", s.cfg.APIPrefix),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}
