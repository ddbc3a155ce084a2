package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/config"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/health"
	middleware "github.com/mohammed-shakir/watershed-gateway/internal/core/middleware"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/router"
)

type Deps struct {
	Clicker   router.Clicker
	Session   router.Sessioner
	View      router.Viewer
	Readiness health.ReadinessReporter
	// Metrics defaults to the global prometheus handler
	Metrics   http.Handler
	DefaultSR model.SpatialReference
}

// NewHandler builds the routed handler of the service
func NewHandler(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if d.Readiness != nil {
		r.Get("/readyz", health.Readiness(d.Readiness))
	}
	if cfg.MetricsEnabled {
		m := d.Metrics
		if m == nil {
			m = promhttp.Handler()
		}
		r.Method(http.MethodGet, "/metrics", m)
	}

	r.Post("/click", router.HandleClick(logger, d.DefaultSR, d.Clicker))
	r.Get("/view", router.HandleView(d.View))
	r.Get("/session", router.HandleSession(d.Session))
	r.Post("/sign-in", router.HandleSignIn(logger, d.Session))
	r.Post("/sign-out", router.HandleSignOut(logger, d.Session))
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
