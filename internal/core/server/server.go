// Package server assembles the dashboard HTTP surface and runs it.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danudenny/geoapi-saas/internal/core/config"
	"github.com/danudenny/geoapi-saas/internal/core/health"
	middleware "github.com/danudenny/geoapi-saas/internal/core/middleware"
	"github.com/danudenny/geoapi-saas/internal/dashboard"
)

const (
	apiTitle     = "Overlap Dashboard API"
	readyTimeout = 2 * time.Second
)

// Deps are the handlers the router mounts. ServeMetrics mounts /metrics on
// this router; it is off when the dedicated metrics listener owns it.
type Deps struct {
	UI           *dashboard.Handler
	API          *dashboard.APIHandler
	Ready        health.Pinger
	ServeMetrics bool
}

// NewAPI mounts a huma API on r.
func NewAPI(r chi.Router, version string) huma.API {
	cfg := huma.DefaultConfig(apiTitle, version)
	cfg.Info.Description = "Read-only views of a dashboard session: results, statistics, map payloads and H3 hotspots."
	return humachi.New(r, cfg)
}

// NewRouter wires middleware, health, metrics, the page and the JSON API.
func NewRouter(cfg config.Config, logger *slog.Logger, version string, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/healthz", health.Liveness())
	if d.Ready != nil {
		r.Get("/readyz", health.Readiness(d.Ready, readyTimeout))
	}
	if d.ServeMetrics {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	if d.UI != nil {
		d.UI.Routes(r)
	}
	if d.API != nil {
		d.API.RegisterRoutes(NewAPI(r, version))
	}
	return r
}

// Run serves h until ctx is done. Writes may last as long as an analysis
// call, since upload streams stay open until the result arrives.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.AnalysisTimeout + 30*time.Second,
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
