// Package server wires the HTTP surface and runs it until the context ends.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/health"
	middleware "github.com/mohammed-shakir/freeze-risk-map/internal/core/middleware"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/router"
	"github.com/mohammed-shakir/freeze-risk-map/internal/view"
)

type Deps struct {
	API  *router.API
	View *view.Handler
	// Metrics serves /metrics; nil leaves the route unmounted.
	Metrics        http.Handler
	Checks         []health.Check
	AllowedOrigins []string
}

// NewHandler builds the chi router for every public route.
func NewHandler(logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(d.AllowedOrigins))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Checks...))
	if d.Metrics != nil {
		r.Get("/metrics", d.Metrics.ServeHTTP)
	}
	if d.API != nil {
		r.Route("/api", d.API.Routes)
	}
	if d.View != nil {
		r.Get("/ws", d.View.ServeHTTP)
	}
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, addr string, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// hijacked websocket conns are not tracked by srv.Shutdown
		if d.View != nil {
			if err := d.View.Shutdown(shutdownCtx); err != nil {
				logger.Warn("view sessions did not drain", "err", err)
			}
		}
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
