package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/executor"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/observability"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/router"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/server"
	"github.com/mohammed-shakir/freeze-risk-map/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/freeze-risk-map/internal/metrics"
	"github.com/mohammed-shakir/freeze-risk-map/internal/palette"
	"github.com/mohammed-shakir/freeze-risk-map/internal/view"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket map sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides ADDR")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	observability.SetProfile(cfg.Profile)
	observability.ExposeBuildInfo(Version)

	prof, err := palette.LookupProfile(cfg.Profile)
	if err != nil {
		return err
	}

	a.log.Info("starting freezemap",
		"addr", cfg.Addr,
		"version", Version,
		"profile", prof.Name,
		"table", cfg.CartoTable,
		"cache", cfg.Cache.Enabled,
		"invalidation", cfg.Invalidation.Enabled)

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	fs, err := a.buildFetchStack(startCtx, true)
	cancel()
	if err != nil {
		return err
	}
	defer fs.close()

	api, err := router.New(router.Config{
		Fetcher:        fs.fetcher,
		Profile:        prof,
		Table:          cfg.CartoTable,
		ReferenceLayer: cfg.ReferenceLayer,
		CutoffRange:    cfg.CutoffRange,
		H3Res:          cfg.H3Res,
		Logger:         a.log,
	})
	if err != nil {
		return err
	}
	vh, err := view.NewHandler(view.Config{
		Fetcher:        executor.FeatureFetcher{SQL: fs.fetcher},
		Profile:        prof,
		Table:          cfg.CartoTable,
		ReferenceLayer: cfg.ReferenceLayer,
		CutoffRange:    cfg.CutoffRange,
		H3Res:          cfg.H3Res,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         a.log,
	})
	if err != nil {
		return err
	}

	deps := server.Deps{
		API:            api,
		View:           vh,
		Checks:         fs.checks,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if cfg.MetricsEnabled {
		deps.Metrics = metrics.Init(metrics.Config{Build: metrics.BuildInfo{Version: Version}}).Handler()
	}

	if cfg.Invalidation.Enabled && fs.cache != nil {
		kc := kafkaconsumer.NewConfig(cfg.Invalidation.Brokers, cfg.Invalidation.Topic, cfg.Invalidation.GroupID)
		zl := a.zl.With().Str("component", "invalidation").Logger()
		consumer := kafkaconsumer.New(kc, a.log, &zl, fs.cache)
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("invalidation consumer stopped", "err", err)
			}
		}()
	}

	return server.Run(ctx, cfg.Addr, a.log, deps)
}
