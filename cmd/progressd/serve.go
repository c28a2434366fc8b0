package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/artloop/progression-engine/internal/interface/http"
	"github.com/artloop/progression-engine/pkg/logger"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				return c.serve(ctx, a)
			})
		},
	}
}

func (c *cli) serve(ctx context.Context, a *app) error {
	cfg := a.cfg

	srvCfg := httpapi.DefaultConfig()
	srvCfg.Host = cfg.HTTP.Host
	srvCfg.Port = cfg.HTTP.Port
	srvCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	srvCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	srvCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	deps := httpapi.Dependencies{
		Engine:        a.engine,
		HealthChecker: a.health,
		Logger:        a.log.With(logger.Component("http")),
		Version:       cfg.App.Version,
	}
	if a.metrics != nil {
		deps.Metrics = a.metrics.Handler()
	}
	srv := httpapi.NewServer(srvCfg, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down", logger.Duration("timeout", cfg.App.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
