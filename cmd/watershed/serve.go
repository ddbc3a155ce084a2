package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/watershed-gateway/internal/clicksource"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/config"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/server"
	"github.com/mohammed-shakir/watershed-gateway/internal/metrics"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the map session over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.load()
			if addr != "" {
				cfg.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $ADDR or :8090)")
	return cmd
}

func runServe(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := newLogger(cfg, "watershed", os.Stdout)
	log.Info("starting watershed gateway",
		"addr", cfg.Addr,
		"version", version,
		"auth_mode", cfg.Auth.Mode,
		"service", cfg.ServiceURL(),
		"click_source", cfg.Clicks.Source)

	// jobs outlive the request that started them but not the process
	a, err := newApp(ctx, ctx, cfg, log)
	if err != nil {
		log.Error("session setup failed", "err", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown", "err", err)
		}
	}()

	if cfg.Clicks.Source == config.ClickSourceKafka {
		cc := clicksource.DefaultConfig(config.SplitCSV(cfg.Clicks.Brokers), cfg.Clicks.Topic, cfg.Clicks.GroupID)
		consumer := clicksource.New(cc, log.With("component", "clicksource"), a.orch)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("click source stopped", "err", err)
			}
		}()
	}

	p := metrics.Init(metrics.Config{
		Enabled: cfg.MetricsEnabled,
		Build: metrics.BuildInfo{
			Version:   version,
			Revision:  commit,
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: buildDate,
		},
	})

	err = server.Run(ctx, cfg, log, server.Deps{
		Clicker:   a.orch,
		Session:   a.session,
		View:      a.view,
		Readiness: a,
		Metrics:   p.Handler(),
		DefaultSR: model.SpatialReference{WKID: cfg.View.WKID},
	})
	if err != nil {
		log.Error("server exited with error", "err", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
