package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"webchat/internal/adapter/gateway"
	"webchat/internal/infra/metrics"
	"webchat/internal/usecase"
)

const statsInterval = time.Minute

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, opts.configPath)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	var (
		collector *metrics.Collector
		ctrlOpts  []usecase.ControllerOption
	)
	if a.cfg.Metrics.Enabled {
		collector = metrics.New()
		ctrlOpts = append(ctrlOpts, usecase.WithObserver(collector))
		if a.breaker != nil {
			collector.WatchBreaker(func() int { return int(a.breaker.State()) })
		}
	}

	sessions := usecase.NewSessionManager(a.defaults(), a.cfg.Server.MaxSessions)
	srv := gateway.NewServer(a.cfg.Server, a.cfg.Metrics.Path, gateway.Deps{
		Sessions:   sessions,
		Controller: usecase.NewController(a.client, a.logger, ctrlOpts...),
		Metrics:    collector,
		Logger:     a.logger,
		Status: gateway.StatusInfo{
			Version:  version,
			Provider: a.provider.Name(),
			Model:    a.cfg.LLM.Model,
			BaseURL:  a.cfg.LLM.BaseURL,
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				attrs := []any{"sessions", sessions.Count()}
				if a.breaker != nil {
					attrs = append(attrs, "breaker", a.breaker.State().String())
				}
				a.logger.Debug("gateway stats", attrs...)
			}
		}
	})

	a.logger.Info("webchat serving",
		"addr", a.cfg.Server.Addr,
		"model", a.cfg.LLM.Model,
		"auth", len(a.cfg.Server.Auth.Tokens) > 0,
	)
	err := g.Wait()
	a.logger.Info("webchat stopped")
	return err
}
