package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shouni/saju-soulmate/internal/config"
	"github.com/shouni/saju-soulmate/internal/server"
	"github.com/shouni/saju-soulmate/pkg/session"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Web 画面と API を起動します",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("listen", config.DefaultListen, "待ち受けアドレス")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := session.NewMetrics(reg)
	if err != nil {
		return err
	}

	machine, err := a.newMachine(ctx, metrics)
	if err != nil {
		return err
	}

	srv, err := server.New(ctx, machine, server.Options{
		Listen:    a.cfg.Listen,
		RateLimit: a.cfg.RateLimit,
		CORS:      a.cfg.CORS,
		Gatherer:  reg,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	g.Go(func() error {
		watchTransitions(ctx, a, machine)
		return nil
	})
	return g.Wait()
}

// watchTransitions は状態遷移を debug ログに流します。
func watchTransitions(ctx context.Context, a *app, machine *session.Machine) {
	updates, unsubscribe := machine.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			a.logger.DebugContext(ctx, "状態が遷移しました",
				"status", snap.Status, "generation", snap.Generation, "error", snap.Error)
		}
	}
}
