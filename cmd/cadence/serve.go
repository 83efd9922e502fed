package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cadence/internal/handlers"
	"cadence/internal/orchestrator"
	"cadence/pkg/middleware"
	"cadence/pkg/monitoring"
	"cadence/pkg/server"
	"cadence/pkg/version"
)

const requestTimeout = 15 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var loop bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger and optionally run cycles on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if cmd.Flags().Changed("loop") {
				a.cfg.Loop = loop
			}
			return serve(ctx, a, orchestrator.Options{Force: flags.force, Topic: flags.topic})
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "run cycles on the configured interval (overrides RUN_LOOP)")
	return cmd
}

func serve(ctx context.Context, a *app, opts orchestrator.Options) error {
	logger := a.logger

	hc := monitoring.NewHealthChecker(serviceName, version.Version)
	hc.AddCheck("config", monitoring.ConfigurationHealthCheck(a.cfg.HealthConfig()))
	if p, ok := a.store.(pinger); ok {
		hc.AddCheck("state", monitoring.PingHealthCheck("state", p.Ping))
	}

	trigger := orchestrator.NewTrigger(ctx, a.orch, logger)
	if a.cfg.Loop {
		// Two missed ticks means the loop is stuck.
		hc.AddCheck("scheduler", monitoring.RecencyHealthCheck("scheduler", func() time.Time {
			if last := trigger.Status().LastRun; last != nil {
				return *last
			}
			return time.Time{}
		}, 2*a.cfg.Orchestrator.TickInterval))
	}

	router := server.SetupServiceRouter(logger, serviceName, hc, a.metrics)
	router.Use(middleware.TimeoutMiddleware(requestTimeout))
	handlers.NewBotHandler(trigger, a.cfg.LogFile, logger).Register(router)

	srvCfg := server.DefaultConfig(serviceName, a.cfg.Port)
	srvCfg.Port = a.cfg.Port

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, srvCfg, router, logger)
	})
	if a.cfg.Loop {
		runner := orchestrator.NewRunner(trigger, a.orch, logger, opts)
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}

	err := g.Wait()
	trigger.Wait()
	if perr := a.orch.Persist(context.Background()); perr != nil {
		logger.WithError(perr).Error("Failed to persist state on shutdown")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("cadence stopped")
	return nil
}
