package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"cadence/internal/botconfig"
	"cadence/internal/generator"
	"cadence/internal/orchestrator"
	"cadence/internal/poster"
	"cadence/internal/scraper"
	"cadence/internal/state"
	"cadence/pkg/clients"
	"cadence/pkg/config"
	"cadence/pkg/llm"
	"cadence/pkg/logging"
	"cadence/pkg/monitoring"
	"cadence/pkg/version"
)

const serviceName = "cadence"

// app holds the wired collaborators for one process.
type app struct {
	cfg     botconfig.Config
	logger  *logrus.Logger
	metrics *monitoring.MetricsCollector
	store   state.Store
	scraper *scraper.BrowserScraper
	poster  *poster.XPoster
	orch    *orchestrator.Orchestrator

	closers []io.Closer
}

// loadConfig reads .env files, the environment and the YAML overlay.
func loadConfig(flags *rootFlags) (botconfig.Config, *logrus.Logger) {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)
	cfg := botconfig.Load()
	cfg.Apply(flags.v)
	return cfg, logger
}

func newApp(ctx context.Context, flags *rootFlags, requireCookies bool) (*app, error) {
	cfg, logger := loadConfig(flags)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if cfg.LogFile != "" {
		fileLogger, closer, err := logging.NewLoggerWithFile(serviceName, cfg.LogFile)
		if err != nil {
			logger.WithError(err).Warn("File logging disabled")
			a.cfg.LogFile = ""
		} else {
			a.logger = fileLogger
			a.closers = append(a.closers, closer)
		}
	}
	logger = a.logger
	logger.WithField("version", version.GetInfo().String()).Info("Starting cadence")

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	gen := generator.New(provider, generator.DefaultRetryPolicy(), logger)

	breaker := clients.DefaultCircuitBreakerConfig()
	breaker.Name = "x-api"
	breaker.Logger = logger
	a.poster = poster.NewXPoster(poster.XConfig{
		BaseURL:     cfg.XBaseURL,
		Credentials: cfg.X,
		Retry:       poster.DefaultRetryPolicy(),
		Breaker:     breaker,
	}, logger)

	a.scraper = scraper.NewBrowserScraper(cfg.Scraper, logger)
	a.closers = append(a.closers, a.scraper)
	if err := a.scraper.Validate(); err != nil {
		if requireCookies {
			a.Close()
			return nil, err
		}
		logger.WithError(err).Warn("Engagement will find no candidates until session cookies are configured")
	}

	a.store, err = state.Open(ctx, cfg.State, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := a.store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.metrics = monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit)
	a.orch = orchestrator.New(cfg.Orchestrator, a.store, gen, a.scraper, a.poster, logger,
		orchestrator.WithMetrics(orchestrator.NewBotMetrics(a.metrics)))
	a.orch.Load(ctx)
	return a, nil
}

// Close releases the browser, state backend and log file in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.WithError(err).Warn("Close failed")
		}
	}
	a.closers = nil
}
