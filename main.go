package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"gammaTradeBot/config"
	advisoradapter "gammaTradeBot/internal/adapters/advisor"
	"gammaTradeBot/internal/adapters/gexfeed"
	"gammaTradeBot/internal/adapters/logger"
	"gammaTradeBot/internal/adapters/notify"
	"gammaTradeBot/internal/adapters/sqlite"
	"gammaTradeBot/internal/adapters/telemetry"
	"gammaTradeBot/internal/app"
	"gammaTradeBot/internal/backtest"
	"gammaTradeBot/internal/costmodel"
	"gammaTradeBot/internal/executor"
	"gammaTradeBot/internal/exits"
	"gammaTradeBot/internal/ledger"
	"gammaTradeBot/internal/ports"
	"gammaTradeBot/internal/sizing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()
	appLogger.Info(ctx, "Configuration loaded", map[string]interface{}{
		"symbol":      cfg.Symbol,
		"dbPath":      cfg.DBPath,
		"advisory":    cfg.AdvisorURL != "",
		"webhook":     cfg.WebhookURL != "",
		"metricsAddr": cfg.MetricsAddr,
	})

	// Persistence
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return fmt.Errorf("initializing repository: %w", err)
	}
	defer repo.Close()

	// Seed the capital baseline. A no-op when already seeded; the baseline is
	// immutable afterwards.
	if err := repo.SetStartingCapital(ctx, cfg.StartingCapital); err != nil {
		return fmt.Errorf("seeding starting capital: %w", err)
	}

	// External services
	feed, err := gexfeed.NewClient(gexfeed.Config{
		BaseURL: cfg.MarketDataURL,
		APIKey:  cfg.MarketDataAPIKey,
		Timeout: cfg.RequestTimeout,
		Logger:  appLogger,
	})
	if err != nil {
		return fmt.Errorf("initializing GEX feed client: %w", err)
	}

	var advisorClient ports.Advisor
	if cfg.AdvisorURL != "" {
		advisorClient, err = advisoradapter.NewClient(advisoradapter.Config{
			BaseURL: cfg.AdvisorURL,
			Timeout: cfg.AdvisoryTimeout,
			Logger:  appLogger,
		})
		if err != nil {
			return fmt.Errorf("initializing advisory client: %w", err)
		}
	} else {
		appLogger.Info(ctx, "No advisor URL configured, exits use fallback rules only")
	}

	var notifier ports.NotificationSink = notify.NoopSink{}
	if cfg.WebhookURL != "" {
		notifier, err = notify.NewWebhook(notify.Config{
			URL:     cfg.WebhookURL,
			Timeout: cfg.RequestTimeout,
			Logger:  appLogger,
		})
		if err != nil {
			return fmt.Errorf("initializing webhook sink: %w", err)
		}
	}

	// Core engine components
	cost, err := costmodel.New(costmodel.Config{
		SpreadCapture:        cfg.SpreadCapture,
		ImpactBpsPerContract: cfg.ImpactBpsPerContract,
		MaxImpactBps:         cfg.MaxImpactBps,
		PerContract:          cfg.CommissionPerContract,
		RegulatoryFee:        cfg.RegulatoryFeePerContract,
		MinPerOrder:          cfg.MinCommission,
	})
	if err != nil {
		return fmt.Errorf("initializing cost model: %w", err)
	}

	capitalLedger, err := ledger.New(repo, repo, repo)
	if err != nil {
		return fmt.Errorf("initializing capital ledger: %w", err)
	}

	validator, err := backtest.NewValidator(repo, appLogger, backtest.ValidatorConfig{
		ProvenTradeThreshold: cfg.ProvenTradeThreshold,
		MinWinRate:           cfg.MinWinRate,
	})
	if err != nil {
		return fmt.Errorf("initializing backtest validator: %w", err)
	}

	sizer, err := sizing.New(capitalLedger, validator, appLogger, sizing.Config{
		MaxPositionPct: cfg.MaxPositionPct,
		MaxContracts:   cfg.MaxContracts,
	})
	if err != nil {
		return fmt.Errorf("initializing position sizer: %w", err)
	}

	metrics := telemetry.New()

	exec, err := executor.New(executor.Deps{
		Cost:      cost,
		Ledger:    capitalLedger,
		Validator: validator,
		Sizer:     sizer,
		Pricing:   feed,
		Positions: repo,
		Trades:    repo,
		Audit:     repo,
		Metrics:   metrics,
		Logger:    appLogger,
	}, executor.Config{
		MaxPositionPct:  cfg.MaxPositionPct,
		MaxDeltaPct:     cfg.MaxDeltaPct,
		MaxDailyTrades:  cfg.MaxDailyTrades,
		MaxDailyLossPct: cfg.MaxDailyLossPct,
		MaxDrawdownPct:  cfg.MaxDrawdownPct,
	})
	if err != nil {
		return fmt.Errorf("initializing trade executor: %w", err)
	}

	exitEngine, err := exits.New(advisorClient, appLogger, exits.Config{
		HardStopPct:     cfg.HardStopPct,
		AdvisoryTimeout: cfg.AdvisoryTimeout,
	})
	if err != nil {
		return fmt.Errorf("initializing exit engine: %w", err)
	}

	service, err := app.NewService(app.Deps{
		Config:     cfg,
		Logger:     appLogger,
		Market:     feed,
		Pricing:    feed,
		Cost:       cost,
		Executor:   exec,
		ExitEngine: exitEngine,
		Ledger:     capitalLedger,
		Validator:  validator,
		Positions:  repo,
		Trades:     repo,
		Audit:      repo,
		Notifier:   notifier,
		Metrics:    metrics,
	})
	if err != nil {
		return fmt.Errorf("initializing service: %w", err)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, metrics, appLogger)
	}

	return service.Run(ctx)
}

// serveMetrics exposes the Prometheus registry. Failures are logged, not
// fatal; the engine keeps trading without the scrape endpoint.
func serveMetrics(addr string, metrics *telemetry.Metrics, log ports.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info(context.Background(), "Metrics listener starting", map[string]interface{}{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error(context.Background(), err, "Metrics listener stopped")
	}
}
