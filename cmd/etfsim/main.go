// Package main is the entry point for the ETF stress simulator.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	arbApp "github.com/quantedu/etf-stress-sim/business/arbitrage/app"
	bookApp "github.com/quantedu/etf-stress-sim/business/book/app"
	bookDomain "github.com/quantedu/etf-stress-sim/business/book/domain"
	liqApp "github.com/quantedu/etf-stress-sim/business/liquidity/app"
	mmApp "github.com/quantedu/etf-stress-sim/business/marketmaker/app"
	mmInfra "github.com/quantedu/etf-stress-sim/business/marketmaker/infra"
	simApp "github.com/quantedu/etf-stress-sim/business/simulation/app"
	simDomain "github.com/quantedu/etf-stress-sim/business/simulation/domain"
	simInfra "github.com/quantedu/etf-stress-sim/business/simulation/infra"
	"github.com/quantedu/etf-stress-sim/internal/apm"
	"github.com/quantedu/etf-stress-sim/internal/config"
	"github.com/quantedu/etf-stress-sim/internal/logging"
	"github.com/quantedu/etf-stress-sim/internal/metrics"
	"github.com/quantedu/etf-stress-sim/internal/ratelimit"
	"github.com/quantedu/etf-stress-sim/internal/simclock"
	"github.com/quantedu/etf-stress-sim/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	scenarioPath := flag.String("scenario", "", "Path to YAML scenario (default: built-in flash crash)")
	resultsPath := flag.String("out", "", "Write per-tick results as JSONL to this file")
	cliMode := flag.Bool("cli", false, "Run with console logs instead of the TUI")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("etfsim %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if *cliMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, *configPath, *scenarioPath, *resultsPath, !*cliMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, scenarioPath, resultsPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Simulation.TUIMode = tuiMode
	if resultsPath != "" {
		cfg.Simulation.ResultsPath = resultsPath
	}

	var log *zap.Logger
	if tuiMode {
		// The TUI owns the terminal; logs are suppressed.
		log = logging.NewWriter(io.Discard, cfg.App.LogLevel)
	} else {
		log, err = logging.New(cfg.App.LogLevel, cfg.App.Environment)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		log.Info("starting ETF stress simulator",
			zap.String("version", version),
			zap.String("environment", cfg.App.Environment),
		)
	}
	defer log.Sync()

	traceProvider, err := apm.New(apm.Provider(cfg.Telemetry.TraceProvider), cfg.App.Name, log)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer traceProvider.Stop(context.Background())

	registry := prometheus.NewRegistry()
	sim := metrics.NewSim(registry, cfg.Book.Symbol)
	if cfg.Telemetry.MetricsEnabled {
		srv := metrics.NewServer(cfg.Telemetry.MetricsPort, registry)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	scenario, err := loadScenario(scenarioPath, cfg)
	if err != nil {
		return err
	}

	driver, reporter, err := buildDriver(cfg, sim, traceProvider, tuiMode, log)
	if err != nil {
		return err
	}
	defer reporter.Close()

	if !tuiMode {
		summary, err := driver.Run(ctx, scenario)
		if err != nil {
			return err
		}
		log.Info("summary",
			zap.Int("ticks", summary.Ticks),
			zap.Int("halts", summary.Halts),
			zap.Int("quote_withdrawals", summary.Withdrawals),
			zap.Int("cascade_fills", summary.CascadeFills),
			zap.String("low_print", summary.MinTradePrice.StringFixed(2)),
			zap.String("final_pnl", summary.FinalPnL.StringFixed(2)),
			zap.Int("arb_blocked", summary.BlockedOpps),
		)
		return nil
	}

	// TUI mode: the run feeds the dashboard from a goroutine and the
	// program owns the terminal until the user quits.
	go func() {
		summary, runErr := driver.Run(ctx, scenario)
		ui.Send(ui.RunDoneMsg{Summary: summary, Err: runErr})
	}()
	return ui.Run(cfg.Book.Symbol)
}

func loadScenario(path string, cfg *config.Config) (*simDomain.Scenario, error) {
	if path == "" {
		return simInfra.DefaultScenario(cfg.Book.Symbol, cfg.Book.FairValue), nil
	}
	return simInfra.LoadScenario(path)
}

func buildDriver(
	cfg *config.Config,
	sim *metrics.Sim,
	traces apm.TraceProvider,
	tuiMode bool,
	log *zap.Logger,
) (*simApp.Driver, simApp.Reporter, error) {
	book, err := bookApp.New(
		bookApp.Config{
			Symbol:          cfg.Book.Symbol,
			FairValue:       cfg.Book.FairValueDecimal(),
			NormalSpreadBps: cfg.Book.NormalSpreadBps,
			DepthLevels:     cfg.Book.DepthLevels,
			LevelSize:       cfg.Book.LevelSize,
			TickSize:        cfg.Book.TickSizeDecimal(),
			FloorPrice:      cfg.Book.FloorPriceDecimal(),
		},
		bookDomain.BandParams{
			Tier:      cfg.Halt.Tier,
			TimeOfDay: bookDomain.TimeOfDayCategory(cfg.Simulation.StartTime()),
			Leverage:  cfg.Halt.Leverage,
		},
		cfg.Halt.CureWindow,
		cfg.Halt.HaltDuration,
		log,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("building book: %w", err)
	}

	engine := mmApp.New(mmApp.Config{
		InitialCapital:         decimal.NewFromFloat(cfg.MarketMaker.InitialCapital),
		MaxInventory:           cfg.MarketMaker.MaxInventory,
		QuoteSize:              cfg.MarketMaker.QuoteSize,
		BaseSpreadBps:          cfg.MarketMaker.BaseSpreadBps,
		WithdrawalThresholdBps: cfg.MarketMaker.WithdrawalThresholdBps,
		PartialMultiplier:      cfg.MarketMaker.PartialHedgeMultiplier,
		NoHedgeMultiplier:      cfg.MarketMaker.NoHedgeMultiplier,
		SkewBps:                cfg.MarketMaker.SkewBpsPerInventory,
		VolReference:           cfg.MarketMaker.VolReference,
	}, log)

	evaluator := arbApp.New(arbApp.Config{
		Symbol:             cfg.Book.Symbol,
		TransactionCostBps: cfg.Arbitrage.TransactionCostBps,
		CreationUnitSize:   cfg.Arbitrage.CreationUnitSize,
		MinProfitThreshold: cfg.Arbitrage.MinProfitFraction,
		HedgeableThreshold: cfg.Arbitrage.HedgeableThreshold,
		ShockPct:           cfg.Arbitrage.ShockPct,
		StaleReferenceAge:  cfg.Arbitrage.StaleReferenceAge,
		AvailableCapital:   decimal.NewFromFloat(cfg.Arbitrage.AvailableCapital),
	}, log)

	var reporters []simApp.Reporter
	if tuiMode {
		reporters = append(reporters, simInfra.NewTUIReporter())
	} else {
		reporters = append(reporters, simInfra.NewConsoleReporter(log))
	}
	if cfg.Simulation.ResultsPath != "" {
		f, err := os.Create(cfg.Simulation.ResultsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("creating results file: %w", err)
		}
		reporters = append(reporters, simInfra.NewJSONLReporter(f))
	}
	reporter := simInfra.NewMultiReporter(reporters...)

	// Pace replay only when someone is watching.
	var pacer *ratelimit.Pacer
	if tuiMode && cfg.Simulation.ReplayRate > 0 {
		pacer = ratelimit.New(cfg.Simulation.ReplayRate)
	}

	driver, err := simApp.NewDriver(simApp.Deps{
		Book:      book,
		Engine:    engine,
		Hedge:     mmInfra.NewHedgeMonitor(log),
		Evaluator: evaluator,
		Analytics: liqApp.New(10, cfg.Book.GapThresholdPct),
		Clock:     simclock.New(cfg.Simulation.StartTime(), cfg.Simulation.TickInterval),
		Pacer:     pacer,
		Sim:       sim,
		Tracer:    traces.Tracer(),
		Reporter:  reporter,
		Log:       log,
	}, cfg.Book.GapThresholdPct)
	if err != nil {
		return nil, nil, err
	}
	return driver, reporter, nil
}
