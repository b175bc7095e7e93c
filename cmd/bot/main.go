// Command bot runs the trading agent: one decision cycle per invocation by
// default (cron-style deployment), or an internal scheduler with -loop.
// Per-cycle trading errors are logged and alerted but exit 0; only setup
// failures exit non-zero.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"emabot/internal/config"
	"emabot/internal/engine"
	"emabot/internal/exchange"
	"emabot/internal/indicators"
	"emabot/internal/journal"
	"emabot/internal/notify"
	"emabot/internal/orders"
	"emabot/internal/retry"
	"emabot/internal/storage"
	"emabot/internal/strategy"
)

func main() {
	var (
		configPath string
		symbol     string
		interval   string
		loop       bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&symbol, "symbol", "", "Override strategy.symbol")
	flag.StringVar(&interval, "interval", "", "Override strategy.interval")
	flag.BoolVar(&loop, "loop", false, "Run continuously on the candle interval instead of once")
	flag.Parse()

	logger := log.New(os.Stdout, "[BOT] ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if symbol != "" {
		cfg.Strategy.Symbol = symbol
	}
	if interval != "" {
		cfg.Strategy.Interval = interval
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config after flag overrides: %v", err)
	}

	logger.Printf("Starting %s@%s in %s mode against %s",
		cfg.Strategy.Symbol, cfg.Strategy.Interval, cfg.Environment.Mode, cfg.ExchangeBaseURL())
	if !cfg.IsPaperTrading() {
		logger.Println("LIVE TRADING MODE - real orders will be placed")
	}

	cycle, cleanup, err := buildCycle(cfg, logger)
	if err != nil {
		logger.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !loop && !cfg.Schedule.Loop {
		runOnce(ctx, cycle, logger)
		return
	}

	every, err := config.IntervalDuration(cfg.Strategy.Interval)
	if err != nil {
		logger.Fatalf("Cannot schedule loop: %v", err)
	}
	sched := cron.New()
	if _, err := sched.AddFunc("@every "+every.String(), func() {
		runOnce(ctx, cycle, logger)
	}); err != nil {
		logger.Fatalf("Failed to schedule trading cycle: %v", err)
	}
	logger.Printf("Loop mode: running every %s", every)
	sched.Start()

	// First cycle immediately; cron fires only after one full interval.
	runOnce(ctx, cycle, logger)

	<-ctx.Done()
	logger.Println("Shutdown signal received, stopping...")
	stopCtx := sched.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Println("Timed out waiting for running cycle")
	}
	logger.Println("Stopped")
}

// runOnce executes a single cycle. Cycle errors are expected operational
// outcomes, never fatal.
func runOnce(ctx context.Context, cycle *engine.Cycle, logger *log.Logger) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := cycle.Run(ctx); err != nil {
		var ce *engine.CycleError
		if errors.As(err, &ce) {
			logger.Printf("Cycle finished with %s error in %v", ce.Kind, time.Since(start).Round(time.Millisecond))
			return
		}
		logger.Printf("Cycle finished with error in %v: %v", time.Since(start).Round(time.Millisecond), err)
		return
	}
	logger.Printf("Cycle completed in %v", time.Since(start).Round(time.Millisecond))
}

// buildCycle wires the dependency graph from configuration. The returned
// cleanup closes resources owned here (currently the journal).
func buildCycle(cfg *config.Config, logger *log.Logger) (*engine.Cycle, func(), error) {
	cleanup := func() {}

	binance := exchange.NewBinanceClient(
		cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.ExchangeBaseURL(), cfg.ExchangeTimeout())
	client := exchange.NewCircuitBreakerClient(binance)

	market := retry.NewMarketData(client, logger)

	executor := orders.NewExecutor(client, logger, orders.Config{
		LotStep:           cfg.LotStep(),
		PriceTick:         cfg.PriceTick(),
		SlippagePct:       cfg.SlippagePct(),
		CallTimeout:       cfg.ExchangeTimeout(),
		CancelParallelism: orders.DefaultConfig.CancelParallelism,
	})

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}

	policy, err := strategy.NewEMACross(strategy.EMACrossConfig{
		AllocationPct: cfg.Strategy.AllocationPct,
		ATRStopMult:   cfg.Strategy.ATRStopMult,
	})
	if err != nil {
		return nil, nil, err
	}

	var sink notify.Sink = notify.NewLogSink(logger)
	if cfg.Notify.SMTPHost != "" {
		sink = notify.NewEmailSink(notify.EmailConfig{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			From:     cfg.Notify.From,
			To:       cfg.Notify.To,
			Password: cfg.Notify.Password,
		}, logger)
	}

	var jrnl journal.Journal
	if cfg.Journal.Path != "" {
		sq, err := journal.NewSQLite(cfg.Journal.Path)
		if err != nil {
			return nil, nil, err
		}
		jrnl = sq
		cleanup = func() {
			if cerr := sq.Close(); cerr != nil {
				logger.Printf("Failed to close journal: %v", cerr)
			}
		}
	}

	cycle, err := engine.New(market, executor, store, policy, sink, jrnl, logger, engine.Config{
		Symbol:         cfg.Strategy.Symbol,
		Interval:       cfg.Strategy.Interval,
		InitialBalance: cfg.InitialBalance(),
		CandleCount:    cfg.Strategy.CandleCount,
		Indicators: indicators.Params{
			FastSpan:      cfg.Strategy.FastSpan,
			SlowSpan:      cfg.Strategy.SlowSpan,
			ATRWindow:     cfg.Strategy.ATRWindow,
			RollingWindow: cfg.Strategy.RollingWindow,
		},
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return cycle, cleanup, nil
}
