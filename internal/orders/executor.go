// Package orders provides the order executor: it translates trading
// decisions into exchange orders with normalized error signaling. Every
// operation here is non-idempotent against the exchange; callers must not
// retry blindly.
package orders

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"emabot/internal/exchange"
	"emabot/internal/models"
	"emabot/internal/util"
)

// Config contains executor settings.
type Config struct {
	// LotStep is the exchange's base-asset quantity increment; quantities
	// are floored to it before submission.
	LotStep decimal.Decimal
	// PriceTick is the quote price increment for limit/stop prices.
	PriceTick decimal.Decimal
	// SlippagePct biases the stop-limit price below the trigger so the
	// resting limit fills once triggered: limit = trigger / (1+SlippagePct).
	SlippagePct decimal.Decimal
	// CallTimeout bounds each exchange call.
	CallTimeout time.Duration
	// CancelParallelism bounds concurrent cancellations.
	CancelParallelism int
}

// DefaultConfig mirrors the production lot/tick sizes for USDT pairs.
var DefaultConfig = Config{
	LotStep:           decimal.New(1, -4), // 0.0001
	PriceTick:         decimal.New(1, -2), // 0.01
	SlippagePct:       decimal.New(1, -2), // 0.01
	CallTimeout:       10 * time.Second,
	CancelParallelism: 4,
}

// Result is the outcome of a submitted order, consumed by the engine to
// decide the next position state.
type Result struct {
	Accepted      bool
	OrderID       int64
	ClientOrderID string
	FilledPrice   decimal.Decimal
	FilledQty     decimal.Decimal
	Kind          exchange.ErrorKind
}

// CancelOutcome is the per-order result of a cancellation sweep.
type CancelOutcome struct {
	OrderID int64
	Err     error
}

// Interface is the executor contract the engine depends on.
type Interface interface {
	MarketOrder(ctx context.Context, side models.Side, symbol string, qty decimal.Decimal) (Result, error)
	StopLossOrder(ctx context.Context, symbol string, qty, trigger decimal.Decimal) (Result, error)
	CancelStopLossOrders(ctx context.Context, symbol string) ([]CancelOutcome, error)
	LookupOrder(ctx context.Context, symbol, clientOrderID string) (Result, error)
}

// Executor implements Interface on top of an exchange client.
type Executor struct {
	client exchange.Client
	logger *log.Logger
	config Config
}

var _ Interface = (*Executor)(nil)

// NewExecutor creates an executor. A nil logger falls back to stderr.
func NewExecutor(client exchange.Client, logger *log.Logger, config ...Config) *Executor {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = log.New(os.Stderr, "orders: ", log.LstdFlags)
	}
	if client == nil {
		panic("orders.NewExecutor: client must not be nil")
	}
	if !cfg.LotStep.IsPositive() {
		cfg.LotStep = DefaultConfig.LotStep
	}
	if !cfg.PriceTick.IsPositive() {
		cfg.PriceTick = DefaultConfig.PriceTick
	}
	if cfg.SlippagePct.IsNegative() {
		cfg.SlippagePct = DefaultConfig.SlippagePct
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig.CallTimeout
	}
	if cfg.CancelParallelism <= 0 {
		cfg.CancelParallelism = DefaultConfig.CancelParallelism
	}
	return &Executor{client: client, logger: logger, config: cfg}
}

// MarketOrder submits a market order for qty floored to the lot step.
func (e *Executor) MarketOrder(ctx context.Context, side models.Side, symbol string, qty decimal.Decimal) (Result, error) {
	rounded := util.FloorToStep(qty, e.config.LotStep)
	if !rounded.IsPositive() {
		return Result{Kind: exchange.KindRejected},
			fmt.Errorf("quantity %s rounds to zero at lot step %s", qty, e.config.LotStep)
	}

	clientOrderID := e.clientOrderID("mkt", symbol, string(side), rounded.String())
	e.logger.Printf("Placing market %s %s %s (client order %s)", side, rounded, symbol, clientOrderID)

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	report, err := e.client.PlaceMarketOrder(callCtx, symbol, side, rounded, clientOrderID)
	if err != nil {
		kind := exchange.Classify(err)
		e.logger.Printf("Market %s order failed (%s): %v", side, kind, err)
		return Result{ClientOrderID: clientOrderID, Kind: kind}, err
	}

	res := resultFromReport(report)
	if !res.Accepted {
		return res, fmt.Errorf("market %s order %d not filled: status %s", side, report.OrderID, report.Status)
	}
	e.logger.Printf("Market %s order filled: id=%d qty=%s avg_price=%s",
		side, res.OrderID, res.FilledQty, res.FilledPrice)
	return res, nil
}

// StopLossOrder places a stop-loss-limit sell triggering at trigger. The
// limit price sits below the trigger by the configured slippage so the order
// fills once triggered, accepting price slippage by design.
func (e *Executor) StopLossOrder(ctx context.Context, symbol string, qty, trigger decimal.Decimal) (Result, error) {
	rounded := util.FloorToStep(qty, e.config.LotStep)
	if !rounded.IsPositive() {
		return Result{Kind: exchange.KindRejected},
			fmt.Errorf("stop quantity %s rounds to zero at lot step %s", qty, e.config.LotStep)
	}

	stopPrice := util.FloorToStep(trigger, e.config.PriceTick)
	limitPrice := util.FloorToStep(e.limitFromTrigger(trigger), e.config.PriceTick)
	if !stopPrice.IsPositive() || !limitPrice.IsPositive() {
		return Result{Kind: exchange.KindRejected},
			fmt.Errorf("stop trigger %s produces non-positive prices", trigger)
	}

	clientOrderID := e.clientOrderID("stp", symbol, stopPrice.String(), rounded.String())
	e.logger.Printf("Placing stop-loss %s %s: trigger=%s limit=%s (client order %s)",
		rounded, symbol, stopPrice, limitPrice, clientOrderID)

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	report, err := e.client.PlaceStopLossLimit(callCtx, symbol, rounded, stopPrice, limitPrice, clientOrderID)
	if err != nil {
		kind := exchange.Classify(err)
		e.logger.Printf("Stop-loss order failed (%s): %v", kind, err)
		return Result{ClientOrderID: clientOrderID, Kind: kind}, err
	}

	// A resting stop is accepted, not filled.
	return Result{
		Accepted:      true,
		OrderID:       report.OrderID,
		ClientOrderID: report.ClientOrderID,
	}, nil
}

// CancelStopLossOrders enumerates the symbol's open orders, filters to
// stop-loss type and cancels each independently. One failed cancellation
// never blocks the others; the caller gets per-order outcomes.
func (e *Executor) CancelStopLossOrders(ctx context.Context, symbol string) ([]CancelOutcome, error) {
	listCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	open, err := e.client.GetOpenOrders(listCtx, symbol)
	if err != nil {
		return nil, fmt.Errorf("listing open orders for cancellation: %w", err)
	}

	var stops []exchange.OpenOrder
	for _, o := range open {
		if o.Type == exchange.OrderTypeStopLossLimit {
			stops = append(stops, o)
		}
	}
	if len(stops) == 0 {
		e.logger.Printf("No stop-loss orders to cancel for %s", symbol)
		return nil, nil
	}

	var (
		mu       sync.Mutex
		outcomes = make([]CancelOutcome, 0, len(stops))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.CancelParallelism)
	for _, o := range stops {
		o := o
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, e.config.CallTimeout)
			defer cancel()
			cerr := e.client.CancelOrder(callCtx, symbol, o.OrderID)
			if cerr != nil {
				e.logger.Printf("Failed to cancel stop-loss order %d on %s: %v", o.OrderID, symbol, cerr)
			} else {
				e.logger.Printf("Cancelled stop-loss order %d on %s", o.OrderID, symbol)
			}
			mu.Lock()
			outcomes = append(outcomes, CancelOutcome{OrderID: o.OrderID, Err: cerr})
			mu.Unlock()
			// Partial-failure tolerant: never abort the sweep.
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].OrderID < outcomes[j].OrderID })
	return outcomes, nil
}

// LookupOrder resolves an earlier submission by client order ID, used to
// reconcile ambiguous outcomes. ErrOrderNotFound means the exchange never
// accepted the order.
func (e *Executor) LookupOrder(ctx context.Context, symbol, clientOrderID string) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	report, err := e.client.GetOrderByClientID(callCtx, symbol, clientOrderID)
	if err != nil {
		if errors.Is(err, exchange.ErrOrderNotFound) {
			return Result{ClientOrderID: clientOrderID}, err
		}
		return Result{ClientOrderID: clientOrderID, Kind: exchange.Classify(err)}, err
	}
	return resultFromReport(report), nil
}

func (e *Executor) limitFromTrigger(trigger decimal.Decimal) decimal.Decimal {
	return trigger.Div(decimal.NewFromInt(1).Add(e.config.SlippagePct))
}

// clientOrderID builds a deterministic hash of the order parameters plus a
// random nonce, so duplicate submissions are identifiable after a crash
// while IDs stay unique.
func (e *Executor) clientOrderID(prefix string, parts ...string) string {
	canonical := prefix
	for _, p := range parts {
		canonical += "-" + p
	}
	hash := sha256.Sum256([]byte(canonical))
	nonce := uuid.NewString()[:8]
	return prefix + "-" + hex.EncodeToString(hash[:])[:8] + "-" + nonce
}

func resultFromReport(report *exchange.OrderReport) Result {
	if report == nil {
		return Result{}
	}
	return Result{
		Accepted:      report.Filled(),
		OrderID:       report.OrderID,
		ClientOrderID: report.ClientOrderID,
		FilledPrice:   report.AvgFillPrice,
		FilledQty:     report.ExecutedQty,
	}
}
