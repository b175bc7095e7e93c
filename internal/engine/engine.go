// Package engine runs the per-cycle trading state machine: reconcile any
// pending order, refresh market data and indicators, consult the policy, act
// on its decision and commit the resulting position state with optimistic
// concurrency. The engine assumes at-least-once invocation and exclusive
// write ownership of its state key; repeated runs against unchanged inputs
// must not duplicate orders.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"emabot/internal/exchange"
	"emabot/internal/indicators"
	"emabot/internal/journal"
	"emabot/internal/models"
	"emabot/internal/notify"
	"emabot/internal/orders"
	"emabot/internal/storage"
	"emabot/internal/strategy"
)

// Config holds the per-instance trading parameters.
type Config struct {
	Symbol         string
	Interval       string
	InitialBalance decimal.Decimal
	// CandleCount is the number of closed candles requested per cycle; one
	// extra is fetched and dropped to exclude the still-forming bar.
	CandleCount int
	Indicators  indicators.Params
}

// Validate checks the configuration against the indicator requirements.
func (c Config) Validate() error {
	if c.Symbol == "" || c.Interval == "" {
		return fmt.Errorf("symbol and interval are required")
	}
	if err := c.Indicators.Validate(); err != nil {
		return err
	}
	if c.CandleCount < c.Indicators.MinCandles() {
		return fmt.Errorf("candle count %d below indicator minimum %d",
			c.CandleCount, c.Indicators.MinCandles())
	}
	if c.InitialBalance.IsNegative() {
		return fmt.Errorf("initial balance %s is negative", c.InitialBalance)
	}
	return nil
}

// Cycle wires the engine's dependencies together. All side effects flow
// through the injected interfaces, so tests drive the full state machine
// with fakes.
type Cycle struct {
	market exchange.MarketData
	orders orders.Interface
	store  storage.Interface
	policy strategy.Policy
	sink   notify.Sink
	jrnl   journal.Journal
	logger *log.Logger
	config Config
	now    func() time.Time
}

// New creates a Cycle. The journal may be nil; a nil logger falls back to
// stderr and a nil sink to log-only alerts.
func New(market exchange.MarketData, ord orders.Interface, store storage.Interface,
	policy strategy.Policy, sink notify.Sink, jrnl journal.Journal,
	logger *log.Logger, config Config) (*Cycle, error) {
	if market == nil || ord == nil || store == nil || policy == nil {
		return nil, fmt.Errorf("engine: market, orders, store and policy are required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "engine: ", log.LstdFlags)
	}
	if sink == nil {
		sink = notify.NewLogSink(logger)
	}
	return &Cycle{
		market: market,
		orders: ord,
		store:  store,
		policy: policy,
		sink:   sink,
		jrnl:   jrnl,
		logger: logger,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run executes one full trading cycle. The returned error (if any) is a
// *CycleError; callers log it and move on, they do not crash the process.
func (c *Cycle) Run(ctx context.Context) error {
	key := models.StateKey(c.config.Symbol, c.config.Interval)

	state, version, err := c.loadOrInit(key)
	if err != nil {
		return c.fail(cycleErr(KindPersistence, "load state", err))
	}

	// Any pending order must be resolved before new decisions are made.
	if state.Pending != nil {
		state, version, err = c.reconcilePending(ctx, key, state, version)
		if err != nil {
			var ce *CycleError
			if errors.As(err, &ce) {
				return c.fail(ce)
			}
			return c.fail(cycleErr(KindOrderAmbiguous, "reconcile pending order", err))
		}
	}

	candles, err := c.fetchClosedCandles(ctx)
	if err != nil {
		return c.fail(cycleErr(KindDataFetch, "fetch candles", err))
	}

	snap, err := indicators.Compute(candles, c.config.Indicators)
	if err != nil {
		if errors.Is(err, indicators.ErrInsufficientData) {
			// Not actionable remotely; wait for more history.
			c.logger.Printf("Skipping cycle: %v", err)
			return cycleErr(KindInsufficientData, "compute indicators", err)
		}
		return c.fail(cycleErr(KindPolicy, "compute indicators", err))
	}

	price, err := c.market.GetPrice(ctx, c.config.Symbol)
	if err != nil {
		return c.fail(cycleErr(KindDataFetch, "fetch price", err))
	}
	c.logger.Printf("Cycle %s@%s: price=%s ema_fast=%.4f ema_slow=%.4f in_position=%t",
		c.config.Symbol, c.config.Interval, price, snap.EMAFast, snap.EMASlow, state.InPosition)

	decision, err := c.policy.Decide(snap, *state, price)
	if err != nil {
		return c.fail(cycleErr(KindPolicy, "policy decision", err))
	}
	c.logger.Printf("Policy %s decided %s: %s", c.policy.Name(), decision.Action, decision.Reason)

	switch decision.Action {
	case strategy.Enter:
		return c.applyEnter(ctx, key, state, version, decision)
	case strategy.Exit:
		return c.applyExit(ctx, key, state, version)
	default:
		state.Hold(c.now())
		if _, err := c.commit(key, version, state, nil); err != nil {
			return c.fail(err.(*CycleError))
		}
		return nil
	}
}

func (c *Cycle) loadOrInit(key string) (*models.PositionState, int64, error) {
	state, version, err := c.store.Load(key)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Printf("No prior state for %s, starting with balance %s",
			key, c.config.InitialBalance)
		return models.NewPositionState(c.config.Symbol, c.config.Interval, c.config.InitialBalance), 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return state, version, nil
}

// reconcilePending resolves a stored pending order against the exchange. The
// reconciled state is committed immediately so an executed fill is durable
// before any new decision this cycle.
func (c *Cycle) reconcilePending(ctx context.Context, key string, state *models.PositionState, version int64) (*models.PositionState, int64, error) {
	pending := *state.Pending
	c.logger.Printf("Reconciling pending %s order %s (submitted %s)",
		pending.Side, pending.ClientOrderID, pending.SubmittedAt.Format(time.RFC3339))

	res, err := c.orders.LookupOrder(ctx, c.config.Symbol, pending.ClientOrderID)
	switch {
	case errors.Is(err, exchange.ErrOrderNotFound):
		// The exchange never accepted the submission; nothing executed.
		c.logger.Printf("Pending order %s not found on exchange, clearing marker", pending.ClientOrderID)
		state.ClearPending(c.now())
	case err != nil:
		// Still ambiguous. Refuse to trade until a lookup succeeds.
		return nil, 0, cycleErr(KindOrderAmbiguous, "reconcile pending order",
			fmt.Errorf("looking up order %s: %w", pending.ClientOrderID, err))
	case res.Accepted:
		c.logger.Printf("Pending %s order %s filled: qty=%s price=%s",
			pending.Side, pending.ClientOrderID, res.FilledQty, res.FilledPrice)
		if pending.Side == models.SideBuy {
			state.EnterLong(res.FilledPrice, res.FilledQty, pending.StopLoss, c.now())
		} else {
			state.ExitLong(res.FilledPrice, res.FilledQty, c.now())
		}
		// The fill is confirmed: commit gets the same retry-and-escalate
		// treatment as a fresh fill. The stop is armed only once the commit
		// lands; otherwise the surviving marker would re-arm a duplicate stop
		// on the next reconciliation.
		newVersion, cerr := c.commit(key, version, state, &res)
		if cerr != nil {
			return nil, 0, cerr
		}
		if pending.Side == models.SideBuy {
			c.armStopLoss(ctx, res.FilledQty, pending.StopLoss)
			c.journalTrade(string(models.ActionBuy), res, state)
		} else {
			c.journalTrade(string(models.ActionSell), res, state)
		}
		return state, newVersion, nil
	default:
		// Order exists but did not fill (canceled, expired or rejected after
		// acceptance). Market orders never rest, so the effect never happened.
		c.logger.Printf("Pending order %s terminal without fill, clearing marker", pending.ClientOrderID)
		state.ClearPending(c.now())
	}

	newVersion, cerr := c.commit(key, version, state, nil)
	if cerr != nil {
		return nil, 0, cerr
	}
	return state, newVersion, nil
}

func (c *Cycle) fetchClosedCandles(ctx context.Context) ([]models.Candle, error) {
	// One extra so the still-forming bar can be dropped.
	candles, err := c.market.GetCandles(ctx, c.config.Symbol, c.config.Interval, c.config.CandleCount+1)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("exchange returned no candles for %s@%s", c.config.Symbol, c.config.Interval)
	}
	return candles[:len(candles)-1], nil
}

func (c *Cycle) applyEnter(ctx context.Context, key string, state *models.PositionState, version int64, decision strategy.Decision) error {
	if state.InPosition {
		return c.fail(cycleErr(KindPolicy, "apply decision",
			fmt.Errorf("policy requested entry while already in position")))
	}
	if !decision.Quantity.IsPositive() {
		return c.fail(cycleErr(KindPolicy, "apply decision",
			fmt.Errorf("entry quantity %s is not positive", decision.Quantity)))
	}

	res, err := c.orders.MarketOrder(ctx, models.SideBuy, c.config.Symbol, decision.Quantity)
	if err != nil {
		if res.Kind == exchange.KindAmbiguous {
			return c.markAmbiguous(key, state, version, models.SideBuy, decision.Quantity, decision.StopLoss, res.ClientOrderID, err)
		}
		// Definitive failure: no effect happened, state stays untouched.
		return c.fail(cycleErr(orderKind(res.Kind), "market buy", err))
	}

	state.EnterLong(res.FilledPrice, res.FilledQty, decision.StopLoss, c.now())
	c.logger.Printf("Entered %s: qty=%s price=%s stop=%s balance=%s",
		c.config.Symbol, res.FilledQty, res.FilledPrice, decision.StopLoss, state.Balance)

	c.armStopLoss(ctx, res.FilledQty, decision.StopLoss)

	if _, err := c.commit(key, version, state, &res); err != nil {
		return c.fail(err.(*CycleError))
	}
	c.journalTrade(string(models.ActionBuy), res, state)
	return nil
}

func (c *Cycle) applyExit(ctx context.Context, key string, state *models.PositionState, version int64) error {
	if !state.InPosition {
		return c.fail(cycleErr(KindPolicy, "apply decision",
			fmt.Errorf("policy requested exit while flat")))
	}

	// Resting stops must go first or the sell can double-fill.
	outcomes, err := c.orders.CancelStopLossOrders(ctx, c.config.Symbol)
	if err != nil {
		return c.fail(cycleErr(KindOrderNetwork, "cancel stop-loss orders", err))
	}
	for _, o := range outcomes {
		if o.Err != nil {
			return c.fail(cycleErr(KindOrderNetwork, "cancel stop-loss orders",
				fmt.Errorf("order %d: %w", o.OrderID, o.Err)))
		}
	}

	res, err := c.orders.MarketOrder(ctx, models.SideSell, c.config.Symbol, state.Shares)
	if err != nil {
		if res.Kind == exchange.KindAmbiguous {
			return c.markAmbiguous(key, state, version, models.SideSell, state.Shares, decimal.Zero, res.ClientOrderID, err)
		}
		return c.fail(cycleErr(orderKind(res.Kind), "market sell", err))
	}

	state.ExitLong(res.FilledPrice, res.FilledQty, c.now())
	c.logger.Printf("Exited %s: qty=%s price=%s balance=%s",
		c.config.Symbol, res.FilledQty, res.FilledPrice, state.Balance)

	if _, err := c.commit(key, version, state, &res); err != nil {
		return c.fail(err.(*CycleError))
	}
	c.journalTrade(string(models.ActionSell), res, state)
	return nil
}

// markAmbiguous persists the unknown-outcome marker so the next cycle can
// reconcile against the exchange instead of resubmitting.
func (c *Cycle) markAmbiguous(key string, state *models.PositionState, version int64,
	side models.Side, qty, stopLoss decimal.Decimal, clientOrderID string, cause error) error {
	state.MarkPending(models.PendingOrder{
		ClientOrderID: clientOrderID,
		Side:          side,
		Quantity:      qty,
		StopLoss:      stopLoss,
		SubmittedAt:   c.now(),
	}, c.now())
	if _, err := c.commit(key, version, state, nil); err != nil {
		return c.fail(err.(*CycleError))
	}
	return c.fail(cycleErr(KindOrderAmbiguous, fmt.Sprintf("market %s", side),
		fmt.Errorf("outcome unknown, marked pending for reconciliation: %w", cause)))
}

// armStopLoss places the protective stop after a confirmed entry. The
// position stays recorded even if this fails; a missing stop is alert-worthy
// but not state-corrupting.
func (c *Cycle) armStopLoss(ctx context.Context, qty, trigger decimal.Decimal) {
	if !trigger.IsPositive() {
		c.logger.Printf("No stop-loss trigger for %s entry, skipping protective order", c.config.Symbol)
		return
	}
	if _, err := c.orders.StopLossOrder(ctx, c.config.Symbol, qty, trigger); err != nil {
		c.alert("Stop-loss placement failed",
			fmt.Sprintf("Entered %s qty=%s but stop-loss at %s failed: %v\nPosition is UNPROTECTED.",
				c.config.Symbol, qty, trigger, err))
		c.journalError("arm stop-loss", err)
		return
	}
	c.logger.Printf("Stop-loss armed for %s at %s", c.config.Symbol, trigger)
}

// commit persists state at expectedVersion. When fill is non-nil an executed
// order is at stake, so a failed write is retried once and then escalated
// with enough detail to repair the store by hand.
func (c *Cycle) commit(key string, expectedVersion int64, state *models.PositionState, fill *orders.Result) (int64, error) {
	newVersion, err := c.store.Commit(key, expectedVersion, state)
	if err == nil {
		return newVersion, nil
	}
	if errors.Is(err, storage.ErrConflict) {
		return 0, cycleErr(KindConflict, "commit state",
			fmt.Errorf("version %d superseded, another writer owns %s: %w", expectedVersion, key, err))
	}
	if fill != nil {
		c.logger.Printf("Commit failed after fill, retrying once: %v", err)
		if newVersion, rerr := c.store.Commit(key, expectedVersion, state); rerr == nil {
			return newVersion, nil
		}
		return 0, cycleErr(KindPersistence, "commit state",
			fmt.Errorf("state lost after fill (order=%d price=%s qty=%s): %w",
				fill.OrderID, fill.FilledPrice, fill.FilledQty, err))
	}
	return 0, cycleErr(KindPersistence, "commit state", err)
}

// fail routes a cycle error through exactly one alert plus the journal, then
// returns it.
func (c *Cycle) fail(ce *CycleError) error {
	c.logger.Printf("Cycle error: %v", ce)
	c.alert(fmt.Sprintf("Trading cycle error (%s)", ce.Kind),
		fmt.Sprintf("%s %s: %v", c.config.Symbol, c.config.Interval, ce))
	c.journalError(ce.Stage, ce.Err)
	return ce
}

func (c *Cycle) alert(subject, body string) {
	c.sink.Alert(subject, body)
}

func (c *Cycle) journalTrade(action string, res orders.Result, state *models.PositionState) {
	if c.jrnl == nil {
		return
	}
	err := c.jrnl.RecordTrade(journal.TradeRecord{
		Symbol:    c.config.Symbol,
		Interval:  c.config.Interval,
		Action:    action,
		Price:     res.FilledPrice,
		Quantity:  res.FilledQty,
		Balance:   state.Balance,
		StopLoss:  state.StopLoss,
		OrderID:   res.OrderID,
		Timestamp: c.now(),
	})
	if err != nil {
		c.logger.Printf("Failed to journal %s trade: %v", action, err)
	}
}

func (c *Cycle) journalError(stage string, err error) {
	if c.jrnl == nil || err == nil {
		return
	}
	jerr := c.jrnl.RecordError(journal.ErrorRecord{
		Symbol:    c.config.Symbol,
		Interval:  c.config.Interval,
		Stage:     stage,
		Message:   err.Error(),
		Timestamp: c.now(),
	})
	if jerr != nil {
		c.logger.Printf("Failed to journal error: %v", jerr)
	}
}

func orderKind(k exchange.ErrorKind) Kind {
	switch k {
	case exchange.KindRateLimited:
		return KindOrderRateLimited
	case exchange.KindRejected:
		return KindOrderRejected
	default:
		return KindOrderNetwork
	}
}
