package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the last action recorded on a position state record.
type Action string

const (
	// ActionInit marks a freshly created state record that has never traded.
	ActionInit Action = "INIT"
	// ActionBuy marks a confirmed market buy (position entered).
	ActionBuy Action = "BUY"
	// ActionSell marks a confirmed market sell (position exited).
	ActionSell Action = "SELL"
	// ActionHold marks a cycle that placed no orders.
	ActionHold Action = "HOLD"
)

// Side is an order side at the exchange boundary.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PendingOrder records an order whose outcome is unknown (submission timed
// out or connectivity was lost). The next cycle must reconcile it against the
// exchange before making any new decision.
type PendingOrder struct {
	ClientOrderID string          `json:"client_order_id"`
	Side          Side            `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	// StopLoss is the stop price the decision asked for; armed only once a
	// pending BUY is confirmed filled.
	StopLoss    decimal.Decimal `json:"stop_loss"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// PositionState is the single persisted record per (symbol, interval).
// It is exclusively owned by its state store key; the engine works on a
// transient copy for the duration of one cycle.
type PositionState struct {
	Symbol     string          `json:"symbol"`
	Interval   string          `json:"interval"`
	InPosition bool            `json:"in_position"`
	Balance    decimal.Decimal `json:"balance"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	Shares     decimal.Decimal `json:"shares"`
	LastAction Action          `json:"last_action"`
	LastUpdate time.Time       `json:"last_update"`
	Pending    *PendingOrder   `json:"pending,omitempty"`
}

// NewPositionState creates the initial record for a key that has never been
// traded: flat, with the configured starting quote balance.
func NewPositionState(symbol, interval string, initialBalance decimal.Decimal) *PositionState {
	return &PositionState{
		Symbol:     symbol,
		Interval:   interval,
		InPosition: false,
		Balance:    initialBalance,
		EntryPrice: decimal.Zero,
		ExitPrice:  decimal.Zero,
		StopLoss:   decimal.Zero,
		Shares:     decimal.Zero,
		LastAction: ActionInit,
		LastUpdate: time.Now().UTC(),
	}
}

// StateKey builds the composite store key for a symbol and interval,
// e.g. "ETHUSDT_15m".
func StateKey(symbol, interval string) string {
	return symbol + "_" + interval
}

// Key returns the store key for this record.
func (s *PositionState) Key() string {
	return StateKey(s.Symbol, s.Interval)
}

// Validate checks the record's internal invariants.
func (s *PositionState) Validate() error {
	if s.Symbol == "" || s.Interval == "" {
		return fmt.Errorf("state missing symbol/interval")
	}
	if !s.InPosition && !s.Shares.IsZero() {
		return fmt.Errorf("flat state holds %s shares", s.Shares)
	}
	if s.InPosition && !s.Shares.IsPositive() {
		return fmt.Errorf("in-position state holds %s shares", s.Shares)
	}
	if s.Balance.IsNegative() {
		return fmt.Errorf("negative balance %s", s.Balance)
	}
	switch s.LastAction {
	case ActionInit, ActionBuy, ActionSell, ActionHold:
	default:
		return fmt.Errorf("unknown last action %q", s.LastAction)
	}
	return nil
}

// Clone returns a deep copy the caller may mutate freely.
func (s *PositionState) Clone() *PositionState {
	if s == nil {
		return nil
	}
	out := *s
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	return &out
}

// EnterLong applies a confirmed buy fill: debits the quote balance, records
// entry price, shares and the stop, and marks the position open.
func (s *PositionState) EnterLong(fillPrice, fillQty, stopLoss decimal.Decimal, at time.Time) {
	s.InPosition = true
	s.EntryPrice = fillPrice
	s.Shares = fillQty
	s.StopLoss = stopLoss
	s.Balance = s.Balance.Sub(fillPrice.Mul(fillQty))
	if s.Balance.IsNegative() {
		s.Balance = decimal.Zero
	}
	s.LastAction = ActionBuy
	s.LastUpdate = at
	s.Pending = nil
}

// ExitLong applies a confirmed sell fill: credits the proceeds, clears the
// holding and the stop, and marks the position flat.
func (s *PositionState) ExitLong(fillPrice, fillQty decimal.Decimal, at time.Time) {
	s.InPosition = false
	s.ExitPrice = fillPrice
	s.Balance = s.Balance.Add(fillPrice.Mul(fillQty))
	s.Shares = decimal.Zero
	s.StopLoss = decimal.Zero
	s.LastAction = ActionSell
	s.LastUpdate = at
	s.Pending = nil
}

// Hold records a no-trade cycle. All fields besides LastAction and
// LastUpdate are left untouched.
func (s *PositionState) Hold(at time.Time) {
	s.LastAction = ActionHold
	s.LastUpdate = at
}

// MarkPending records an ambiguous order outcome so the next cycle can
// reconcile against the exchange instead of guessing.
func (s *PositionState) MarkPending(p PendingOrder, at time.Time) {
	s.Pending = &p
	s.LastUpdate = at
}

// ClearPending removes the ambiguous-order marker without touching the rest
// of the record (used when the exchange reports the order never executed).
func (s *PositionState) ClearPending(at time.Time) {
	s.Pending = nil
	s.LastUpdate = at
}
