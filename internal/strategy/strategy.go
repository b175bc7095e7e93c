// Package strategy defines the trading policy contract and the decisions it
// produces. Policies are pure functions: no I/O, no mutation of inputs,
// deterministic for a given snapshot/state/price. That isolation lets the
// decision logic be swapped or fuzz-tested independently of exchange and
// persistence concerns.
package strategy

import (
	"github.com/shopspring/decimal"

	"emabot/internal/indicators"
	"emabot/internal/models"
)

// ActionType tags a decision variant.
type ActionType string

const (
	// Hold places no orders this cycle.
	Hold ActionType = "hold"
	// Enter submits a market buy plus a protective stop-loss order.
	Enter ActionType = "enter"
	// Exit cancels resting stop-loss orders and submits a market sell.
	Exit ActionType = "exit"
)

// Decision is a policy's recommendation for one cycle. It carries no side
// effects itself; the engine converts it into exchange calls.
//
// Quantity is the base-asset amount to buy and applies to Enter only. An Exit
// always liquidates the full recorded holding; partial exits would leave the
// flat/long state machine tracking a remainder it has no state for.
type Decision struct {
	Action   ActionType
	Quantity decimal.Decimal
	StopLoss decimal.Decimal // stop trigger price; Enter only
	Reason   string
}

// HoldDecision is the no-op decision.
func HoldDecision(reason string) Decision {
	return Decision{Action: Hold, Reason: reason}
}

// Policy maps indicators, current position state and the latest traded price
// to a trading decision. Implementations must not perform I/O.
type Policy interface {
	Name() string
	Decide(snap indicators.Snapshot, state models.PositionState, price decimal.Decimal) (Decision, error)
}

// HoldPolicy always holds. Useful as a safe default and in tests.
type HoldPolicy struct{}

func (HoldPolicy) Name() string { return "hold" }

func (HoldPolicy) Decide(indicators.Snapshot, models.PositionState, decimal.Decimal) (Decision, error) {
	return HoldDecision("hold policy"), nil
}
