package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"emabot/internal/indicators"
	"emabot/internal/models"
)

// EMACrossConfig parameterizes the reference EMA crossover policy.
type EMACrossConfig struct {
	// AllocationPct is the fraction of the quote balance committed on entry,
	// in (0, 1].
	AllocationPct float64
	// ATRStopMult places the protective stop ATRStopMult true ranges below
	// the latest closed low.
	ATRStopMult float64
}

// DefaultEMACrossConfig commits the full balance with a 2-ATR stop.
var DefaultEMACrossConfig = EMACrossConfig{
	AllocationPct: 1.0,
	ATRStopMult:   2.0,
}

// EMACross is a concrete trend-following policy: long when the fast EMA is
// above the slow EMA and price breaks the previous-bar rolling high, out when
// the trend flips or the stop level is breached. It is a plain reference
// implementation meant to be replaced by whatever policy the operator runs.
type EMACross struct {
	cfg EMACrossConfig
}

// NewEMACross validates the config and builds the policy.
func NewEMACross(cfg EMACrossConfig) (*EMACross, error) {
	if cfg.AllocationPct <= 0 || cfg.AllocationPct > 1 {
		return nil, fmt.Errorf("allocation_pct must be in (0,1], got %v", cfg.AllocationPct)
	}
	if cfg.ATRStopMult <= 0 {
		return nil, fmt.Errorf("atr_stop_mult must be positive, got %v", cfg.ATRStopMult)
	}
	return &EMACross{cfg: cfg}, nil
}

func (*EMACross) Name() string { return "ema-cross" }

// Decide implements Policy.
func (p *EMACross) Decide(snap indicators.Snapshot, state models.PositionState, price decimal.Decimal) (Decision, error) {
	if !price.IsPositive() {
		return Decision{}, fmt.Errorf("non-positive price %s", price)
	}
	px := price.InexactFloat64()

	if state.InPosition {
		if snap.EMAFast < snap.EMASlow {
			return Decision{
				Action:   Exit,
				Quantity: state.Shares,
				Reason:   fmt.Sprintf("trend flip: fast ema %.4f < slow ema %.4f", snap.EMAFast, snap.EMASlow),
			}, nil
		}
		if state.StopLoss.IsPositive() && px <= state.StopLoss.InexactFloat64() {
			return Decision{
				Action:   Exit,
				Quantity: state.Shares,
				Reason:   fmt.Sprintf("stop breached: price %.4f <= stop %s", px, state.StopLoss),
			}, nil
		}
		return HoldDecision("holding long, trend intact"), nil
	}

	// Entry: uptrend plus a close above the previous-bar rolling high. The
	// as-of-previous-bar variant is the breakout reference on purpose.
	if snap.EMAFast > snap.EMASlow && snap.Close > snap.RollingMaxPrev {
		quote := state.Balance.Mul(decimal.NewFromFloat(p.cfg.AllocationPct))
		if !quote.IsPositive() {
			return HoldDecision("no balance to deploy"), nil
		}
		qty := quote.Div(price)
		stop := snap.Low - p.cfg.ATRStopMult*snap.ATR
		if stop <= 0 {
			return HoldDecision("stop level below zero, skipping entry"), nil
		}
		return Decision{
			Action:   Enter,
			Quantity: qty,
			StopLoss: decimal.NewFromFloat(stop),
			Reason: fmt.Sprintf("breakout: close %.4f > prev rolling high %.4f, fast %.4f > slow %.4f",
				snap.Close, snap.RollingMaxPrev, snap.EMAFast, snap.EMASlow),
		}, nil
	}

	return HoldDecision("no entry signal"), nil
}
