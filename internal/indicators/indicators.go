// Package indicators derives technical indicator snapshots from closed
// candle series. All math is done on fully closed bars only; the caller is
// responsible for dropping the still-forming candle before calling Compute.
package indicators

import (
	"errors"
	"fmt"
	"math"
	"time"

	"emabot/internal/models"
)

// ErrInsufficientData is returned when fewer candles than the configured
// windows require are supplied. Callers must not proceed to a trading
// decision in that case.
var ErrInsufficientData = errors.New("insufficient candle data")

// Params configures the indicator windows.
type Params struct {
	FastSpan      int // short EMA span
	SlowSpan      int // long EMA span
	ATRWindow     int // Wilder ATR window
	RollingWindow int // rolling max-of-close lookback
}

// DefaultParams matches the live configuration: EMA 9/100, ATR 14,
// 7-bar rolling maximum.
var DefaultParams = Params{
	FastSpan:      9,
	SlowSpan:      100,
	ATRWindow:     14,
	RollingWindow: 7,
}

// Validate checks that every window is usable.
func (p Params) Validate() error {
	if p.FastSpan <= 0 || p.SlowSpan <= 0 || p.ATRWindow <= 0 || p.RollingWindow <= 0 {
		return fmt.Errorf("indicator spans must be positive: %+v", p)
	}
	if p.FastSpan >= p.SlowSpan {
		return fmt.Errorf("fast span %d must be below slow span %d", p.FastSpan, p.SlowSpan)
	}
	return nil
}

// MinCandles returns the smallest series length Compute accepts.
func (p Params) MinCandles() int {
	n := p.SlowSpan
	if p.ATRWindow > n {
		n = p.ATRWindow
	}
	if p.RollingWindow > n {
		n = p.RollingWindow
	}
	return n + 1
}

// Snapshot holds indicator values as of the latest closed candle.
type Snapshot struct {
	EMAFast float64
	EMASlow float64
	ATR     float64
	// RollingMax is the highest close over the rolling window including the
	// latest closed bar; RollingMaxPrev excludes it (as-of-previous-bar).
	// Breakout comparisons must use RollingMaxPrev — mixing the two silently
	// corrupts entry signals.
	RollingMax     float64
	RollingMaxPrev float64
	Close          float64
	Low            float64
	AsOf           time.Time
}

// Compute derives a Snapshot from an ascending series of closed candles.
func Compute(candles []models.Candle, p Params) (Snapshot, error) {
	if err := p.Validate(); err != nil {
		return Snapshot{}, err
	}
	if len(candles) < p.MinCandles() {
		return Snapshot{}, fmt.Errorf("%w: need %d candles, got %d",
			ErrInsufficientData, p.MinCandles(), len(candles))
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	atr, err := ATR(candles, p.ATRWindow)
	if err != nil {
		return Snapshot{}, err
	}

	last := candles[len(candles)-1]
	return Snapshot{
		EMAFast:        EMA(closes, p.FastSpan),
		EMASlow:        EMA(closes, p.SlowSpan),
		ATR:            atr,
		RollingMax:     RollingMax(closes, p.RollingWindow),
		RollingMaxPrev: RollingMaxPrev(closes, p.RollingWindow),
		Close:          last.Close,
		Low:            last.Low,
		AsOf:           last.OpenTime,
	}, nil
}

// EMA computes an exponential moving average seeded from the first value:
// ema[0] = v[0]; ema[i] = alpha*v[i] + (1-alpha)*ema[i-1], alpha = 2/(span+1).
// An empty series returns 0.
func EMA(values []float64, span int) float64 {
	if len(values) == 0 || span <= 0 {
		return 0
	}
	alpha := 2.0 / float64(span+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// ATR computes the average true range over the given window using Wilder's
// smoothing: the first ATR is the simple average of the first `window` true
// ranges, then atr = (atr*(window-1) + tr) / window.
func ATR(candles []models.Candle, window int) (float64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("atr window must be positive, got %d", window)
	}
	if len(candles) < window+1 {
		return 0, fmt.Errorf("%w: atr needs %d candles, got %d",
			ErrInsufficientData, window+1, len(candles))
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, trueRange(candles[i], candles[i-1]))
	}

	sum := 0.0
	for i := 0; i < window; i++ {
		sum += trs[i]
	}
	atr := sum / float64(window)
	for i := window; i < len(trs); i++ {
		atr = (atr*float64(window-1) + trs[i]) / float64(window)
	}
	return atr, nil
}

// RollingMax returns the highest value over the trailing window including
// the latest bar.
func RollingMax(values []float64, window int) float64 {
	return maxTail(values, window)
}

// RollingMaxPrev returns the highest value over the trailing window ending
// at the previous bar, i.e. excluding the latest one.
func RollingMaxPrev(values []float64, window int) float64 {
	if len(values) == 0 {
		return 0
	}
	return maxTail(values[:len(values)-1], window)
}

func maxTail(values []float64, window int) float64 {
	if len(values) == 0 || window <= 0 {
		return 0
	}
	start := len(values) - window
	if start < 0 {
		start = 0
	}
	m := values[start]
	for _, v := range values[start+1:] {
		m = math.Max(m, v)
	}
	return m
}

func trueRange(cur, prev models.Candle) float64 {
	hl := cur.High - cur.Low
	hc := math.Abs(cur.High - prev.Close)
	lc := math.Abs(cur.Low - prev.Close)
	return math.Max(hl, math.Max(hc, lc))
}
