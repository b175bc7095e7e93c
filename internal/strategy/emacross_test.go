package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emabot/internal/indicators"
	"emabot/internal/models"
)

func newPolicy(t *testing.T) *EMACross {
	t.Helper()
	p, err := NewEMACross(DefaultEMACrossConfig)
	require.NoError(t, err)
	return p
}

func flatState() models.PositionState {
	return *models.NewPositionState("ETHUSDT", "15m", decimal.NewFromInt(100))
}

func longState() models.PositionState {
	s := models.NewPositionState("ETHUSDT", "15m", decimal.NewFromInt(100))
	s.EnterLong(decimal.NewFromInt(3200), decimal.NewFromFloat(0.03), decimal.NewFromInt(3000), time.Now().UTC())
	return *s
}

func uptrendSnap() indicators.Snapshot {
	return indicators.Snapshot{
		EMAFast:        3210,
		EMASlow:        3100,
		ATR:            50,
		RollingMax:     3250,
		RollingMaxPrev: 3190,
		Close:          3250,
		Low:            3180,
	}
}

func TestNewEMACrossValidation(t *testing.T) {
	_, err := NewEMACross(EMACrossConfig{AllocationPct: 0, ATRStopMult: 2})
	assert.Error(t, err)
	_, err = NewEMACross(EMACrossConfig{AllocationPct: 1.5, ATRStopMult: 2})
	assert.Error(t, err)
	_, err = NewEMACross(EMACrossConfig{AllocationPct: 1, ATRStopMult: 0})
	assert.Error(t, err)
}

func TestDecideEnterOnBreakout(t *testing.T) {
	p := newPolicy(t)
	price := decimal.NewFromInt(3200)

	dec, err := p.Decide(uptrendSnap(), flatState(), price)
	require.NoError(t, err)

	assert.Equal(t, Enter, dec.Action)
	// Full allocation: 100 / 3200.
	assert.True(t, dec.Quantity.Equal(decimal.NewFromInt(100).Div(price)), "qty %s", dec.Quantity)
	// Stop: low - 2*ATR = 3180 - 100.
	assert.True(t, dec.StopLoss.Equal(decimal.NewFromInt(3080)), "stop %s", dec.StopLoss)
}

func TestDecideNoEntryWithoutTrend(t *testing.T) {
	p := newPolicy(t)
	snap := uptrendSnap()
	snap.EMAFast = 3000 // below slow

	dec, err := p.Decide(snap, flatState(), decimal.NewFromInt(3200))
	require.NoError(t, err)
	assert.Equal(t, Hold, dec.Action)
}

func TestDecideNoEntryWithoutBreakout(t *testing.T) {
	p := newPolicy(t)
	snap := uptrendSnap()
	snap.Close = snap.RollingMaxPrev // must strictly exceed

	dec, err := p.Decide(snap, flatState(), decimal.NewFromInt(3200))
	require.NoError(t, err)
	assert.Equal(t, Hold, dec.Action)
}

func TestDecideSkipsEntryOnNonPositiveStop(t *testing.T) {
	p := newPolicy(t)
	snap := uptrendSnap()
	snap.Low = 40
	snap.ATR = 50 // 40 - 100 < 0

	dec, err := p.Decide(snap, flatState(), decimal.NewFromInt(3200))
	require.NoError(t, err)
	assert.Equal(t, Hold, dec.Action)
}

func TestDecideSkipsEntryWithoutBalance(t *testing.T) {
	p := newPolicy(t)
	state := flatState()
	state.Balance = decimal.Zero

	dec, err := p.Decide(uptrendSnap(), state, decimal.NewFromInt(3200))
	require.NoError(t, err)
	assert.Equal(t, Hold, dec.Action)
}

func TestDecideExitOnTrendFlip(t *testing.T) {
	p := newPolicy(t)
	snap := uptrendSnap()
	snap.EMAFast = 3000

	state := longState()
	dec, err := p.Decide(snap, state, decimal.NewFromInt(3200))
	require.NoError(t, err)

	assert.Equal(t, Exit, dec.Action)
	assert.True(t, dec.Quantity.Equal(state.Shares))
}

func TestDecideExitOnStopBreach(t *testing.T) {
	p := newPolicy(t)

	dec, err := p.Decide(uptrendSnap(), longState(), decimal.NewFromInt(2990))
	require.NoError(t, err)
	assert.Equal(t, Exit, dec.Action)
}

func TestDecideHoldsHealthyLong(t *testing.T) {
	p := newPolicy(t)

	dec, err := p.Decide(uptrendSnap(), longState(), decimal.NewFromInt(3300))
	require.NoError(t, err)
	assert.Equal(t, Hold, dec.Action)
}

func TestDecideRejectsNonPositivePrice(t *testing.T) {
	p := newPolicy(t)
	_, err := p.Decide(uptrendSnap(), flatState(), decimal.Zero)
	assert.Error(t, err)
}

func TestDecideDoesNotMutateState(t *testing.T) {
	p := newPolicy(t)
	state := longState()
	before := state.Clone()

	_, err := p.Decide(uptrendSnap(), state, decimal.NewFromInt(2990))
	require.NoError(t, err)

	assert.True(t, state.Balance.Equal(before.Balance))
	assert.True(t, state.Shares.Equal(before.Shares))
	assert.Equal(t, before.InPosition, state.InPosition)
}
