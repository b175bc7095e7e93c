package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordTradeRoundtrip(t *testing.T) {
	j := openJournal(t)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.RecordTrade(TradeRecord{
		Symbol:    "ETHUSDT",
		Interval:  "15m",
		Action:    "BUY",
		Price:     decimal.RequireFromString("3200.50"),
		Quantity:  decimal.RequireFromString("0.0312"),
		Balance:   decimal.RequireFromString("0.14"),
		StopLoss:  decimal.RequireFromString("3000"),
		OrderID:   42,
		Timestamp: ts,
	}))

	trades, err := j.Trades("ETHUSDT", 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.NotEmpty(t, tr.ID, "an ID must be assigned on insert")
	assert.Equal(t, "BUY", tr.Action)
	assert.True(t, tr.Price.Equal(decimal.RequireFromString("3200.50")))
	assert.True(t, tr.Quantity.Equal(decimal.RequireFromString("0.0312")))
	assert.True(t, tr.StopLoss.Equal(decimal.RequireFromString("3000")))
	assert.Equal(t, int64(42), tr.OrderID)
}

func TestTradesNewestFirstAndLimited(t *testing.T) {
	j := openJournal(t)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.RecordTrade(TradeRecord{
			Symbol:    "ETHUSDT",
			Interval:  "15m",
			Action:    "BUY",
			Price:     decimal.NewFromInt(int64(3000 + i)),
			Quantity:  decimal.NewFromFloat(0.01),
			Balance:   decimal.NewFromInt(100),
			StopLoss:  decimal.Zero,
			OrderID:   int64(i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	trades, err := j.Trades("ETHUSDT", 3)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, int64(4), trades[0].OrderID)
	assert.Equal(t, int64(2), trades[2].OrderID)
}

func TestTradesFiltersBySymbol(t *testing.T) {
	j := openJournal(t)

	require.NoError(t, j.RecordTrade(TradeRecord{
		Symbol: "ETHUSDT", Interval: "15m", Action: "BUY",
		Price: decimal.NewFromInt(3200), Quantity: decimal.NewFromFloat(0.01),
		Balance: decimal.NewFromInt(100), StopLoss: decimal.Zero,
	}))
	require.NoError(t, j.RecordTrade(TradeRecord{
		Symbol: "BTCUSDT", Interval: "1h", Action: "SELL",
		Price: decimal.NewFromInt(60000), Quantity: decimal.NewFromFloat(0.001),
		Balance: decimal.NewFromInt(100), StopLoss: decimal.Zero,
	}))

	trades, err := j.Trades("ETHUSDT", 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "ETHUSDT", trades[0].Symbol)
}

func TestRecordError(t *testing.T) {
	j := openJournal(t)

	require.NoError(t, j.RecordError(ErrorRecord{
		Symbol:   "ETHUSDT",
		Interval: "15m",
		Stage:    "fetch candles",
		Message:  "exchange unreachable",
	}))
	// Errors share the store with trades but never surface in the trade view.
	trades, err := j.Trades("ETHUSDT", 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, j.RecordTrade(TradeRecord{
		Symbol: "ETHUSDT", Interval: "15m", Action: "BUY",
		Price: decimal.NewFromInt(3200), Quantity: decimal.NewFromFloat(0.01),
		Balance: decimal.NewFromInt(100), StopLoss: decimal.Zero,
	}))
	require.NoError(t, j.Close())

	j2, err := NewSQLite(path)
	require.NoError(t, err)
	defer func() { _ = j2.Close() }()

	trades, err := j2.Trades("ETHUSDT", 10)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}
