// Package journal records executed trades and cycle errors for later audit,
// mirroring what the agent persists operationally without ever being on the
// critical path: journal failures are logged and dropped.
package journal

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is one executed order fill.
type TradeRecord struct {
	ID        string
	Symbol    string
	Interval  string
	Action    string // BUY or SELL
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Balance   decimal.Decimal
	StopLoss  decimal.Decimal
	OrderID   int64
	Timestamp time.Time
}

// ErrorRecord is one cycle failure.
type ErrorRecord struct {
	ID        string
	Symbol    string
	Interval  string
	Stage     string
	Message   string
	Timestamp time.Time
}

// Journal is the audit log contract.
type Journal interface {
	RecordTrade(t TradeRecord) error
	RecordError(e ErrorRecord) error
	Trades(symbol string, limit int) ([]TradeRecord, error)
	Close() error
}
