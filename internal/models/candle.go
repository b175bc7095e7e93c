// Package models provides the data structures shared across the trading agent:
// market candles and the persisted position state record.
package models

import "time"

// Candle is one unit of historical price data, immutable once fetched.
// Series are always ordered by OpenTime ascending.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}
