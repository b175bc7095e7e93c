package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// SQLiteJournal stores the audit log in a local SQLite database. Record IDs
// are ULIDs so rows sort by creation time.
type SQLiteJournal struct {
	db *sql.DB
}

var _ Journal = (*SQLiteJournal)(nil)

// NewSQLite opens (or creates) the journal at path.
func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// RecordTrade implements Journal.
func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	_, err := j.db.Exec(`
		INSERT INTO trades
		(id, symbol, interval, action, price, quantity, balance, stop_loss, order_id, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.Interval, t.Action, t.Price.String(), t.Quantity.String(),
		t.Balance.String(), t.StopLoss.String(), t.OrderID, t.Timestamp,
	)
	return err
}

// RecordError implements Journal.
func (j *SQLiteJournal) RecordError(e ErrorRecord) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := j.db.Exec(`
		INSERT INTO errors (id, symbol, interval, stage, message, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Symbol, e.Interval, e.Stage, e.Message, e.Timestamp,
	)
	return err
}

// Trades returns the most recent trades for symbol, newest first.
func (j *SQLiteJournal) Trades(symbol string, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(`
		SELECT id, symbol, interval, action, price, quantity, balance, stop_loss, order_id, ts
		FROM trades WHERE symbol = ? ORDER BY ts DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []TradeRecord
	for rows.Next() {
		var (
			t                           TradeRecord
			price, qty, balance, stopLs string
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Interval, &t.Action,
			&price, &qty, &balance, &stopLs, &t.OrderID, &t.Timestamp); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %s price %q: %w", t.ID, price, err)
		}
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("trade %s quantity %q: %w", t.ID, qty, err)
		}
		if t.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("trade %s balance %q: %w", t.ID, balance, err)
		}
		if t.StopLoss, err = decimal.NewFromString(stopLs); err != nil {
			return nil, fmt.Errorf("trade %s stop_loss %q: %w", t.ID, stopLs, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
