// Package retry wraps safely retryable exchange reads with bounded
// exponential backoff. Order placement is deliberately NOT covered here:
// resubmitting a non-idempotent order risks duplicates.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"emabot/internal/exchange"
	"emabot/internal/models"
)

// Config controls the retry loop.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig retries transient failures three times with capped backoff.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     15 * time.Second,
}

// MarketData decorates an exchange.MarketData with retries on transient
// errors.
type MarketData struct {
	client exchange.MarketData
	logger *log.Logger
	config Config
}

var _ exchange.MarketData = (*MarketData)(nil)

// NewMarketData wraps client. A nil logger falls back to stderr.
func NewMarketData(client exchange.MarketData, logger *log.Logger, config ...Config) *MarketData {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = log.New(os.Stderr, "retry: ", log.LstdFlags)
	}
	return &MarketData{client: client, logger: logger, config: cfg}
}

// GetCandles implements exchange.MarketData with retries.
func (m *MarketData) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	return withRetry(ctx, m, "candles", func() ([]models.Candle, error) {
		return m.client.GetCandles(ctx, symbol, interval, limit)
	})
}

// GetPrice implements exchange.MarketData with retries.
func (m *MarketData) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return withRetry(ctx, m, "price", func() (decimal.Decimal, error) {
		return m.client.GetPrice(ctx, symbol)
	})
}

func withRetry[T any](ctx context.Context, m *MarketData, op string, fn func() (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	backoff := m.config.InitialBackoff

	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s fetch canceled: %w", op, ctx.Err())
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isTransient(err) || attempt == m.config.MaxRetries {
			break
		}
		m.logger.Printf("Transient %s fetch error (attempt %d/%d), retrying in %v: %v",
			op, attempt+1, m.config.MaxRetries+1, backoff, err)

		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, m.config.MaxBackoff)
		case <-ctx.Done():
			return zero, fmt.Errorf("%s fetch canceled during backoff: %w", op, ctx.Err())
		}
	}
	return zero, lastErr
}

func nextBackoff(current, max time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > max {
		backoff = max
	}
	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	switch exchange.Classify(err) {
	case exchange.KindRateLimited, exchange.KindNetwork:
	default:
		return false
	}

	// A rejected classification can still hide retryable server responses
	// wrapped as plain errors; fall back to the usual transport patterns.
	errStr := strings.ToLower(err.Error())
	permanent := []string{"invalid symbol", "bad request", "unauthorized", "forbidden"}
	for _, p := range permanent {
		if strings.Contains(errStr, p) {
			return false
		}
	}
	return true
}
