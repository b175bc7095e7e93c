package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emabot/internal/exchange"
	"emabot/internal/models"
)

type scriptedMarket struct {
	failures int
	err      error
	calls    int
}

func (s *scriptedMarket) GetCandles(context.Context, string, string, int) ([]models.Candle, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, s.err
	}
	return []models.Candle{{Close: 3200}}, nil
}

func (s *scriptedMarket) GetPrice(context.Context, string) (decimal.Decimal, error) {
	s.calls++
	if s.calls <= s.failures {
		return decimal.Zero, s.err
	}
	return decimal.NewFromInt(3200), nil
}

func fastConfig() Config {
	return Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetriesTransientFailures(t *testing.T) {
	inner := &scriptedMarket{failures: 2, err: errors.New("connection reset")}
	md := NewMarketData(inner, log.New(io.Discard, "", 0), fastConfig())

	candles, err := md.GetCandles(context.Background(), "ETHUSDT", "15m", 10)
	require.NoError(t, err)
	assert.Len(t, candles, 1)
	assert.Equal(t, 3, inner.calls)
}

func TestRetriesRateLimits(t *testing.T) {
	inner := &scriptedMarket{failures: 1, err: &exchange.APIError{Status: 429, Message: "slow down"}}
	md := NewMarketData(inner, log.New(io.Discard, "", 0), fastConfig())

	px, err := md.GetPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.True(t, px.Equal(decimal.NewFromInt(3200)))
	assert.Equal(t, 2, inner.calls)
}

func TestDoesNotRetryRejections(t *testing.T) {
	inner := &scriptedMarket{failures: 10, err: &exchange.APIError{Status: 400, Code: -1121, Message: "Invalid symbol."}}
	md := NewMarketData(inner, log.New(io.Discard, "", 0), fastConfig())

	_, err := md.GetPrice(context.Background(), "ETHUSDT")
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls, "definitive rejections must fail immediately")
}

func TestDoesNotRetryPermanentTransportMessages(t *testing.T) {
	inner := &scriptedMarket{failures: 10, err: errors.New("401 unauthorized")}
	md := NewMarketData(inner, log.New(io.Discard, "", 0), fastConfig())

	_, err := md.GetPrice(context.Background(), "ETHUSDT")
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	cause := errors.New("connection refused")
	inner := &scriptedMarket{failures: 10, err: cause}
	md := NewMarketData(inner, log.New(io.Discard, "", 0), fastConfig())

	_, err := md.GetCandles(context.Background(), "ETHUSDT", "15m", 10)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 4, inner.calls, "initial attempt plus three retries")
}

func TestRespectsContextCancellation(t *testing.T) {
	inner := &scriptedMarket{failures: 10, err: errors.New("timeout")}
	md := NewMarketData(inner, log.New(io.Discard, "", 0),
		Config{MaxRetries: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := md.GetPrice(ctx, "ETHUSDT")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestNextBackoffCapped(t *testing.T) {
	max := 10 * time.Millisecond
	b := nextBackoff(8*time.Millisecond, max)
	// 1.5x exceeds the cap; jitter adds at most a quarter on top.
	assert.LessOrEqual(t, b, max+max/4)
	assert.GreaterOrEqual(t, b, max)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("connection reset by peer")))
	assert.True(t, isTransient(&exchange.APIError{Status: 503}))
	assert.True(t, isTransient(&exchange.APIError{Status: 429}))
	assert.False(t, isTransient(&exchange.APIError{Status: 400}))
	assert.False(t, isTransient(fmt.Errorf("%w: submit", exchange.ErrAmbiguous)))
	assert.False(t, isTransient(nil))
}
