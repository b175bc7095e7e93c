package exchange

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"emabot/internal/models"
)

// CircuitBreakerClient wraps a Client with circuit breaker protection so a
// misbehaving exchange trips fast instead of burning the whole cycle budget.
type CircuitBreakerClient struct {
	client  Client
	breaker *gobreaker.CircuitBreaker
}

var _ Client = (*CircuitBreakerClient)(nil)

// CircuitBreakerSettings configures breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // requests allowed when half-open
	Interval     time.Duration // counter reset interval
	Timeout      time.Duration // open-circuit duration
	MinRequests  uint32        // minimum requests before tripping
	FailureRatio float64       // failure ratio threshold
}

// NewCircuitBreakerClient wraps client with sensible defaults.
func NewCircuitBreakerClient(client Client) *CircuitBreakerClient {
	return NewCircuitBreakerClientWithSettings(client, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerClientWithSettings wraps client with custom settings.
func NewCircuitBreakerClientWithSettings(client Client, settings CircuitBreakerSettings) *CircuitBreakerClient {
	gbSettings := gobreaker.Settings{
		Name:        "ExchangeCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerClient{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execBreaker is a generic helper for breaker wrapper methods.
func execBreaker[T any](breaker *gobreaker.CircuitBreaker, client Client, fn func(Client) (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(client) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetCandles wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	return execBreaker(c.breaker, c.client, func(cl Client) ([]models.Candle, error) {
		return cl.GetCandles(ctx, symbol, interval, limit)
	})
}

// GetPrice wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return execBreaker(c.breaker, c.client, func(cl Client) (decimal.Decimal, error) {
		return cl.GetPrice(ctx, symbol)
	})
}

// PlaceMarketOrder wraps the underlying call with the circuit breaker. When
// the breaker is open the request is refused before submission, which is a
// plain network-kind failure, never an ambiguous one.
func (c *CircuitBreakerClient) PlaceMarketOrder(ctx context.Context, symbol string, side models.Side,
	qty decimal.Decimal, clientOrderID string) (*OrderReport, error) {
	return execBreaker(c.breaker, c.client, func(cl Client) (*OrderReport, error) {
		return cl.PlaceMarketOrder(ctx, symbol, side, qty, clientOrderID)
	})
}

// PlaceStopLossLimit wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) PlaceStopLossLimit(ctx context.Context, symbol string,
	qty, stopPrice, limitPrice decimal.Decimal, clientOrderID string) (*OrderReport, error) {
	return execBreaker(c.breaker, c.client, func(cl Client) (*OrderReport, error) {
		return cl.PlaceStopLossLimit(ctx, symbol, qty, stopPrice, limitPrice, clientOrderID)
	})
}

// GetOpenOrders wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	return execBreaker(c.breaker, c.client, func(cl Client) ([]OpenOrder, error) {
		return cl.GetOpenOrders(ctx, symbol)
	})
}

// CancelOrder wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := execBreaker(c.breaker, c.client, func(cl Client) (struct{}, error) {
		return struct{}{}, cl.CancelOrder(ctx, symbol, orderID)
	})
	return err
}

// GetOrderByClientID wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) GetOrderByClientID(ctx context.Context, symbol, clientOrderID string) (*OrderReport, error) {
	return execBreaker(c.breaker, c.client, func(cl Client) (*OrderReport, error) {
		return cl.GetOrderByClientID(ctx, symbol, clientOrderID)
	})
}
