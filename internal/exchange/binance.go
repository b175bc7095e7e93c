// Package exchange provides the Binance spot REST client used for market
// data and order execution, plus normalized error classification shared by
// the rest of the agent.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"emabot/internal/models"
)

// Order type and status strings as the exchange reports them.
const (
	OrderTypeMarket        = "MARKET"
	OrderTypeStopLossLimit = "STOP_LOSS_LIMIT"

	StatusNew             = "NEW"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
	StatusRejected        = "REJECTED"
	StatusExpired         = "EXPIRED"
)

// MarketData is the read-only slice of the client used by the engine's
// fetch path and by the retry wrapper.
type MarketData interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Client is the full exchange capability: market data plus order
// placement/cancellation. Order operations are NOT idempotent; callers must
// never retry them blindly.
type Client interface {
	MarketData
	PlaceMarketOrder(ctx context.Context, symbol string, side models.Side,
		qty decimal.Decimal, clientOrderID string) (*OrderReport, error)
	PlaceStopLossLimit(ctx context.Context, symbol string,
		qty, stopPrice, limitPrice decimal.Decimal, clientOrderID string) (*OrderReport, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	GetOrderByClientID(ctx context.Context, symbol, clientOrderID string) (*OrderReport, error)
}

// OrderReport is the exchange's view of one order.
type OrderReport struct {
	OrderID       int64
	ClientOrderID string
	Type          string
	Status        string
	ExecutedQty   decimal.Decimal
	// QuoteQty is the cumulative quote amount exchanged; AvgFillPrice is
	// QuoteQty/ExecutedQty when anything filled.
	QuoteQty     decimal.Decimal
	AvgFillPrice decimal.Decimal
}

// Filled reports whether the order executed completely.
func (r *OrderReport) Filled() bool {
	return r != nil && r.Status == StatusFilled
}

// Terminal reports whether the order can no longer change state.
func (r *OrderReport) Terminal() bool {
	if r == nil {
		return false
	}
	switch r.Status {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// OpenOrder is one entry of the open-orders listing.
type OpenOrder struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
	Side          string `json:"side"`
}

// BinanceClient talks to the Binance spot REST API.
type BinanceClient struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
	// now is swappable for signature tests.
	now func() time.Time
}

// Compile-time interface check.
var _ Client = (*BinanceClient)(nil)

const defaultBaseURL = "https://api.binance.com"

// NewBinanceClient creates a client. An empty baseURL selects the production
// endpoint; timeout bounds every request.
func NewBinanceClient(apiKey, apiSecret, baseURL string, timeout time.Duration) *BinanceClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BinanceClient{
		client:    &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		now:       time.Now,
	}
}

// WithHTTPClient swaps the underlying HTTP client (tests).
func (b *BinanceClient) WithHTTPClient(c *http.Client) *BinanceClient {
	b.client = c
	return b
}

// GetCandles fetches up to limit klines for symbol/interval, ordered by open
// time ascending.
func (b *BinanceClient) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	var raw [][]json.RawMessage
	if err := b.doPublic(ctx, http.MethodGet, "/api/v3/klines", params, &raw); err != nil {
		return nil, fmt.Errorf("fetching klines for %s %s: %w", symbol, interval, err)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, k := range raw {
		c, err := parseKline(k)
		if err != nil {
			return nil, fmt.Errorf("parsing kline for %s: %w", symbol, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// GetPrice fetches the latest traded price for symbol.
func (b *BinanceClient) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := b.doPublic(ctx, http.MethodGet, "/api/v3/ticker/price", params, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("fetching price for %s: %w", symbol, err)
	}
	px, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing price %q for %s: %w", resp.Price, symbol, err)
	}
	return px, nil
}

// PlaceMarketOrder submits a market order. Transport failures during
// submission are wrapped with ErrAmbiguous because the exchange may have
// accepted the order anyway.
func (b *BinanceClient) PlaceMarketOrder(ctx context.Context, symbol string, side models.Side,
	qty decimal.Decimal, clientOrderID string) (*OrderReport, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", OrderTypeMarket)
	params.Set("quantity", qty.String())
	params.Set("newClientOrderId", clientOrderID)
	params.Set("newOrderRespType", "FULL")

	var resp orderResponse
	if err := b.doSigned(ctx, http.MethodPost, "/api/v3/order", params, &resp); err != nil {
		if isTransportError(err) {
			return nil, fmt.Errorf("%w: market %s %s %s: %v", ErrAmbiguous, side, qty, symbol, err)
		}
		return nil, fmt.Errorf("placing market %s order for %s: %w", side, symbol, err)
	}
	return resp.report()
}

// PlaceStopLossLimit submits a stop-loss-limit sell that triggers at
// stopPrice and rests at limitPrice.
func (b *BinanceClient) PlaceStopLossLimit(ctx context.Context, symbol string,
	qty, stopPrice, limitPrice decimal.Decimal, clientOrderID string) (*OrderReport, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(models.SideSell))
	params.Set("type", OrderTypeStopLossLimit)
	params.Set("timeInForce", "GTC")
	params.Set("quantity", qty.String())
	params.Set("stopPrice", stopPrice.String())
	params.Set("price", limitPrice.String())
	params.Set("newClientOrderId", clientOrderID)

	var resp orderResponse
	if err := b.doSigned(ctx, http.MethodPost, "/api/v3/order", params, &resp); err != nil {
		if isTransportError(err) {
			return nil, fmt.Errorf("%w: stop-loss %s %s @ %s: %v", ErrAmbiguous, qty, symbol, stopPrice, err)
		}
		return nil, fmt.Errorf("placing stop-loss order for %s: %w", symbol, err)
	}
	return resp.report()
}

// GetOpenOrders lists the symbol's resting orders.
func (b *BinanceClient) GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var orders []OpenOrder
	if err := b.doSigned(ctx, http.MethodGet, "/api/v3/openOrders", params, &orders); err != nil {
		return nil, fmt.Errorf("listing open orders for %s: %w", symbol, err)
	}
	return orders, nil
}

// CancelOrder cancels one resting order by exchange order ID.
func (b *BinanceClient) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	var resp orderResponse
	if err := b.doSigned(ctx, http.MethodDelete, "/api/v3/order", params, &resp); err != nil {
		return fmt.Errorf("cancelling order %d on %s: %w", orderID, symbol, err)
	}
	return nil
}

// GetOrderByClientID looks an order up by the client order ID it was
// submitted with. Returns ErrOrderNotFound when the exchange has no record
// of it.
func (b *BinanceClient) GetOrderByClientID(ctx context.Context, symbol, clientOrderID string) (*OrderReport, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientOrderID)

	var resp orderResponse
	if err := b.doSigned(ctx, http.MethodGet, "/api/v3/order", params, &resp); err != nil {
		var apiErr *APIError
		// -2013: "Order does not exist."
		if errors.As(err, &apiErr) && apiErr.Code == -2013 {
			return nil, fmt.Errorf("%w: client order %s on %s", ErrOrderNotFound, clientOrderID, symbol)
		}
		return nil, fmt.Errorf("looking up order %s on %s: %w", clientOrderID, symbol, err)
	}
	return resp.report()
}

// orderResponse is the exchange's order payload (shared by place, query and
// cancel responses).
type orderResponse struct {
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	OrigClientOrderID   string `json:"origClientOrderId"`
	Type                string `json:"type"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
}

func (r *orderResponse) report() (*OrderReport, error) {
	exec, err := parseDecimal(r.ExecutedQty)
	if err != nil {
		return nil, fmt.Errorf("parsing executedQty %q: %w", r.ExecutedQty, err)
	}
	quote, err := parseDecimal(r.CummulativeQuoteQty)
	if err != nil {
		return nil, fmt.Errorf("parsing cummulativeQuoteQty %q: %w", r.CummulativeQuoteQty, err)
	}
	rep := &OrderReport{
		OrderID:       r.OrderID,
		ClientOrderID: r.ClientOrderID,
		Type:          r.Type,
		Status:        r.Status,
		ExecutedQty:   exec,
		QuoteQty:      quote,
	}
	if rep.ClientOrderID == "" {
		rep.ClientOrderID = r.OrigClientOrderID
	}
	if exec.IsPositive() {
		rep.AvgFillPrice = quote.Div(exec)
	}
	return rep, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// doPublic issues an unauthenticated request.
func (b *BinanceClient) doPublic(ctx context.Context, method, endpoint string, params url.Values, out interface{}) error {
	return b.do(ctx, method, endpoint, params, false, out)
}

// doSigned issues an authenticated request: timestamp plus HMAC-SHA256
// signature over the query string, API key header.
func (b *BinanceClient) doSigned(ctx context.Context, method, endpoint string, params url.Values, out interface{}) error {
	params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
	mac := hmac.New(sha256.New, []byte(b.apiSecret))
	mac.Write([]byte(params.Encode()))
	params.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	return b.do(ctx, method, endpoint, params, true, out)
}

func (b *BinanceClient) do(ctx context.Context, method, endpoint string, params url.Values, signed bool, out interface{}) error {
	reqURL := b.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return fmt.Errorf("building request %s %s: %w", method, endpoint, err)
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response for %s %s: %w", method, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(body)}
		var payload struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Msg != "" {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Msg
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response for %s %s: %w", method, endpoint, err)
	}
	return nil
}

// parseKline decodes one kline row. The exchange mixes numeric open times
// with string-encoded prices in a single array.
func parseKline(fields []json.RawMessage) (models.Candle, error) {
	if len(fields) < 6 {
		return models.Candle{}, fmt.Errorf("kline has %d fields, want >= 6", len(fields))
	}

	var openTimeMs int64
	if err := json.Unmarshal(fields[0], &openTimeMs); err != nil {
		return models.Candle{}, fmt.Errorf("open time: %w", err)
	}

	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(fields[i], &s); err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("field %d value %q: %w", i, s, err)
		}
		vals[i-1] = f
	}

	return models.Candle{
		OpenTime: time.UnixMilli(openTimeMs).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}
