package binance

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/trade-ledger/internal/exchange"
)

const (
	defaultRestURL = "https://api.binance.com"
	defaultTimeout = 3 * time.Second

	// Binance error code for an unknown trading pair
	codeInvalidSymbol = -1121
)

// Client reads spot tickers over REST. Requests carry a short timeout and
// are never retried; callers fall back to cached prices instead.
type Client struct {
	rest       *resty.Client
	quoteAsset string
	now        func() time.Time
}

type ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	QuoteVolume        string `json:"quoteVolume"`
	CloseTime          int64  `json:"closeTime"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// NewClient creates a REST client. Empty arguments use the public endpoint,
// USDT pairs and a 3 second timeout.
func NewClient(baseURL, quoteAsset string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultRestURL
	}
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Client{rest: rest, quoteAsset: strings.ToUpper(quoteAsset), now: time.Now}
}

// Name returns the provider name
func (c *Client) Name() string {
	return "binance"
}

// Pair maps a token symbol to the exchange pair, e.g. SOL -> SOLUSDT
func (c *Client) Pair(symbol string) string {
	return strings.ToUpper(symbol) + c.quoteAsset
}

// GetQuote implements exchange.MarketDataSource
func (c *Client) GetQuote(ctx context.Context, symbol string) (exchange.Quote, error) {
	symbol = strings.ToUpper(symbol)
	if symbol == c.quoteAsset {
		return exchange.Quote{
			Symbol:    symbol,
			Price:     decimal.NewFromInt(1),
			Source:    c.Name(),
			Timestamp: c.now().UTC(),
		}, nil
	}

	var t ticker24h
	var apiErr apiError
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", c.Pair(symbol)).
		SetResult(&t).
		SetError(&apiErr).
		Get("/api/v3/ticker/24hr")
	if err != nil {
		return exchange.Quote{}, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusBadRequest && apiErr.Code == codeInvalidSymbol {
			return exchange.Quote{}, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol)
		}
		return exchange.Quote{}, fmt.Errorf("binance ticker %s: status %d: %s", symbol, resp.StatusCode(), apiErr.Msg)
	}

	return t.toQuote(symbol, c.Name())
}

func (t ticker24h) toQuote(symbol, source string) (exchange.Quote, error) {
	price, err := decimal.NewFromString(t.LastPrice)
	if err != nil {
		return exchange.Quote{}, fmt.Errorf("binance ticker %s: bad price %q", symbol, t.LastPrice)
	}
	q := exchange.Quote{
		Symbol:    symbol,
		Price:     price,
		Source:    source,
		Timestamp: time.UnixMilli(t.CloseTime).UTC(),
	}
	if pct, err := decimal.NewFromString(t.PriceChangePercent); err == nil {
		q.Change24h = pct.Div(decimal.NewFromInt(100))
	}
	if vol, err := decimal.NewFromString(t.QuoteVolume); err == nil {
		q.Volume24h = vol
	}
	return q, nil
}
