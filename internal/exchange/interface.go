package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrUnknownChain  = errors.New("unknown chain")
)

// Quote is a point-in-time market read for a token
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"` // fraction, 0.034 is +3.4%
	Volume24h decimal.Decimal `json:"volume_24h"` // quote-asset volume
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// PriceUpdate represents a streamed ticker update
type PriceUpdate struct {
	Exchange  string          `json:"exchange"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"`
	Timestamp int64           `json:"timestamp"` // unix ms
}

// PriceSubscriber is an interface for components that receive price updates
type PriceSubscriber interface {
	OnPriceUpdate(update PriceUpdate)
}

// MarketDataSource reads the current price of a token.
type MarketDataSource interface {
	// GetQuote returns the latest quote for a token symbol such as "SOL"
	GetQuote(ctx context.Context, symbol string) (Quote, error)

	// Name identifies the provider in logs and data-source tags
	Name() string
}

// BalanceSource reads native balances from a chain.
type BalanceSource interface {
	GetBalance(ctx context.Context, chain, address string) (decimal.Decimal, error)
}

// PriceStream is a push feed of ticker updates
type PriceStream interface {
	// Connect establishes the connection and starts delivering updates
	Connect(ctx context.Context) error

	// Subscribe adds token symbols to the feed
	Subscribe(symbols []string) error

	// SetSubscriber sets the price update subscriber
	SetSubscriber(subscriber PriceSubscriber)

	// IsConnected returns whether the stream is connected
	IsConnected() bool

	// Close closes the connection
	Close() error
}
