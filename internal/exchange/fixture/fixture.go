// Package fixture provides deterministic market data for tests and offline runs.
package fixture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trade-ledger/internal/exchange"
)

// Source serves quotes and balances from in-memory tables.
type Source struct {
	mu       sync.RWMutex
	quotes   map[string]exchange.Quote
	errs     map[string]error
	balances map[string]decimal.Decimal
	calls    map[string]int
	now      func() time.Time
}

// New builds a source from symbol -> price strings. Invalid prices panic.
func New(prices map[string]string) *Source {
	s := &Source{
		quotes:   make(map[string]exchange.Quote),
		errs:     make(map[string]error),
		balances: make(map[string]decimal.Decimal),
		calls:    make(map[string]int),
		now:      func() time.Time { return time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC) },
	}
	for sym, p := range prices {
		s.SetPrice(sym, decimal.RequireFromString(p), decimal.Zero)
	}
	return s
}

// WithClock sets the timestamp stamped on quotes.
func (s *Source) WithClock(now func() time.Time) *Source {
	s.now = now
	return s
}

// Name implements exchange.MarketDataSource
func (s *Source) Name() string {
	return "fixture"
}

// SetPrice sets the quote for symbol and clears any configured error.
func (s *Source) SetPrice(symbol string, price, change24h decimal.Decimal) {
	symbol = strings.ToUpper(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[symbol] = exchange.Quote{
		Symbol:    symbol,
		Price:     price,
		Change24h: change24h,
		Source:    s.Name(),
	}
	delete(s.errs, symbol)
}

// Fail makes every read of symbol return err.
func (s *Source) Fail(symbol string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[strings.ToUpper(symbol)] = err
}

// Calls returns how many times symbol was requested.
func (s *Source) Calls(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[strings.ToUpper(symbol)]
}

// GetQuote implements exchange.MarketDataSource
func (s *Source) GetQuote(ctx context.Context, symbol string) (exchange.Quote, error) {
	if err := ctx.Err(); err != nil {
		return exchange.Quote{}, err
	}
	symbol = strings.ToUpper(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[symbol]++
	if err, ok := s.errs[symbol]; ok {
		return exchange.Quote{}, err
	}
	q, ok := s.quotes[symbol]
	if !ok {
		return exchange.Quote{}, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol)
	}
	q.Timestamp = s.now()
	return q, nil
}

// SetBalance sets the native balance of an address on a chain.
func (s *Source) SetBalance(chain, address string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[chain+"/"+address] = amount
}

// GetBalance implements exchange.BalanceSource
func (s *Source) GetBalance(ctx context.Context, chain, address string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.errs[chain]; ok {
		return decimal.Zero, err
	}
	return s.balances[chain+"/"+address], nil
}
