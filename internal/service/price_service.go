package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/cache"
	"github.com/trade-ledger/internal/exchange"
	"github.com/trade-ledger/internal/models"
)

const (
	// PriceUpdatesChannel carries "<provider>:<symbol>:<price>" messages.
	PriceUpdatesChannel = "price_updates"

	defaultQuoteTimeout = 3 * time.Second
	streamFreshness     = 10 * time.Second
	lkgKeyPrefix        = "price:lkg:"
)

// PricePoint is a resolved price with its provenance.
type PricePoint struct {
	Symbol    string            `json:"symbol"`
	Price     decimal.Decimal   `json:"price"`
	Change24h decimal.Decimal   `json:"change_24h"`
	Source    models.DataSource `json:"data_source"`
	Provider  string            `json:"provider"`
	At        time.Time         `json:"at"`
	Streamed  bool              `json:"streamed"`
}

// Fallback reports whether the price did not come from the feed just now.
func (p PricePoint) Fallback() bool {
	return p.Source == models.SourceStaticFallback
}

// PriceService resolves prices. Reads go to the stream cache, then the
// market data source, then the last-known-good value (memory, then store),
// then the static table. Only when all of those miss is the caller told the
// upstream is unavailable.
type PriceService struct {
	source  exchange.MarketDataSource
	stream  exchange.PriceStream
	store   cache.Store
	pub     cache.Publisher
	static  map[string]decimal.Decimal
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time

	prices    map[string]PricePoint // symbol -> last good
	pricesMux sync.RWMutex
}

// PriceServiceOption configures a PriceService
type PriceServiceOption func(*PriceService)

// WithPriceStore keeps last-known-good prices in store. A store that is
// also a cache.Publisher gets streamed updates published.
func WithPriceStore(store cache.Store) PriceServiceOption {
	return func(s *PriceService) {
		s.store = store
		if pub, ok := store.(cache.Publisher); ok {
			s.pub = pub
		}
	}
}

// WithPriceStream feeds streamed tickers into the price cache.
func WithPriceStream(stream exchange.PriceStream) PriceServiceOption {
	return func(s *PriceService) { s.stream = stream }
}

// WithStaticPrices sets the last-resort price table. Bad entries are skipped.
func WithStaticPrices(prices map[string]string) PriceServiceOption {
	return func(s *PriceService) {
		for sym, p := range prices {
			d, err := decimal.NewFromString(p)
			if err != nil {
				s.log.Warn("ignoring bad static price", zap.String("symbol", sym), zap.String("price", p))
				continue
			}
			s.static[strings.ToUpper(sym)] = d
		}
	}
}

// WithQuoteTimeout bounds each feed call.
func WithQuoteTimeout(d time.Duration) PriceServiceOption {
	return func(s *PriceService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPriceClock replaces the wall clock.
func WithPriceClock(now func() time.Time) PriceServiceOption {
	return func(s *PriceService) { s.now = now }
}

// NewPriceService creates a new PriceService
func NewPriceService(source exchange.MarketDataSource, log *zap.Logger, opts ...PriceServiceOption) *PriceService {
	s := &PriceService{
		source:  source,
		static:  make(map[string]decimal.Decimal),
		timeout: defaultQuoteTimeout,
		log:     log.Named("price"),
		now:     time.Now,
		prices:  make(map[string]PricePoint),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects the stream, if any, and subscribes symbols. A stream that
// cannot connect is logged and reads fall back to REST.
func (s *PriceService) Start(ctx context.Context, symbols []string) {
	if s.stream == nil {
		return
	}
	s.stream.SetSubscriber(s)
	if err := s.stream.Connect(ctx); err != nil {
		s.log.Warn("price stream unavailable", zap.Error(err))
		return
	}
	if err := s.stream.Subscribe(symbols); err != nil {
		s.log.Warn("price stream subscribe failed", zap.Error(err))
	}
	s.log.Info("price stream started", zap.Int("symbols", len(symbols)))
}

// Stop closes the stream
func (s *PriceService) Stop() {
	if s.stream == nil {
		return
	}
	if err := s.stream.Close(); err != nil {
		s.log.Warn("error closing price stream", zap.Error(err))
	}
}

// StreamConnected reports the stream state; false without a stream.
func (s *PriceService) StreamConnected() bool {
	return s.stream != nil && s.stream.IsConnected()
}

// ProviderName is the market data source name
func (s *PriceService) ProviderName() string {
	return s.source.Name()
}

// OnPriceUpdate implements exchange.PriceSubscriber
func (s *PriceService) OnPriceUpdate(update exchange.PriceUpdate) {
	p := PricePoint{
		Symbol:    strings.ToUpper(update.Symbol),
		Price:     update.Price,
		Change24h: update.Change24h,
		Source:    models.SourceExternalFeed,
		Provider:  update.Exchange,
		At:        time.UnixMilli(update.Timestamp).UTC(),
		Streamed:  true,
	}
	s.remember(p)

	if s.pub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		msg := fmt.Sprintf("%s:%s:%s", update.Exchange, p.Symbol, update.Price.String())
		if err := s.pub.Publish(ctx, PriceUpdatesChannel, msg); err != nil {
			s.log.Debug("publish failed", zap.Error(err))
		}
	}
}

// GetPrice resolves the price of symbol. Fallback values come back with
// Source static_fallback and no error.
func (s *PriceService) GetPrice(ctx context.Context, symbol string) (PricePoint, error) {
	symbol = strings.ToUpper(symbol)

	s.pricesMux.RLock()
	cached, ok := s.prices[symbol]
	s.pricesMux.RUnlock()
	if ok && cached.Streamed && s.now().Sub(cached.At) < streamFreshness {
		return cached, nil
	}

	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	q, err := s.source.GetQuote(qctx, symbol)
	cancel()
	if err == nil {
		p := PricePoint{
			Symbol:    symbol,
			Price:     q.Price,
			Change24h: q.Change24h,
			Source:    models.SourceExternalFeed,
			Provider:  s.source.Name(),
			At:        s.now().UTC(),
		}
		s.remember(p)
		return p, nil
	}

	s.log.Warn("price feed unavailable, using fallback",
		zap.String("symbol", symbol),
		zap.String("provider", s.source.Name()),
		zap.String("data_source", string(models.SourceStaticFallback)),
		zap.Error(err))
	return s.fallback(ctx, symbol, err)
}

// LastKnown returns the memory last-known-good price without calling out.
func (s *PriceService) LastKnown(symbol string) (PricePoint, bool) {
	s.pricesMux.RLock()
	defer s.pricesMux.RUnlock()
	p, ok := s.prices[strings.ToUpper(symbol)]
	return p, ok
}

func (s *PriceService) fallback(ctx context.Context, symbol string, cause error) (PricePoint, error) {
	if p, ok := s.LastKnown(symbol); ok {
		p.Source = models.SourceStaticFallback
		return p, nil
	}

	if s.store != nil {
		raw, found, err := s.store.Get(ctx, lkgKeyPrefix+symbol)
		switch {
		case err != nil:
			s.log.Warn("price store unavailable", zap.Error(err))
		case found:
			var p PricePoint
			if err := json.Unmarshal(raw, &p); err == nil {
				p.Source = models.SourceStaticFallback
				p.Streamed = false
				return p, nil
			}
		}
	}

	if price, ok := s.static[symbol]; ok {
		return PricePoint{
			Symbol:   symbol,
			Price:    price,
			Source:   models.SourceStaticFallback,
			Provider: "static",
			At:       s.now().UTC(),
		}, nil
	}

	return PricePoint{}, fmt.Errorf("%w: price for %s: %v", ErrUpstreamUnavailable, symbol, cause)
}

func (s *PriceService) remember(p PricePoint) {
	s.pricesMux.Lock()
	s.prices[p.Symbol] = p
	s.pricesMux.Unlock()

	if s.store == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.store.Set(ctx, lkgKeyPrefix+p.Symbol, raw, 0); err != nil {
		s.log.Debug("price store write failed", zap.Error(err))
	}
}
