package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/cache"
	"github.com/trade-ledger/internal/exchange"
	"github.com/trade-ledger/internal/exchange/fixture"
	"github.com/trade-ledger/internal/models"
)

type recordingPublisher struct {
	*cache.MemoryStore
	messages []string
}

func (p *recordingPublisher) Publish(_ context.Context, channel, message string) error {
	p.messages = append(p.messages, channel+"|"+message)
	return nil
}

func TestGetPriceFallbackChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.prices.GetPrice(ctx, "sol")
	require.NoError(t, err)
	assert.Equal(t, "160", p.Price.String())
	assert.Equal(t, models.SourceExternalFeed, p.Source)
	assert.False(t, p.Fallback())

	// feed goes down: memory last-known-good
	env.feed.Fail("SOL", errors.New("timeout"))
	p, err = env.prices.GetPrice(ctx, "SOL")
	require.NoError(t, err)
	assert.Equal(t, "160", p.Price.String())
	assert.Equal(t, models.SourceStaticFallback, p.Source)

	// a fresh service only has the shared store
	fresh := NewPriceService(env.feed, zap.NewNop(), WithPriceStore(env.lkg))
	p, err = fresh.GetPrice(ctx, "SOL")
	require.NoError(t, err)
	assert.Equal(t, "160", p.Price.String())
	assert.True(t, p.Fallback())

	// static table
	p, err = env.prices.GetPrice(ctx, "ADA")
	require.NoError(t, err)
	assert.Equal(t, "0.5", p.Price.String())
	assert.Equal(t, "static", p.Provider)
	assert.True(t, p.Fallback())

	// nothing at all
	_, err = env.prices.GetPrice(ctx, "NOPE")
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
}

func TestGetPriceUsesFreshStreamUpdates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.prices.OnPriceUpdate(exchange.PriceUpdate{
		Exchange:  "binance",
		Symbol:    "ETH",
		Price:     decimal.NewFromInt(3100),
		Timestamp: testNow.UnixMilli(),
	})
	p, err := env.prices.GetPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, "3100", p.Price.String())
	assert.True(t, p.Streamed)
	assert.Equal(t, 0, env.feed.Calls("ETH"))

	// stale stream values are refreshed from the feed
	env.clock.Advance(time.Minute)
	p, err = env.prices.GetPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, "3000", p.Price.String())
	assert.False(t, p.Streamed)
	assert.Equal(t, 1, env.feed.Calls("ETH"))
}

func TestOnPriceUpdatePublishes(t *testing.T) {
	pub := &recordingPublisher{MemoryStore: cache.NewMemoryStore()}
	s := NewPriceService(fixture.New(nil), zap.NewNop(), WithPriceStore(pub))

	s.OnPriceUpdate(exchange.PriceUpdate{Exchange: "binance", Symbol: "BTC", Price: decimal.NewFromInt(61000), Timestamp: 1})
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "price_updates|binance:BTC:61000", pub.messages[0])

	raw, found, err := pub.Get(context.Background(), "price:lkg:BTC")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Contains(t, string(raw), `"61000"`)
}
