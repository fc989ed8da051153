package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/cache"
	"github.com/trade-ledger/internal/config"
	"github.com/trade-ledger/internal/exchange/fixture"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
	"github.com/trade-ledger/internal/repository/repotest"
)

// Tuesday 10:00 in New York.
var testNow = time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	clock      *clock
	feed       *fixture.Source
	lkg        *cache.MemoryStore
	trades     *repository.TradeRepository
	strategies *repository.StrategyRepository
	snapshots  *repository.SnapshotRepository
	insightsDB *repository.InsightRepository
	signalsDB  *repository.SignalRepository

	prices    *PriceService
	journal   *JournalService
	analytics *AnalyticsService
	portfolio *PortfolioService
	insights  *InsightService
	signals   *SignalService
	engine    *TradingEngine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := repotest.NewDB(t)
	log := zap.NewNop()
	c := &clock{t: testNow}

	env := &testEnv{
		clock:      c,
		feed:       fixture.New(map[string]string{"SOL": "160", "ETH": "3000", "BTC": "60000"}).WithClock(c.Now),
		lkg:        cache.NewMemoryStore(),
		trades:     repository.NewTradeRepository(db),
		strategies: repository.NewStrategyRepository(db),
		snapshots:  repository.NewSnapshotRepository(db),
		insightsDB: repository.NewInsightRepository(db),
		signalsDB:  repository.NewSignalRepository(db),
	}
	env.prices = NewPriceService(env.feed, log,
		WithPriceStore(env.lkg),
		WithStaticPrices(map[string]string{"USDT": "1", "ADA": "0.5"}),
		WithQuoteTimeout(time.Second),
		WithPriceClock(c.Now))
	env.journal = NewJournalService(env.trades, env.strategies, log).WithClock(c.Now)
	env.analytics = NewAnalyticsService(env.trades, env.strategies, log).WithClock(c.Now)
	env.portfolio = NewPortfolioService(env.snapshots, env.trades, env.prices, env.feed, SnapshotInput{
		Holdings: []HoldingInput{{Symbol: "SOL", Quantity: models.MoneyPtr(models.MustMoney("10"))}},
		Cash:     models.MoneyPtr(models.MustMoney("100")),
	}, log).WithClock(c.Now)
	env.insights = NewInsightService(env.insightsDB, env.analytics, log).WithClock(c.Now)

	cfg := config.Default().Signals
	cfg.Chains = []string{"ethereum", "solana", "bitcoin"}
	cfg.Watchlist = map[string][]string{
		"ethereum": {"ETH"},
		"solana":   {"SOL"},
		"bitcoin":  {"BTC"},
		"cardano":  {"ADA"},
	}
	cfg.Lookback = 0
	env.signals = NewSignalService(env.prices, env.signalsDB, cfg, func(time.Time) float64 { return 0.1 }, log).WithClock(c.Now)
	env.engine = NewTradingEngine(env.journal, env.analytics, env.portfolio, env.signals, env.insights, env.prices, log).WithClock(c.Now)
	return env
}

func ratio(s string) *models.Ratio { return models.RatioPtr(models.MustRatio(s)) }
func money(s string) *models.Money { return models.MoneyPtr(models.MustMoney(s)) }

// solBuy is the reference buy: 1.5 SOL at 160 on the momentum strategy.
func solBuy() RecordTradeInput {
	return RecordTradeInput{
		Action:          models.ActionBuy,
		TokenSymbol:     "SOL",
		Quantity:        money("1.5"),
		PriceEntry:      money("160.00"),
		CostBasis:       money("240.00"),
		Fees:            money("0.50"),
		AIConfidence:    ratio("0.80"),
		Reasoning:       "momentum breakout",
		RiskScore:       ratio("0.30"),
		Strategy:        "momentum",
		SignalSource:    "signal_generator",
		ExecutionMethod: models.ExecutionAutomated,
		PositionSize:    ratio("0.05"),
	}
}

func solExit() ExitInput {
	hold := int64(3600)
	return ExitInput{
		PriceExit:            money("170.00"),
		RealizedPnL:          money("14.50"),
		WinLoss:              models.WinLossWin,
		HoldingPeriodSeconds: &hold,
	}
}

func exitWith(outcome models.WinLoss, pnl string) ExitInput {
	in := solExit()
	in.WinLoss = outcome
	in.RealizedPnL = money(pnl)
	return in
}

// assertFields checks that err is a validation error naming exactly fields.
func assertFields(t *testing.T, err error, fields ...string) {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want validation error, got %v", err)
	}
	assert.ElementsMatch(t, fields, verr.FieldNames())
}
