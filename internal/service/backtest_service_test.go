package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/backtest"
)

func waveSeries(n int) backtest.Series {
	s := backtest.Series{Symbol: "SOL"}
	for i := 0; i < n; i++ {
		c := decimal.NewFromFloat(100 + 10*math.Sin(float64(i)/3)).Round(2)
		s.Bars = append(s.Bars, backtest.Bar{
			Time: testNow.Add(time.Duration(i) * time.Hour),
			Open: c, High: c.Add(decimal.NewFromInt(1)), Low: c.Sub(decimal.NewFromInt(1)), Close: c,
		})
	}
	return s
}

func TestBacktestStoredStrategies(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBacktestService(env.strategies, zap.NewNop())

	report, err := svc.Run(context.Background(), BacktestRequest{Series: waveSeries(80)})
	require.NoError(t, err)

	assert.Equal(t, backtest.MetricTotalReturn, report.Metric)
	require.Len(t, report.Ranking, 3)
	require.Len(t, report.Recommendations, 3)

	var ranked []string
	for i, r := range report.Ranking {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, r.Strategy, report.Recommendations[i].Strategy)
		ranked = append(ranked, r.Strategy)
	}
	assert.ElementsMatch(t, []string{"momentum", "mean_reversion", "technical"}, ranked)
	assert.Len(t, report.Skipped, 3)
	assert.Contains(t, report.Skipped, "arbitrage")

	again, err := svc.Run(context.Background(), BacktestRequest{Series: waveSeries(80)})
	require.NoError(t, err)
	assert.Equal(t, report.Ranking, again.Ranking)
}

func TestBacktestOverlaysStoredParameters(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBacktestService(env.strategies, zap.NewNop())

	report, err := svc.Run(context.Background(), BacktestRequest{
		Series:     waveSeries(60),
		Strategies: []backtest.StrategyConfig{{Name: "mean_reversion", Lookback: 5}, {Name: "custom", Rule: backtest.RuleBreakout, Lookback: 4}},
		Metric:     "max_drawdown",
	})
	require.NoError(t, err)
	require.Len(t, report.Ranking, 2)
	assert.Equal(t, backtest.MetricMaxDrawdown, report.Metric)
	assert.Nil(t, report.Skipped)

	for _, r := range report.Ranking {
		if r.Strategy == "mean_reversion" {
			assert.Equal(t, backtest.RuleMeanReversion, r.Rule)
		}
	}
}

func TestBacktestValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBacktestService(env.strategies, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Run(ctx, BacktestRequest{Metric: "vibes"})
	assertFields(t, err, "metric", "series")

	_, err = svc.Run(ctx, BacktestRequest{
		Series:     waveSeries(10),
		Strategies: []backtest.StrategyConfig{{Name: "arbitrage"}},
	})
	assertFields(t, err, "strategies.arbitrage")
}
