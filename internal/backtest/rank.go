package backtest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Metric is a ranking key.
type Metric string

const (
	MetricTotalReturn  Metric = "total_return"
	MetricSharpeRatio  Metric = "sharpe_ratio"
	MetricWinRate      Metric = "win_rate"
	MetricProfitFactor Metric = "profit_factor"
	MetricMaxDrawdown  Metric = "max_drawdown"
)

// ParseMetric accepts a metric name; empty means total_return.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MetricTotalReturn, nil
	case MetricTotalReturn, MetricSharpeRatio, MetricWinRate, MetricProfitFactor, MetricMaxDrawdown:
		return m, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

func (m Metric) value(r Result) decimal.Decimal {
	switch m {
	case MetricSharpeRatio:
		return r.SharpeRatio.Decimal
	case MetricWinRate:
		return r.WinRate.Decimal
	case MetricProfitFactor:
		return r.ProfitFactor.Decimal
	case MetricMaxDrawdown:
		return r.MaxDrawdown.Decimal
	}
	return r.TotalReturn.Decimal
}

// ascending reports whether smaller values rank first.
func (m Metric) ascending() bool {
	return m == MetricMaxDrawdown
}

// RankStrategies returns a ranked copy of results, best first. Equal metric
// values are ordered by strategy name so the order is total.
func RankStrategies(results []Result, metric Metric) []Result {
	if metric == "" {
		metric = MetricTotalReturn
	}
	ranked := make([]Result, len(results))
	copy(ranked, results)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := metric.value(ranked[i]), metric.value(ranked[j])
		if c := a.Cmp(b); c != 0 {
			if metric.ascending() {
				return c < 0
			}
			return c > 0
		}
		return ranked[i].Strategy < ranked[j].Strategy
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
