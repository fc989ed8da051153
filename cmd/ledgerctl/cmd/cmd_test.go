package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/trade-ledger/internal/backtest"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/service"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestParseStrategyFlag(t *testing.T) {
	tests := []struct {
		in   string
		want backtest.StrategyConfig
	}{
		{"momentum", backtest.StrategyConfig{Name: "momentum"}},
		{"technical:breakout", backtest.StrategyConfig{Name: "technical", Rule: backtest.RuleBreakout}},
		{"fast:sma_cross", backtest.StrategyConfig{Name: "fast", Rule: backtest.RuleSMACross, Category: models.CategoryTechnical}},
		{"dip:mean_reversion", backtest.StrategyConfig{Name: "dip", Rule: backtest.RuleMeanReversion, Category: models.CategoryMeanReversion}},
		{" trend:momentum ", backtest.StrategyConfig{Name: "trend", Rule: backtest.RuleMomentum, Category: models.CategoryMomentum}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseStrategyFlag(tt.in), tt.in)
	}
}

func TestHashPasswordAndSecret(t *testing.T) {
	hash := strings.TrimSpace(execute(t, "hash-password", "hunter22"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter22")))

	secret := strings.TrimSpace(execute(t, "secret"))
	assert.Len(t, secret, 43)
}

func TestBacktestCommand(t *testing.T) {
	dir := t.TempDir()

	var csv strings.Builder
	csv.WriteString("time,open,high,low,close,volume\n")
	closes := []int{90, 90, 90, 100, 105, 103, 99, 101, 108, 110}
	for i, c := range closes {
		fmt.Fprintf(&csv, "2026-01-%02d,%d,%d,%d,%d,1000\n", i+1, c, c+1, c-1, c)
	}
	seriesPath := filepath.Join(dir, "sol.csv")
	require.NoError(t, os.WriteFile(seriesPath, []byte(csv.String()), 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := fmt.Sprintf("database:\n  driver: sqlite\n  path: %s\n  log_level: silent\n", filepath.Join(dir, "ledger.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))

	out := execute(t, "backtest", "-c", cfgPath, "--series", seriesPath,
		"--strategy", "trend:momentum", "--lookback", "3", "--json")

	var report service.BacktestReport
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Equal(t, backtest.MetricTotalReturn, report.Metric)
	require.Len(t, report.Ranking, 1)
	assert.Equal(t, "trend", report.Ranking[0].Strategy)
	assert.Equal(t, "SOL", report.Ranking[0].Symbol)
	assert.Equal(t, 1, report.Ranking[0].Rank)
	assert.Len(t, report.Recommendations, 1)
}

func TestPrintReport(t *testing.T) {
	report := &service.BacktestReport{
		Metric: backtest.MetricSharpeRatio,
		Ranking: []backtest.Result{{
			Rank: 1, Strategy: "momentum", Rule: backtest.RuleMomentum, TotalTrades: 3,
			WinRate: models.MustRatio("0.6667"), FinalEquity: models.MustMoney("10500"),
		}},
		Recommendations: []backtest.Recommendation{{
			Strategy: "momentum", MaxPositionSize: models.MustRatio("0.25"), StopLossPct: models.MustRatio("0.01"),
			Notes: []string{"fewer than 10 trades"},
		}},
		Skipped: map[string]string{"arbitrage": "unsupported"},
	}
	var out bytes.Buffer
	printReport(&out, report)
	s := out.String()
	assert.Contains(t, s, "ranked by sharpe_ratio")
	assert.Contains(t, s, "0.6667")
	assert.Contains(t, s, "10500.00")
	assert.Contains(t, s, "momentum: max position 0.2500, stop loss 0.0100 (fewer than 10 trades)")
	assert.Contains(t, s, "skipped arbitrage: unsupported")
}

func TestRankCommand(t *testing.T) {
	report := service.BacktestReport{
		Metric: backtest.MetricTotalReturn,
		Ranking: []backtest.Result{
			{Rank: 1, Strategy: "wild", TotalReturn: models.MustRatio("0.3"), MaxDrawdown: models.MustRatio("0.25")},
			{Rank: 2, Strategy: "calm", TotalReturn: models.MustRatio("0.1"), MaxDrawdown: models.MustRatio("0.05")},
		},
		Recommendations: []backtest.Recommendation{{Strategy: "wild"}, {Strategy: "calm"}},
	}
	raw, err := json.Marshal(report)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	out := execute(t, "rank", "--report", path, "--metric", "max_drawdown", "--json")
	var got service.BacktestReport
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, backtest.MetricMaxDrawdown, got.Metric)
	require.Len(t, got.Ranking, 2)
	assert.Equal(t, "calm", got.Ranking[0].Strategy)
	assert.Equal(t, 1, got.Ranking[0].Rank)
	assert.Equal(t, "calm", got.Recommendations[0].Strategy)
}

func TestApplyOverridesOnlyCopiesChangedFlags(t *testing.T) {
	c := &cobra.Command{Use: "bt"}
	c.Flags().IntVar(&btFast, "fast", 0, "")
	c.Flags().IntVar(&btSlow, "slow", 0, "")
	c.Flags().IntVar(&btLookback, "lookback", 0, "")
	require.NoError(t, c.ParseFlags([]string{"--fast", "5", "--slow", "20"}))

	got := applyOverrides(c, backtest.StrategyConfig{Name: "fast", Rule: backtest.RuleSMACross, Lookback: 14})
	assert.Equal(t, 5, got.Fast)
	assert.Equal(t, 20, got.Slow)
	assert.Equal(t, 14, got.Lookback, "unset flags keep the stored value")
}
