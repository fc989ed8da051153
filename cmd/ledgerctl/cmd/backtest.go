package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trade-ledger/internal/backtest"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
	"github.com/trade-ledger/internal/service"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a candle series through one or more strategies and rank them",
	Long: `Backtest replays an OHLCV CSV (time,open,high,low,close[,volume]) through
the given strategies and ranks them by the chosen metric.

A strategy is given as name or name:rule. A bare name is looked up in the
strategy catalogue and its stored parameters are used. Without --strategy
every active stored strategy that has a backtest rule is run.

Rules: momentum, mean_reversion, breakout, sma_cross
Metrics: total_return, sharpe_ratio, win_rate, profit_factor, max_drawdown

Example:
  ledgerctl backtest --series data/sol_1h.csv --symbol SOL \
    --strategy momentum --strategy fast:sma_cross --fast 5 --slow 20`,
	RunE: runBacktest,
}

var (
	btSeriesPath string
	btSymbol     string
	btStrategies []string
	btMetric     string
	btJSON       bool

	btLookback  int
	btThreshold float64
	btFast      int
	btSlow      int
	btStop      float64
	btTake      float64
	btSize      float64
	btFeeBps    float64
	btCapital   float64
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	f := backtestCmd.Flags()
	f.StringVarP(&btSeriesPath, "series", "f", "", "path to candle CSV (required)")
	f.StringVar(&btSymbol, "symbol", "", "symbol label for the series")
	f.StringArrayVarP(&btStrategies, "strategy", "s", nil, "strategy as name or name:rule (repeatable)")
	f.StringVarP(&btMetric, "metric", "m", string(backtest.MetricTotalReturn), "ranking metric")
	f.BoolVar(&btJSON, "json", false, "print the report as JSON")

	f.IntVar(&btLookback, "lookback", 0, "moving average lookback in bars")
	f.Float64Var(&btThreshold, "threshold", 0, "entry threshold as a fraction of the average")
	f.IntVar(&btFast, "fast", 0, "sma_cross: fast period")
	f.IntVar(&btSlow, "slow", 0, "sma_cross: slow period")
	f.Float64Var(&btStop, "stop-loss", 0, "stop loss as a fraction of entry (0 disables)")
	f.Float64Var(&btTake, "take-profit", 0, "take profit as a fraction of entry (0 disables)")
	f.Float64Var(&btSize, "position-size", 0, "fraction of cash committed per entry")
	f.Float64Var(&btFeeBps, "fee-bps", 0, "fee per fill in basis points")
	f.Float64Var(&btCapital, "capital", 0, "initial capital")

	_ = backtestCmd.MarkFlagRequired("series")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	series, err := readSeries(btSeriesPath, btSymbol)
	if err != nil {
		return err
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := repository.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := repository.Migrate(db); err != nil {
		return err
	}
	ctx := context.Background()
	if err := repository.SeedStrategies(ctx, db); err != nil {
		return err
	}

	configs := make([]backtest.StrategyConfig, 0, len(btStrategies))
	for _, s := range btStrategies {
		configs = append(configs, applyOverrides(cmd, parseStrategyFlag(s)))
	}

	svc := service.NewBacktestService(repository.NewStrategyRepository(db), log)
	report, err := svc.Run(ctx, service.BacktestRequest{
		Series:     series,
		Strategies: configs,
		Metric:     btMetric,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if btJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(out, report)
	return nil
}

func readSeries(path, symbol string) (backtest.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return backtest.Series{}, err
	}
	defer f.Close()
	if symbol == "" {
		symbol = strings.TrimSuffix(strings.ToUpper(baseName(path)), ".CSV")
	}
	return backtest.LoadCSV(f, symbol)
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// parseStrategyFlag turns name or name:rule into a config. A name that is
// not a category takes its category from the rule.
func parseStrategyFlag(s string) backtest.StrategyConfig {
	name, rule, _ := strings.Cut(strings.TrimSpace(s), ":")
	cfg := backtest.StrategyConfig{Name: name, Rule: rule}
	if rule == "" || models.StrategyCategory(name).Valid() {
		return cfg
	}
	switch rule {
	case backtest.RuleMomentum:
		cfg.Category = models.CategoryMomentum
	case backtest.RuleMeanReversion:
		cfg.Category = models.CategoryMeanReversion
	default:
		cfg.Category = models.CategoryTechnical
	}
	return cfg
}

// applyOverrides copies the tuning flags that were set on cmd onto cfg.
func applyOverrides(cmd *cobra.Command, cfg backtest.StrategyConfig) backtest.StrategyConfig {
	f := cmd.Flags()
	if f.Changed("lookback") {
		cfg.Lookback = btLookback
	}
	if f.Changed("threshold") {
		cfg.EntryThreshold = btThreshold
	}
	if f.Changed("fast") {
		cfg.Fast = btFast
	}
	if f.Changed("slow") {
		cfg.Slow = btSlow
	}
	if f.Changed("stop-loss") {
		cfg.StopLoss = btStop
	}
	if f.Changed("take-profit") {
		cfg.TakeProfit = btTake
	}
	if f.Changed("position-size") {
		cfg.PositionSize = btSize
	}
	if f.Changed("fee-bps") {
		cfg.FeeBps = btFeeBps
	}
	if f.Changed("capital") {
		cfg.InitialCapital = btCapital
	}
	return cfg
}

func printReport(out io.Writer, report *service.BacktestReport) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ranked by %s\n\n", report.Metric)
	fmt.Fprintln(w, "RANK\tSTRATEGY\tRULE\tTRADES\tWIN RATE\tRETURN\tPROFIT FACTOR\tMAX DD\tSHARPE\tFINAL EQUITY")
	for _, r := range report.Ranking {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Rank, r.Strategy, r.Rule, r.TotalTrades,
			r.WinRate.StringFixed(models.RatioScale),
			r.TotalReturn.StringFixed(models.RatioScale),
			r.ProfitFactor.StringFixed(models.RatioScale),
			r.MaxDrawdown.StringFixed(models.RatioScale),
			r.SharpeRatio.StringFixed(models.RatioScale),
			r.FinalEquity.StringFixed(2))
	}
	w.Flush()

	fmt.Fprintln(out, "\nadvisory sizing (not applied):")
	for _, rec := range report.Recommendations {
		fmt.Fprintf(out, "  %s: max position %s, stop loss %s",
			rec.Strategy,
			rec.MaxPositionSize.StringFixed(models.RatioScale),
			rec.StopLossPct.StringFixed(models.RatioScale))
		if len(rec.Notes) > 0 {
			fmt.Fprintf(out, " (%s)", strings.Join(rec.Notes, "; "))
		}
		fmt.Fprintln(out)
	}
	for name, reason := range report.Skipped {
		fmt.Fprintf(out, "  skipped %s: %s\n", name, reason)
	}
}
