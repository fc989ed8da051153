package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trade-ledger/internal/backtest"
	"github.com/trade-ledger/internal/service"
)

var (
	rankReportPath string
	rankMetric     string
	rankJSON       bool
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Re-rank a saved backtest report by another metric",
	Long: `Rank reads a report written by "backtest --json" and orders its results by
the given metric. Ties are broken by strategy name.

Example:
  ledgerctl backtest -f sol.csv --json > report.json
  ledgerctl rank --report report.json --metric sharpe_ratio`,
	RunE: runRank,
}

func init() {
	rootCmd.AddCommand(rankCmd)
	rankCmd.Flags().StringVarP(&rankReportPath, "report", "r", "", "path to a JSON backtest report (required)")
	rankCmd.Flags().StringVarP(&rankMetric, "metric", "m", string(backtest.MetricTotalReturn), "ranking metric")
	rankCmd.Flags().BoolVar(&rankJSON, "json", false, "print the report as JSON")
	_ = rankCmd.MarkFlagRequired("report")
}

func runRank(cmd *cobra.Command, args []string) error {
	metric, err := backtest.ParseMetric(rankMetric)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(rankReportPath)
	if err != nil {
		return err
	}
	var report service.BacktestReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return fmt.Errorf("parse report: %w", err)
	}

	report.Metric = metric
	report.Ranking = backtest.RankStrategies(report.Ranking, metric)
	byName := make(map[string]backtest.Recommendation, len(report.Recommendations))
	for _, rec := range report.Recommendations {
		byName[rec.Strategy] = rec
	}
	report.Recommendations = report.Recommendations[:0]
	for _, r := range report.Ranking {
		if rec, ok := byName[r.Strategy]; ok {
			report.Recommendations = append(report.Recommendations, rec)
		}
	}

	out := cmd.OutOrStdout()
	if rankJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(out, &report)
	return nil
}
