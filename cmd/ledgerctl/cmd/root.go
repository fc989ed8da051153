package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operator tooling for the trade ledger",
	Long: `ledgerctl runs offline backtests against the strategy catalogue and
prepares operator credentials for the API server.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "path to the server config file")
}

// loadConfig reads the shared server configuration. Warnings and errors are
// logged to stderr so stdout stays machine readable.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{"stderr"}
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	log, err := zc.Build()
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
