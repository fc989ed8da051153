package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 3*time.Second, cfg.Market.Timeout)
	assert.Contains(t, cfg.Signals.Watchlist, "solana")
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
server:
  port: 9090
database:
  driver: postgres
  host: db.internal
  dbname: ledger
market:
  timeout: 2s
  static_prices:
    SOL: "155.5"
signals:
  chains: [solana]
  watchlist:
    solana: [SOL]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("LEDGER_DATABASE_HOST", "override.internal")
	t.Setenv("LEDGER_AUTH_EXPIRE_HOURS", "2")
	t.Setenv("LEDGER_SIGNALS_CHAIN_TIMEOUT", "750ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "override.internal", cfg.Database.Host, "env wins over file")
	assert.Equal(t, "ledger", cfg.Database.DBName)
	assert.Equal(t, 2, cfg.Auth.ExpireHours)
	assert.Equal(t, 750*time.Millisecond, cfg.Signals.ChainTimeout)
	assert.Equal(t, 2*time.Second, cfg.Market.Timeout)
	assert.Equal(t, "155.5", cfg.Market.StaticPrices["SOL"])
	assert.Equal(t, "60000", cfg.Market.StaticPrices["BTC"], "file entries merge into defaults")
	assert.Equal(t, []string{"SOL"}, cfg.Signals.Watchlist["solana"])
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", c.DSN())
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 3*time.Second, cfg.Market.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Signals.Lookback)
	assert.Equal(t, "@every 30s", cfg.Scheduler.ExitSpec)
	require.Len(t, cfg.Portfolio.Holdings, 2)
	assert.Equal(t, "ethereum", cfg.Portfolio.Holdings[1].Chain)
}
