package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. LEDGER_DATABASE_HOST.
const EnvPrefix = "LEDGER"

type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	Redis     RedisConfig     `yaml:"redis" envconfig:"REDIS"`
	Auth      AuthConfig      `yaml:"auth" envconfig:"AUTH"`
	Log       LogConfig       `yaml:"log" envconfig:"LOG"`
	Market    MarketConfig    `yaml:"market" envconfig:"MARKET"`
	ChainRPC  ChainRPCConfig  `yaml:"chainrpc" envconfig:"CHAINRPC"`
	Signals   SignalsConfig   `yaml:"signals" envconfig:"SIGNALS"`
	Scheduler SchedulerConfig `yaml:"scheduler" envconfig:"SCHEDULER"`
	Portfolio PortfolioConfig `yaml:"portfolio" envconfig:"PORTFOLIO"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"` // sqlite file
	LogLevel string `yaml:"log_level" split_words:"true"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a redis server is configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

type AuthConfig struct {
	Enabled              bool   `yaml:"enabled"`
	Secret               string `yaml:"secret"`
	ExpireHours          int    `yaml:"expire_hours" split_words:"true"`
	OperatorUser         string `yaml:"operator_user" split_words:"true"`
	OperatorPasswordHash string `yaml:"operator_password_hash" split_words:"true"` // bcrypt
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb" split_words:"true"`
	MaxBackups int    `yaml:"max_backups" split_words:"true"`
	MaxAgeDays int    `yaml:"max_age_days" split_words:"true"`
}

type MarketConfig struct {
	Provider     string            `yaml:"provider"` // binance or fixture
	BaseURL      string            `yaml:"base_url" split_words:"true"`
	StreamURL    string            `yaml:"stream_url" split_words:"true"`
	StreamEnable bool              `yaml:"stream_enable" split_words:"true"`
	QuoteAsset   string            `yaml:"quote_asset" split_words:"true"`
	Timeout      time.Duration     `yaml:"timeout"`
	StaticPrices map[string]string `yaml:"static_prices" split_words:"true"`
	Symbols      []string          `yaml:"symbols"`
}

type ChainRPCConfig struct {
	Timeout   time.Duration     `yaml:"timeout"`
	Endpoints map[string]string `yaml:"endpoints"`
}

type SignalsConfig struct {
	Chains         []string            `yaml:"chains"`
	BaseConfidence float64             `yaml:"base_confidence" split_words:"true"`
	Threshold      float64             `yaml:"threshold"`
	Seed           int64               `yaml:"seed"`
	Jitter         float64             `yaml:"jitter"`
	ChainTimeout   time.Duration       `yaml:"chain_timeout" split_words:"true"`
	Lookback       time.Duration       `yaml:"lookback"`
	Watchlist      map[string][]string `yaml:"watchlist" ignored:"true"`
}

type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	SnapshotSpec string `yaml:"snapshot_spec" split_words:"true"`
	SignalSpec   string `yaml:"signal_spec" split_words:"true"`
	ExitSpec     string `yaml:"exit_spec" split_words:"true"`
}

// HoldingConfig is one configured position. Quantity may be left empty
// when Chain and Address are set; the balance is then read over RPC.
type HoldingConfig struct {
	Symbol   string `yaml:"symbol"`
	Quantity string `yaml:"quantity"`
	Chain    string `yaml:"chain"`
	Address  string `yaml:"address"`
}

type PortfolioConfig struct {
	BaseAsset string          `yaml:"base_asset" split_words:"true"`
	Cash      string          `yaml:"cash"`
	Holdings  []HoldingConfig `yaml:"holdings" ignored:"true"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "release"},
		Database: DatabaseConfig{Driver: "sqlite", Path: "data/ledger.db", Port: 5432, SSLMode: "disable", LogLevel: "warn"},
		Redis:    RedisConfig{Port: 6379},
		Auth:     AuthConfig{ExpireHours: 24, OperatorUser: "operator"},
		Log:      LogConfig{Level: "info", Dir: "logs", MaxSizeMB: 10, MaxBackups: 30, MaxAgeDays: 30},
		Market: MarketConfig{
			Provider:   "binance",
			BaseURL:    "https://api.binance.com",
			StreamURL:  "wss://stream.binance.com:9443/ws",
			QuoteAsset: "USDT",
			Timeout:    3 * time.Second,
			StaticPrices: map[string]string{
				"BTC": "60000", "ETH": "3000", "SOL": "150", "USDT": "1", "USDC": "1",
			},
			Symbols: []string{"BTC", "ETH", "SOL"},
		},
		ChainRPC: ChainRPCConfig{Timeout: 3 * time.Second, Endpoints: map[string]string{}},
		Signals: SignalsConfig{
			Chains:         []string{"ethereum", "solana", "bitcoin"},
			BaseConfidence: 0.5,
			Threshold:      0.02,
			ChainTimeout:   3 * time.Second,
			Lookback:       15 * time.Minute,
			Watchlist:      DefaultWatchlist(),
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			SnapshotSpec: "@every 1h",
			SignalSpec:   "@every 15m",
			ExitSpec:     "@every 30s",
		},
		Portfolio: PortfolioConfig{BaseAsset: "ETH", Cash: "0"},
	}
}

// DefaultWatchlist maps each supported chain to the tokens scanned on it.
func DefaultWatchlist() map[string][]string {
	return map[string][]string{
		"ethereum":  {"ETH", "LINK", "UNI", "AAVE"},
		"bitcoin":   {"BTC"},
		"polygon":   {"POL"},
		"bsc":       {"BNB"},
		"arbitrum":  {"ARB"},
		"optimism":  {"OP"},
		"avalanche": {"AVAX"},
		"solana":    {"SOL", "JUP", "BONK"},
		"cardano":   {"ADA"},
	}
}

// Load loads configuration from file and environment variables.
// A missing file yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	// Override with environment variables if present
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, err
	}

	if len(cfg.Signals.Watchlist) == 0 {
		cfg.Signals.Watchlist = DefaultWatchlist()
	}
	return cfg, nil
}

// Addr returns the listen address
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}
