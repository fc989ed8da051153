package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/cache"
	"github.com/trade-ledger/internal/config"
	"github.com/trade-ledger/internal/exchange"
	"github.com/trade-ledger/internal/exchange/binance"
	"github.com/trade-ledger/internal/exchange/chainrpc"
	"github.com/trade-ledger/internal/exchange/fixture"
	"github.com/trade-ledger/internal/handler"
	"github.com/trade-ledger/internal/logger"
	"github.com/trade-ledger/internal/repository"
	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/internal/worker"
)

// Build info (injected at build time via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("server exited properly")
}

func run(cfg *config.Config, log *zap.Logger) error {
	gin.SetMode(cfg.Server.Mode)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(cfg.Database)
	if err != nil {
		return err
	}
	if err := repository.Migrate(db); err != nil {
		return err
	}
	if err := repository.SeedStrategies(ctx, db); err != nil {
		return err
	}

	store, closeStore := initStore(ctx, cfg.Redis, log)
	defer closeStore()

	source, stream := initMarket(cfg.Market, log)
	prices := service.NewPriceService(source, log,
		service.WithPriceStore(store),
		service.WithPriceStream(stream),
		service.WithStaticPrices(cfg.Market.StaticPrices),
		service.WithQuoteTimeout(cfg.Market.Timeout))
	prices.Start(ctx, cfg.Market.Symbols)
	defer prices.Stop()

	var balances exchange.BalanceSource = chainrpc.NewClient(cfg.ChainRPC.Endpoints, cfg.ChainRPC.Timeout)
	defaults, err := service.SnapshotInputFromConfig(cfg.Portfolio)
	if err != nil {
		return err
	}

	trades := repository.NewTradeRepository(db)
	strategies := repository.NewStrategyRepository(db)

	journal := service.NewJournalService(trades, strategies, log)
	analytics := service.NewAnalyticsService(trades, strategies, log)
	portfolio := service.NewPortfolioService(repository.NewSnapshotRepository(db), trades, prices, balances, defaults, log)
	insights := service.NewInsightService(repository.NewInsightRepository(db), analytics, log)
	signals := service.NewSignalService(prices, repository.NewSignalRepository(db), cfg.Signals,
		service.SessionVolatility(cfg.Signals.Seed, cfg.Signals.Jitter), log)
	engine := service.NewTradingEngine(journal, analytics, portfolio, signals, insights, prices, log)

	router := handler.NewRouter(handler.Services{
		Journal:   journal,
		Analytics: analytics,
		Portfolio: portfolio,
		Insights:  insights,
		Prices:    prices,
		Engine:    engine,
		Backtests: service.NewBacktestService(strategies, log),
		Auth:      service.NewAuthService(cfg.Auth),
	}, handler.BuildInfo{Version: Version, Commit: Commit, BuildTime: BuildTime}, log)

	if cfg.Scheduler.Enabled {
		sched := worker.NewScheduler(ctx, log)
		err := worker.Register(sched, cfg.Scheduler, worker.Jobs{
			Portfolio: portfolio,
			Engine:    engine,
			Insights:  insights,
			Exits:     worker.NewSLTPWorker(journal, prices, engine, log),
		})
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// initStore connects redis when configured and falls back to an in-process
// store otherwise.
func initStore(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (cache.Store, func()) {
	if !cfg.Enabled() {
		return cache.NewMemoryStore(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, keeping prices in memory", zap.String("addr", cfg.Addr()), zap.Error(err))
		_ = rdb.Close()
		return cache.NewMemoryStore(), func() {}
	}
	return cache.NewRedisStore(rdb), func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis connection", zap.Error(err))
		}
	}
}

func initMarket(cfg config.MarketConfig, log *zap.Logger) (exchange.MarketDataSource, exchange.PriceStream) {
	if cfg.Provider == "fixture" {
		log.Info("using fixture market data")
		return fixture.New(cfg.StaticPrices), nil
	}
	client := binance.NewClient(cfg.BaseURL, cfg.QuoteAsset, cfg.Timeout)
	if !cfg.StreamEnable {
		return client, nil
	}
	return client, binance.NewStream(cfg.StreamURL, cfg.QuoteAsset, log)
}
