package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/trade-ledger/internal/backtest"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
)

// BacktestRequest replays strategies over one inline series. Strategies
// given by name only are filled from the stored strategy of that name; an
// empty list means every active stored strategy.
type BacktestRequest struct {
	Series     backtest.Series           `json:"series"`
	Strategies []backtest.StrategyConfig `json:"strategies"`
	Metric     string                    `json:"metric"`
}

// BacktestReport is a ranking plus advisory sizing per strategy.
type BacktestReport struct {
	Metric          backtest.Metric           `json:"metric"`
	Ranking         []backtest.Result         `json:"ranking"`
	Recommendations []backtest.Recommendation `json:"recommendations"`
	Skipped         map[string]string         `json:"skipped,omitempty"`
}

// BacktestService resolves strategies and runs backtests. It only reads
// strategy definitions and never touches the journal.
type BacktestService struct {
	strategies *repository.StrategyRepository
	log        *zap.Logger
}

// NewBacktestService creates a new BacktestService
func NewBacktestService(strategies *repository.StrategyRepository, log *zap.Logger) *BacktestService {
	return &BacktestService{strategies: strategies, log: log.Named("backtest")}
}

// Run executes every strategy concurrently and ranks the results.
func (s *BacktestService) Run(ctx context.Context, req BacktestRequest) (*BacktestReport, error) {
	verr := &ValidationError{}
	metric, err := backtest.ParseMetric(req.Metric)
	if err != nil {
		verr.Add("metric", err.Error())
	}
	if err := req.Series.Validate(); err != nil {
		verr.Add("series", err.Error())
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	report := &BacktestReport{Metric: metric, Skipped: map[string]string{}}
	configs, err := s.resolve(ctx, req.Strategies, report.Skipped)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, NewValidationError("strategies", "no strategy can be backtested")
	}

	results := make([]backtest.Result, len(configs))
	errs := make([]error, len(configs))
	var wg sync.WaitGroup
	for i := range configs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = backtest.RunBacktest(configs[i], req.Series)
		}(i)
	}
	wg.Wait()

	verr = &ValidationError{}
	for i, err := range errs {
		if err != nil {
			verr.Add("strategies."+configs[i].Name, err.Error())
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	report.Ranking = backtest.RankStrategies(results, metric)
	for _, r := range report.Ranking {
		report.Recommendations = append(report.Recommendations, backtest.Recommend(r))
	}
	if len(report.Skipped) == 0 {
		report.Skipped = nil
	}

	s.log.Info("backtest finished",
		zap.String("symbol", req.Series.Symbol),
		zap.Int("bars", len(req.Series.Bars)),
		zap.Int("strategies", len(results)),
		zap.String("metric", string(metric)))
	return report, nil
}

func (s *BacktestService) resolve(ctx context.Context, requested []backtest.StrategyConfig, skipped map[string]string) ([]backtest.StrategyConfig, error) {
	if len(requested) == 0 {
		stored, err := s.strategies.List(ctx)
		if err != nil {
			return nil, err
		}
		var out []backtest.StrategyConfig
		for _, st := range stored {
			if !st.IsActive {
				continue
			}
			cfg, err := backtest.ConfigFromStrategy(st)
			if err != nil {
				skipped[st.Name] = err.Error()
				continue
			}
			out = append(out, cfg)
		}
		return s.dropUnsupported(out, skipped), nil
	}

	out := make([]backtest.StrategyConfig, 0, len(requested))
	for _, cfg := range requested {
		if cfg.Category != "" || cfg.Rule != "" {
			out = append(out, cfg)
			continue
		}
		st, err := s.strategies.GetByName(ctx, cfg.Name)
		if errors.Is(err, repository.ErrStrategyNotFound) {
			// the name may itself be a category, e.g. "momentum"
			out = append(out, cfg)
			continue
		}
		if err != nil {
			return nil, err
		}
		base, err := backtest.ConfigFromStrategy(*st)
		if err != nil {
			return nil, NewValidationError("strategies."+cfg.Name, err.Error())
		}
		out = append(out, overlay(base, cfg))
	}
	return out, nil
}

// dropUnsupported removes stored strategies whose category has no price rule.
func (s *BacktestService) dropUnsupported(cfgs []backtest.StrategyConfig, skipped map[string]string) []backtest.StrategyConfig {
	out := cfgs[:0]
	for _, cfg := range cfgs {
		switch cfg.Category {
		case models.CategoryArbitrage, models.CategorySentiment, models.CategoryFundamental:
			if cfg.Rule == "" {
				skipped[cfg.Name] = backtest.ErrUnsupportedCategory.Error()
				continue
			}
		}
		out = append(out, cfg)
	}
	return out
}

// overlay copies the non-zero fields of o onto base.
func overlay(base, o backtest.StrategyConfig) backtest.StrategyConfig {
	if o.Lookback != 0 {
		base.Lookback = o.Lookback
	}
	if o.EntryThreshold != 0 {
		base.EntryThreshold = o.EntryThreshold
	}
	if o.Fast != 0 {
		base.Fast = o.Fast
	}
	if o.Slow != 0 {
		base.Slow = o.Slow
	}
	if o.VolumeFactor != 0 {
		base.VolumeFactor = o.VolumeFactor
	}
	if o.StopLoss != 0 {
		base.StopLoss = o.StopLoss
	}
	if o.TakeProfit != 0 {
		base.TakeProfit = o.TakeProfit
	}
	if o.PositionSize != 0 {
		base.PositionSize = o.PositionSize
	}
	if o.FeeBps != 0 {
		base.FeeBps = o.FeeBps
	}
	if o.InitialCapital != 0 {
		base.InitialCapital = o.InitialCapital
	}
	return base
}
