package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
	"github.com/trade-ledger/internal/stats"
)

const (
	DefaultWindowDays = 30
	MaxWindowDays     = 3650
)

var ratioMax = decimal.RequireFromString("99999.9999")

// PerformanceAnalytics is recomputed from the closed trades of a window on
// every call.
type PerformanceAnalytics struct {
	WindowDays   int               `json:"window_days"`
	From         time.Time         `json:"from"`
	To           time.Time         `json:"to"`
	TotalTrades  int               `json:"total_trades"`
	OpenTrades   int64             `json:"open_trades"`
	Wins         int               `json:"wins"`
	Losses       int               `json:"losses"`
	Breakevens   int               `json:"breakevens"`
	WinRate      models.Ratio      `json:"win_rate"`
	AvgReturn    models.Ratio      `json:"avg_return"`
	SharpeRatio  models.Ratio      `json:"sharpe_ratio"`
	MaxDrawdown  models.Money      `json:"max_drawdown"`
	TotalPnL     models.Money      `json:"total_pnl"`
	TotalFees    models.Money      `json:"total_fees"`
	AvgWin       models.Money      `json:"avg_win"`
	AvgLoss      models.Money      `json:"avg_loss"`
	ProfitFactor models.Ratio      `json:"profit_factor"`
	BestTrade    models.Money      `json:"best_trade"`
	WorstTrade   models.Money      `json:"worst_trade"`
	DataSource   models.DataSource `json:"data_source"`
}

// tradeStats is the aggregate of a closed-trade sequence in close order.
type tradeStats struct {
	total, wins, losses, breakevens int
	winRate, avgReturn, sharpe      decimal.Decimal
	maxDrawdown, totalPnL, fees     decimal.Decimal
	avgWin, avgLoss                 decimal.Decimal
	profitFactor                    decimal.Decimal
	best, worst                     decimal.Decimal
}

func computeStats(trades []models.TradeRecord) tradeStats {
	var st tradeStats
	returns := make([]decimal.Decimal, 0, len(trades))
	pnls := make([]decimal.Decimal, 0, len(trades))
	var winPnL, lossPnL []decimal.Decimal
	grossProfit, grossLoss := decimal.Zero, decimal.Zero

	for i := range trades {
		t := &trades[i]
		if !t.WinLoss.IsTerminal() || t.RealizedPnL == nil {
			continue
		}
		st.total++
		switch t.WinLoss {
		case models.WinLossWin:
			st.wins++
		case models.WinLossLoss:
			st.losses++
		case models.WinLossBreakeven:
			st.breakevens++
		}

		pnl := t.RealizedPnL.Decimal
		pnls = append(pnls, pnl)
		st.fees = st.fees.Add(t.Fees.Decimal)
		if r, ok := t.Return(); ok {
			returns = append(returns, r)
		}
		switch {
		case pnl.IsPositive():
			grossProfit = grossProfit.Add(pnl)
			winPnL = append(winPnL, pnl)
		case pnl.IsNegative():
			grossLoss = grossLoss.Add(pnl.Neg())
			lossPnL = append(lossPnL, pnl)
		}
		if st.total == 1 || pnl.GreaterThan(st.best) {
			st.best = pnl
		}
		if st.total == 1 || pnl.LessThan(st.worst) {
			st.worst = pnl
		}
	}
	if st.total == 0 {
		return st
	}

	st.winRate = decimal.NewFromInt(int64(st.wins)).DivRound(decimal.NewFromInt(int64(st.total)), 18)
	st.avgReturn = stats.Mean(returns)
	st.sharpe = decimal.NewFromFloat(stats.Sharpe(returns))
	st.maxDrawdown = stats.MaxDrawdown(pnls)
	st.totalPnL = decimal.Sum(decimal.Zero, pnls...)
	st.avgWin = stats.Mean(winPnL)
	st.avgLoss = stats.Mean(lossPnL)
	st.profitFactor = stats.ProfitFactor(grossProfit, grossLoss)
	return st
}

// clampRatio keeps derived values inside numeric(9,4).
func clampRatio(d decimal.Decimal) models.Ratio {
	if d.GreaterThan(ratioMax) {
		d = ratioMax
	}
	if d.LessThan(ratioMax.Neg()) {
		d = ratioMax.Neg()
	}
	return models.NewRatio(d)
}

// AnalyticsService is the strategy aggregator. It reads the journal and
// writes only the strategy aggregate columns.
type AnalyticsService struct {
	trades     *repository.TradeRepository
	strategies *repository.StrategyRepository
	log        *zap.Logger
	now        func() time.Time
}

// NewAnalyticsService creates a new AnalyticsService
func NewAnalyticsService(trades *repository.TradeRepository, strategies *repository.StrategyRepository, log *zap.Logger) *AnalyticsService {
	return &AnalyticsService{
		trades:     trades,
		strategies: strategies,
		log:        log.Named("analytics"),
		now:        time.Now,
	}
}

// WithClock replaces the wall clock.
func (s *AnalyticsService) WithClock(now func() time.Time) *AnalyticsService {
	s.now = now
	return s
}

// GetPerformanceAnalytics recomputes statistics over trades closed in the
// last windowDays days.
func (s *AnalyticsService) GetPerformanceAnalytics(ctx context.Context, windowDays int) (*PerformanceAnalytics, error) {
	if windowDays <= 0 || windowDays > MaxWindowDays {
		return nil, NewValidationError("days", "must be between 1 and 3650")
	}

	to := s.now().UTC()
	from := to.AddDate(0, 0, -windowDays)
	closed, err := s.trades.ListClosed(ctx, &from, "")
	if err != nil {
		return nil, err
	}
	open, err := s.trades.CountOpen(ctx)
	if err != nil {
		return nil, err
	}

	st := computeStats(closed)
	return &PerformanceAnalytics{
		WindowDays:   windowDays,
		From:         from,
		To:           to,
		TotalTrades:  st.total,
		OpenTrades:   open,
		Wins:         st.wins,
		Losses:       st.losses,
		Breakevens:   st.breakevens,
		WinRate:      clampRatio(st.winRate),
		AvgReturn:    clampRatio(st.avgReturn),
		SharpeRatio:  clampRatio(st.sharpe),
		MaxDrawdown:  models.NewMoney(st.maxDrawdown),
		TotalPnL:     models.NewMoney(st.totalPnL),
		TotalFees:    models.NewMoney(st.fees),
		AvgWin:       models.NewMoney(st.avgWin),
		AvgLoss:      models.NewMoney(st.avgLoss),
		ProfitFactor: clampRatio(st.profitFactor),
		BestTrade:    models.NewMoney(st.best),
		WorstTrade:   models.NewMoney(st.worst),
		DataSource:   models.SourcePersisted,
	}, nil
}

// GetStrategyPerformance recomputes every strategy's aggregates from all of
// its closed trades, stores them and returns the strategies by name.
func (s *AnalyticsService) GetStrategyPerformance(ctx context.Context) ([]models.TradingStrategy, error) {
	strategies, err := s.strategies.List(ctx)
	if err != nil {
		return nil, err
	}
	closed, err := s.trades.ListClosed(ctx, nil, "")
	if err != nil {
		return nil, err
	}

	byStrategy := make(map[string][]models.TradeRecord)
	for _, t := range closed {
		byStrategy[t.Strategy] = append(byStrategy[t.Strategy], t)
	}

	at := s.now().UTC()
	for i := range strategies {
		st := computeStats(byStrategy[strategies[i].Name])
		agg := repository.StrategyAggregates{
			TotalTrades: int64(st.total),
			WinRate:     clampRatio(st.winRate),
			AvgReturn:   clampRatio(st.avgReturn),
			SharpeRatio: clampRatio(st.sharpe),
			MaxDrawdown: models.NewMoney(st.maxDrawdown),
			At:          at,
		}
		if err := s.strategies.UpdateAggregates(ctx, strategies[i].Name, agg); err != nil {
			return nil, err
		}
		strategies[i].TotalTrades = agg.TotalTrades
		strategies[i].WinRate = agg.WinRate
		strategies[i].AvgReturn = agg.AvgReturn
		strategies[i].SharpeRatio = agg.SharpeRatio
		strategies[i].MaxDrawdown = agg.MaxDrawdown
		strategies[i].AggregatedAt = &at
	}

	sort.SliceStable(strategies, func(i, j int) bool { return strategies[i].Name < strategies[j].Name })
	return strategies, nil
}

// StrategyInput registers a new strategy
type StrategyInput struct {
	Name        string                  `json:"name" validate:"required,max=64"`
	Category    models.StrategyCategory `json:"category" validate:"required,oneof=momentum mean_reversion arbitrage sentiment technical fundamental"`
	RiskLevel   models.RiskLevel        `json:"risk_level" validate:"required,oneof=low medium high extreme"`
	Timeframe   models.Timeframe        `json:"timeframe" validate:"required,oneof=1m 5m 15m 1h 4h 1d"`
	Description string                  `json:"description"`
	Parameters  map[string]interface{}  `json:"parameters"`
}

// CreateStrategy registers a strategy with zeroed aggregates.
func (s *AnalyticsService) CreateStrategy(ctx context.Context, in StrategyInput) (*models.TradingStrategy, error) {
	verr := &ValidationError{}
	checkStruct(in, verr)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	params := []byte("{}")
	if in.Parameters != nil {
		var err error
		if params, err = json.Marshal(in.Parameters); err != nil {
			return nil, NewValidationError("parameters", "must be a JSON object")
		}
	}
	strategy := &models.TradingStrategy{
		Name:        in.Name,
		Category:    in.Category,
		RiskLevel:   in.RiskLevel,
		Timeframe:   in.Timeframe,
		Description: in.Description,
		Parameters:  params,
		IsActive:    true,
	}
	if err := s.strategies.Create(ctx, strategy); err != nil {
		return nil, translate(err)
	}
	s.log.Info("strategy registered", zap.String("name", strategy.Name))
	return strategy, nil
}
