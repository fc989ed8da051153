package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
	"github.com/trade-ledger/pkg/idgen"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000

	// DefaultSignalSource marks trades submitted without a signal source.
	DefaultSignalSource = "api"
)

// RecordTradeInput is the creation schema of a trade. Pointer fields are
// pointers so that omission can be told apart from zero.
type RecordTradeInput struct {
	Action          models.TradeAction     `json:"action" validate:"required,oneof=buy sell hold liquidate"`
	TokenSymbol     string                 `json:"token_symbol" validate:"required,max=32"`
	TokenAddress    *string                `json:"token_address" validate:"omitempty,max=128"`
	Quantity        *models.Money          `json:"quantity" validate:"required"`
	PriceEntry      *models.Money          `json:"price_entry" validate:"required"`
	CostBasis       *models.Money          `json:"cost_basis" validate:"required"`
	Fees            *models.Money          `json:"fees" validate:"required"`
	AIConfidence    *models.Ratio          `json:"ai_confidence" validate:"required"`
	Reasoning       string                 `json:"decision_reasoning"`
	RiskScore       *models.Ratio          `json:"risk_score" validate:"required"`
	Strategy        string                 `json:"strategy" validate:"required,max=64"`
	SignalSource    string                 `json:"signal_source" validate:"max=64"`
	ExecutionMethod models.ExecutionMethod `json:"execution_method" validate:"required,oneof=manual automated hybrid"`
	PositionSize    *models.Ratio          `json:"position_size" validate:"required"`

	StopLoss        *models.Money `json:"stop_loss"`
	TakeProfit      *models.Money `json:"take_profit"`
	RiskRewardRatio *models.Ratio `json:"risk_reward_ratio"`
	IsSimulated     bool          `json:"is_simulated"`
	Timestamp       *time.Time    `json:"timestamp"`

	// Confidence is accepted as a short alias of ai_confidence.
	Confidence *models.Ratio `json:"confidence" validate:"-"`
}

// ExitInput is the exit schema of a trade.
type ExitInput struct {
	PriceExit            *models.Money  `json:"price_exit" validate:"required"`
	RealizedPnL          *models.Money  `json:"realized_pnl" validate:"required"`
	WinLoss              models.WinLoss `json:"win_loss" validate:"required,oneof=win loss breakeven"`
	HoldingPeriodSeconds *int64         `json:"holding_period_seconds" validate:"required,gte=0"`
	MaxDrawdown          *models.Ratio  `json:"max_drawdown"`
	MaxProfit            *models.Ratio  `json:"max_profit"`
	Lessons              string         `json:"lessons"`
	Improvements         string         `json:"improvements"`
	EmotionalState       string         `json:"emotional_state" validate:"max=32"`
	MarketTimingScore    *models.Ratio  `json:"market_timing_score"`
}

// HistoryQuery filters GetTradeHistory. Days and Limit of zero use defaults
// (no window, DefaultHistoryLimit).
type HistoryQuery struct {
	Strategy string
	Token    string
	Status   string
	Days     int
	Limit    int
}

// JournalService owns the trade lifecycle. It is the only writer of
// win_loss and realized_pnl.
type JournalService struct {
	trades     *repository.TradeRepository
	strategies *repository.StrategyRepository
	log        *zap.Logger
	now        func() time.Time

	exitLocks *keyedMutex
	halted    atomic.Bool
}

// NewJournalService creates a new JournalService
func NewJournalService(trades *repository.TradeRepository, strategies *repository.StrategyRepository, log *zap.Logger) *JournalService {
	return &JournalService{
		trades:     trades,
		strategies: strategies,
		log:        log.Named("journal"),
		now:        time.Now,
		exitLocks:  newKeyedMutex(),
	}
}

// WithClock replaces the wall clock.
func (s *JournalService) WithClock(now func() time.Time) *JournalService {
	s.now = now
	return s
}

// Halted reports whether an inconsistent record has stopped journal writes.
func (s *JournalService) Halted() bool {
	return s.halted.Load()
}

func (s *JournalService) checkRecord(t *models.TradeRecord) error {
	if t.Consistent() {
		return nil
	}
	if s.halted.CompareAndSwap(false, true) {
		s.log.Error("inconsistent trade record, halting journal writes",
			zap.String("trade_id", t.TradeID),
			zap.String("win_loss", string(t.WinLoss)),
			zap.Bool("has_exit", t.PriceExit != nil))
	}
	return ErrJournalHalted
}

// RecordTrade validates and stores a new open trade.
func (s *JournalService) RecordTrade(ctx context.Context, in RecordTradeInput) (*models.TradeRecord, error) {
	if s.Halted() {
		return nil, ErrJournalHalted
	}
	if in.AIConfidence == nil {
		in.AIConfidence = in.Confidence
	}
	in.TokenSymbol = strings.ToUpper(strings.TrimSpace(in.TokenSymbol))
	if in.SignalSource == "" {
		in.SignalSource = DefaultSignalSource
	}

	verr := &ValidationError{}
	checkStruct(in, verr)
	checkMoney(verr, "quantity", in.Quantity, true)
	checkMoney(verr, "price_entry", in.PriceEntry, false)
	checkMoney(verr, "cost_basis", in.CostBasis, false)
	checkMoney(verr, "fees", in.Fees, false)
	checkMoney(verr, "stop_loss", in.StopLoss, false)
	checkMoney(verr, "take_profit", in.TakeProfit, false)
	checkUnit(verr, "ai_confidence", in.AIConfidence)
	checkUnit(verr, "risk_score", in.RiskScore)
	checkUnit(verr, "position_size", in.PositionSize)
	checkRatio(verr, "risk_reward_ratio", in.RiskRewardRatio)

	if in.Strategy != "" && !verr.Has("strategy") {
		exists, err := s.strategies.Exists(ctx, in.Strategy)
		if err != nil {
			return nil, err
		}
		if !exists {
			verr.Add("strategy", fmt.Sprintf("unknown strategy %q", in.Strategy))
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ts := now
	if in.Timestamp != nil {
		ts = in.Timestamp.UTC()
	}
	trade := &models.TradeRecord{
		TradeID:           idgen.TradeID(),
		Timestamp:         ts,
		Action:            in.Action,
		TokenSymbol:       in.TokenSymbol,
		TokenAddress:      in.TokenAddress,
		Quantity:          *in.Quantity,
		PriceEntry:        *in.PriceEntry,
		CostBasis:         *in.CostBasis,
		Fees:              *in.Fees,
		WinLoss:           models.WinLossOpen,
		AIConfidence:      *in.AIConfidence,
		DecisionReasoning: in.Reasoning,
		RiskScore:         *in.RiskScore,
		Strategy:          in.Strategy,
		SignalSource:      in.SignalSource,
		ExecutionMethod:   in.ExecutionMethod,
		StopLoss:          in.StopLoss,
		TakeProfit:        in.TakeProfit,
		PositionSize:      *in.PositionSize,
		RiskRewardRatio:   in.RiskRewardRatio,
		IsActive:          true,
		IsSimulated:       in.IsSimulated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.trades.Create(ctx, trade); err != nil {
		return nil, err
	}

	s.log.Info("trade recorded",
		zap.String("trade_id", trade.TradeID),
		zap.String("token", trade.TokenSymbol),
		zap.String("action", string(trade.Action)),
		zap.String("strategy", trade.Strategy))
	return trade, nil
}

// UpdateTradeExit closes an open trade. Concurrent calls for the same id are
// serialised; the first wins and the rest get ErrConflict.
func (s *JournalService) UpdateTradeExit(ctx context.Context, tradeID string, in ExitInput) (*models.TradeRecord, error) {
	if s.Halted() {
		return nil, ErrJournalHalted
	}

	verr := &ValidationError{}
	checkStruct(in, verr)
	checkMoney(verr, "price_exit", in.PriceExit, false)
	checkSignedMoney(verr, "realized_pnl", in.RealizedPnL)
	checkRatio(verr, "max_drawdown", in.MaxDrawdown)
	checkRatio(verr, "max_profit", in.MaxProfit)
	checkUnit(verr, "market_timing_score", in.MarketTimingScore)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	unlock := s.exitLocks.Lock(tradeID)
	defer unlock()

	trade, err := s.trades.CloseWithLock(ctx, tradeID, func(t *models.TradeRecord) error {
		if err := s.checkRecord(t); err != nil {
			return err
		}
		now := s.now().UTC()
		t.PriceExit = in.PriceExit
		t.RealizedPnL = in.RealizedPnL
		t.UnrealizedPnL = models.Money{}
		t.WinLoss = in.WinLoss
		t.HoldingPeriodSeconds = in.HoldingPeriodSeconds
		t.MaxDrawdown = in.MaxDrawdown
		t.MaxProfit = in.MaxProfit
		t.Lessons = in.Lessons
		t.Improvements = in.Improvements
		t.EmotionalState = in.EmotionalState
		t.MarketTimingScore = in.MarketTimingScore
		t.ClosedAt = &now
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrTradeClosed) {
			s.log.Warn("exit rejected, trade already closed", zap.String("trade_id", tradeID))
		}
		return nil, translate(err)
	}

	s.log.Info("trade closed",
		zap.String("trade_id", trade.TradeID),
		zap.String("win_loss", string(trade.WinLoss)),
		zap.String("realized_pnl", trade.RealizedPnL.StringFixed(models.MoneyScale)))
	return trade, nil
}

// GetTrade returns one trade.
func (s *JournalService) GetTrade(ctx context.Context, tradeID string) (*models.TradeRecord, error) {
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.checkRecord(trade); err != nil {
		return nil, err
	}
	return trade, nil
}

// GetTradeHistory returns matching trades, most recent first. No match is an
// empty slice.
func (s *JournalService) GetTradeHistory(ctx context.Context, q HistoryQuery) ([]models.TradeRecord, error) {
	verr := &ValidationError{}
	switch q.Status {
	case "", string(models.WinLossOpen), string(models.WinLossWin), string(models.WinLossLoss),
		string(models.WinLossBreakeven), repository.StatusClosed:
	default:
		verr.Add("status", "must be one of: open, closed, win, loss, breakeven")
	}
	if q.Days < 0 {
		verr.Add("days", "must not be negative")
	}
	if q.Limit < 0 {
		verr.Add("limit", "must not be negative")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	f := repository.TradeFilter{
		Strategy: q.Strategy,
		Token:    strings.ToUpper(q.Token),
		Status:   q.Status,
		Limit:    q.Limit,
	}
	if f.Limit == 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	if q.Days > 0 {
		since := s.now().UTC().AddDate(0, 0, -q.Days)
		f.Since = &since
	}

	trades, err := s.trades.Search(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range trades {
		if err := s.checkRecord(&trades[i]); err != nil {
			return nil, err
		}
	}
	return trades, nil
}

// OpenTrades lists trades that have not been closed.
func (s *JournalService) OpenTrades(ctx context.Context) ([]models.TradeRecord, error) {
	return s.trades.ListOpen(ctx)
}
