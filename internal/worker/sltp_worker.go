package worker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/service"
)

// Exit reasons recorded in the lessons of a watcher-closed trade.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
)

// SLTPWorker closes open trades whose stop-loss or take-profit has been
// crossed. Only live prices can trigger an exit.
type SLTPWorker struct {
	journal *service.JournalService
	prices  *service.PriceService
	engine  *service.TradingEngine
	log     *zap.Logger
	now     func() time.Time
}

// NewSLTPWorker creates a new stop-loss/take-profit watcher
func NewSLTPWorker(journal *service.JournalService, prices *service.PriceService, engine *service.TradingEngine, log *zap.Logger) *SLTPWorker {
	return &SLTPWorker{
		journal: journal,
		prices:  prices,
		engine:  engine,
		log:     log.Named("sltp"),
		now:     time.Now,
	}
}

// WithClock replaces the wall clock.
func (w *SLTPWorker) WithClock(now func() time.Time) *SLTPWorker {
	w.now = now
	return w
}

// Check runs one pass over the open trades and returns how many it closed.
// It does nothing while trading is inactive.
func (w *SLTPWorker) Check(ctx context.Context) (int, error) {
	if !w.engine.Active() {
		return 0, nil
	}
	trades, err := w.journal.OpenTrades(ctx)
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range trades {
		t := &trades[i]
		if t.StopLoss == nil && t.TakeProfit == nil {
			continue
		}
		p, err := w.prices.GetPrice(ctx, t.TokenSymbol)
		if err != nil {
			w.log.Warn("no price for open trade", zap.String("trade_id", t.TradeID), zap.Error(err))
			continue
		}
		if p.Fallback() {
			w.log.Debug("skipping fallback price",
				zap.String("trade_id", t.TradeID),
				zap.String("token", t.TokenSymbol),
				zap.String("data_source", string(p.Source)))
			continue
		}

		reason := shouldTrigger(t, p.Price)
		if reason == "" {
			continue
		}
		if err := w.close(ctx, t, p.Price, reason); err != nil {
			if errors.Is(err, service.ErrConflict) {
				w.log.Info("trade closed elsewhere first", zap.String("trade_id", t.TradeID))
				continue
			}
			w.log.Error("failed to close trade", zap.String("trade_id", t.TradeID), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}

func (w *SLTPWorker) close(ctx context.Context, t *models.TradeRecord, price decimal.Decimal, reason string) error {
	pnl := models.NewMoney(t.UnrealizedAt(price))
	outcome := models.WinLossBreakeven
	switch pnl.Sign() {
	case 1:
		outcome = models.WinLossWin
	case -1:
		outcome = models.WinLossLoss
	}
	held := int64(w.now().Sub(t.Timestamp).Seconds())
	if held < 0 {
		held = 0
	}

	exit := models.NewMoney(price)
	_, err := w.journal.UpdateTradeExit(ctx, t.TradeID, service.ExitInput{
		PriceExit:            &exit,
		RealizedPnL:          &pnl,
		WinLoss:              outcome,
		HoldingPeriodSeconds: &held,
		Lessons:              "closed automatically: " + reason,
	})
	if err != nil {
		return err
	}
	w.log.Info("exit triggered",
		zap.String("trade_id", t.TradeID),
		zap.String("reason", reason),
		zap.String("price", exit.StringFixed(models.MoneyScale)),
		zap.String("realized_pnl", pnl.StringFixed(models.MoneyScale)))
	return nil
}

// shouldTrigger reports which level, if any, price has crossed. The stop is
// checked first.
//
// | Action | Stop loss          | Take profit        |
// |--------|--------------------|--------------------|
// | buy    | price <= stop_loss | price >= take      |
// | sell   | price >= stop_loss | price <= take      |
func shouldTrigger(t *models.TradeRecord, price decimal.Decimal) string {
	switch t.Action {
	case models.ActionBuy:
		if t.StopLoss != nil && price.LessThanOrEqual(t.StopLoss.Decimal) {
			return ReasonStopLoss
		}
		if t.TakeProfit != nil && price.GreaterThanOrEqual(t.TakeProfit.Decimal) {
			return ReasonTakeProfit
		}
	case models.ActionSell:
		if t.StopLoss != nil && price.GreaterThanOrEqual(t.StopLoss.Decimal) {
			return ReasonStopLoss
		}
		if t.TakeProfit != nil && price.LessThanOrEqual(t.TakeProfit.Decimal) {
			return ReasonTakeProfit
		}
	}
	return ""
}
