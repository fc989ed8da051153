package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trade-ledger/internal/models"
)

var (
	ErrTradeNotFound = errors.New("trade not found")
	ErrTradeClosed   = errors.New("trade already closed")
)

// Trade status filters accepted by Search besides the WinLoss values.
const (
	StatusClosed = "closed"
)

// TradeFilter narrows a journal search. Zero values mean "any".
type TradeFilter struct {
	Strategy string
	Token    string
	Status   string
	Since    *time.Time
	Limit    int
}

// TradeRepository handles journal data access. It has no delete path.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new TradeRepository
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create inserts a new trade
func (r *TradeRepository) Create(ctx context.Context, trade *models.TradeRecord) error {
	return r.db.WithContext(ctx).Create(trade).Error
}

// GetByID retrieves a trade by id
func (r *TradeRepository) GetByID(ctx context.Context, id string) (*models.TradeRecord, error) {
	var trade models.TradeRecord
	result := r.db.WithContext(ctx).Where("trade_id = ?", id).First(&trade)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, result.Error
	}
	return &trade, nil
}

// Search returns trades matching the filter, most recent first
func (r *TradeRepository) Search(ctx context.Context, f TradeFilter) ([]models.TradeRecord, error) {
	q := r.db.WithContext(ctx).Model(&models.TradeRecord{})
	if f.Strategy != "" {
		q = q.Where("strategy = ?", f.Strategy)
	}
	if f.Token != "" {
		q = q.Where("token_symbol = ?", f.Token)
	}
	switch f.Status {
	case "":
	case StatusClosed:
		q = q.Where("win_loss <> ?", models.WinLossOpen)
	default:
		q = q.Where("win_loss = ?", f.Status)
	}
	if f.Since != nil {
		q = q.Where("timestamp >= ?", *f.Since)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	trades := make([]models.TradeRecord, 0)
	result := q.Order("timestamp DESC").Order("trade_id DESC").Find(&trades)
	return trades, result.Error
}

// ListClosed returns closed trades in close order (oldest first). since and
// strategy are optional.
func (r *TradeRepository) ListClosed(ctx context.Context, since *time.Time, strategy string) ([]models.TradeRecord, error) {
	q := r.db.WithContext(ctx).Where("win_loss <> ?", models.WinLossOpen)
	if since != nil {
		q = q.Where("closed_at >= ?", *since)
	}
	if strategy != "" {
		q = q.Where("strategy = ?", strategy)
	}

	var trades []models.TradeRecord
	result := q.Order("closed_at ASC").Order("trade_id ASC").Find(&trades)
	return trades, result.Error
}

// ListOpen returns every open trade
func (r *TradeRepository) ListOpen(ctx context.Context) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord
	result := r.db.WithContext(ctx).
		Where("win_loss = ?", models.WinLossOpen).
		Order("timestamp ASC").
		Find(&trades)
	return trades, result.Error
}

// CountOpen counts open trades
func (r *TradeRepository) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.TradeRecord{}).
		Where("win_loss = ?", models.WinLossOpen).
		Count(&n).Error
	return n, err
}

// SumRealizedPnL sums realized PnL of trades closed at or after since
// (all closed trades when since is nil).
func (r *TradeRepository) SumRealizedPnL(ctx context.Context, since *time.Time) (decimal.Decimal, error) {
	var total struct {
		Sum decimal.Decimal
	}
	q := r.db.WithContext(ctx).Model(&models.TradeRecord{}).
		Select("COALESCE(SUM(realized_pnl), 0) as sum").
		Where("win_loss <> ?", models.WinLossOpen)
	if since != nil {
		q = q.Where("closed_at >= ?", *since)
	}
	err := q.Scan(&total).Error
	return total.Sum, err
}

// CloseWithLock locks the open trade row, lets closeFn fill in the exit
// fields and writes them with a conditional update, so only the first
// writer can move a trade out of open.
func (r *TradeRepository) CloseWithLock(ctx context.Context, id string, closeFn func(*models.TradeRecord) error) (*models.TradeRecord, error) {
	var trade models.TradeRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("trade_id = ?", id).
			First(&trade).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTradeNotFound
			}
			return err
		}
		if trade.IsClosed() {
			return ErrTradeClosed
		}

		if err := closeFn(&trade); err != nil {
			return err
		}

		result := tx.Model(&models.TradeRecord{}).
			Where("trade_id = ? AND win_loss = ?", id, models.WinLossOpen).
			Updates(map[string]interface{}{
				"price_exit":             trade.PriceExit,
				"realized_pnl":           trade.RealizedPnL,
				"unrealized_pnl":         trade.UnrealizedPnL,
				"win_loss":               trade.WinLoss,
				"holding_period_seconds": trade.HoldingPeriodSeconds,
				"max_drawdown":           trade.MaxDrawdown,
				"max_profit":             trade.MaxProfit,
				"lessons":                trade.Lessons,
				"improvements":           trade.Improvements,
				"emotional_state":        trade.EmotionalState,
				"market_timing_score":    trade.MarketTimingScore,
				"closed_at":              trade.ClosedAt,
				"updated_at":             trade.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrTradeClosed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &trade, nil
}
