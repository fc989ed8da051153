package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/trade-ledger/internal/models"
)

var (
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrStrategyExists   = errors.New("strategy already exists")
)

// StrategyAggregates are the derived columns of a strategy
type StrategyAggregates struct {
	TotalTrades int64
	WinRate     models.Ratio
	AvgReturn   models.Ratio
	SharpeRatio models.Ratio
	MaxDrawdown models.Money
	At          time.Time
}

// StrategyRepository handles strategy data access
type StrategyRepository struct {
	db *gorm.DB
}

// NewStrategyRepository creates a new StrategyRepository
func NewStrategyRepository(db *gorm.DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

// Create registers a new strategy
func (r *StrategyRepository) Create(ctx context.Context, s *models.TradingStrategy) error {
	exists, err := r.Exists(ctx, s.Name)
	if err != nil {
		return err
	}
	if exists {
		return ErrStrategyExists
	}
	return r.db.WithContext(ctx).Create(s).Error
}

// GetByName retrieves a strategy
func (r *StrategyRepository) GetByName(ctx context.Context, name string) (*models.TradingStrategy, error) {
	var s models.TradingStrategy
	result := r.db.WithContext(ctx).Where("name = ?", name).First(&s)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrStrategyNotFound
		}
		return nil, result.Error
	}
	return &s, nil
}

// Exists reports whether a strategy with that name is registered
func (r *StrategyRepository) Exists(ctx context.Context, name string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.TradingStrategy{}).Where("name = ?", name).Count(&n).Error
	return n > 0, err
}

// List returns all strategies ordered by name
func (r *StrategyRepository) List(ctx context.Context) ([]models.TradingStrategy, error) {
	strategies := make([]models.TradingStrategy, 0)
	result := r.db.WithContext(ctx).Order("name ASC").Find(&strategies)
	return strategies, result.Error
}

// UpdateAggregates overwrites only the derived columns
func (r *StrategyRepository) UpdateAggregates(ctx context.Context, name string, agg StrategyAggregates) error {
	at := agg.At
	result := r.db.WithContext(ctx).Model(&models.TradingStrategy{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{
			"total_trades":  agg.TotalTrades,
			"win_rate":      agg.WinRate,
			"avg_return":    agg.AvgReturn,
			"sharpe_ratio":  agg.SharpeRatio,
			"max_drawdown":  agg.MaxDrawdown,
			"aggregated_at": &at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStrategyNotFound
	}
	return nil
}
