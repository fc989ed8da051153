package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trade-ledger/internal/models"
)

var (
	ErrInsightNotFound  = errors.New("insight not found")
	ErrInsightValidated = errors.New("insight already validated")
)

// InsightRepository handles insight data access
type InsightRepository struct {
	db *gorm.DB
}

// NewInsightRepository creates a new InsightRepository
func NewInsightRepository(db *gorm.DB) *InsightRepository {
	return &InsightRepository{db: db}
}

// Create inserts an insight
func (r *InsightRepository) Create(ctx context.Context, insight *models.TradingInsight) error {
	return r.db.WithContext(ctx).Create(insight).Error
}

// GetByID retrieves an insight
func (r *InsightRepository) GetByID(ctx context.Context, id string) (*models.TradingInsight, error) {
	var insight models.TradingInsight
	result := r.db.WithContext(ctx).Where("insight_id = ?", id).First(&insight)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrInsightNotFound
		}
		return nil, result.Error
	}
	return &insight, nil
}

// Recent returns up to limit insights, newest first
func (r *InsightRepository) Recent(ctx context.Context, limit int) ([]models.TradingInsight, error) {
	insights := make([]models.TradingInsight, 0)
	result := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("insight_id DESC").
		Limit(limit).
		Find(&insights)
	return insights, result.Error
}

// ValidateWithLock grades an unvalidated insight exactly once.
func (r *InsightRepository) ValidateWithLock(ctx context.Context, id string, gradeFn func(*models.TradingInsight) error) (*models.TradingInsight, error) {
	var insight models.TradingInsight
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("insight_id = ?", id).
			First(&insight).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInsightNotFound
			}
			return err
		}
		if insight.Validated {
			return ErrInsightValidated
		}

		if err := gradeFn(&insight); err != nil {
			return err
		}

		result := tx.Model(&models.TradingInsight{}).
			Where("insight_id = ? AND validated = ?", id, false).
			Updates(map[string]interface{}{
				"validated":        true,
				"actual_outcome":   insight.ActualOutcome,
				"actual_direction": insight.ActualDirection,
				"accuracy_score":   insight.AccuracyScore,
				"validated_at":     insight.ValidatedAt,
				"updated_at":       insight.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrInsightValidated
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &insight, nil
}
