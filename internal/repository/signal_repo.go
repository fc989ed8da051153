package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/trade-ledger/internal/models"
)

// SignalRepository stores generated signal candidates
type SignalRepository struct {
	db *gorm.DB
}

// NewSignalRepository creates a new SignalRepository
func NewSignalRepository(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// SaveBatch inserts signals in one statement
func (r *SignalRepository) SaveBatch(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(signals, 100).Error
}

// Recent returns signals for a chain generated at or after since, newest first
func (r *SignalRepository) Recent(ctx context.Context, chain string, since time.Time) ([]models.Signal, error) {
	var signals []models.Signal
	result := r.db.WithContext(ctx).
		Where("chain = ? AND generated_at >= ?", chain, since).
		Order("generated_at DESC").
		Order("id DESC").
		Find(&signals)
	return signals, result.Error
}
