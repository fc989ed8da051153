package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/trade-ledger/internal/models"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotRepository stores portfolio snapshots. It only ever inserts.
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository creates a new SnapshotRepository
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create appends a snapshot
func (r *SnapshotRepository) Create(ctx context.Context, s *models.PortfolioSnapshot) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// Latest returns the most recent snapshot
func (r *SnapshotRepository) Latest(ctx context.Context) (*models.PortfolioSnapshot, error) {
	var s models.PortfolioSnapshot
	result := r.db.WithContext(ctx).Order("taken_at DESC").Order("snapshot_id DESC").First(&s)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, result.Error
	}
	return &s, nil
}

// Recent returns up to limit snapshots, newest first
func (r *SnapshotRepository) Recent(ctx context.Context, limit int) ([]models.PortfolioSnapshot, error) {
	snapshots := make([]models.PortfolioSnapshot, 0)
	result := r.db.WithContext(ctx).
		Order("taken_at DESC").
		Order("snapshot_id DESC").
		Limit(limit).
		Find(&snapshots)
	return snapshots, result.Error
}
