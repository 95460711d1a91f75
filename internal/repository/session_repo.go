package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ABHIRAMSHIBU/internetradio/internal/models"
)

// DefaultHistoryLimit bounds Recent when the caller passes limit <= 0.
const DefaultHistoryLimit = 100

// sessionRepository implements SessionRepository using GORM.
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, record *models.SessionRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("validating session record: %w", err)
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *sessionRepository) GetByID(ctx context.Context, id models.ULID) (*models.SessionRecord, error) {
	var record models.SessionRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *sessionRepository) Recent(ctx context.Context, limit int) ([]*models.SessionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var records []*models.SessionRecord
	if err := r.db.WithContext(ctx).
		Order("ended_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *sessionRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.SessionRecord{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *sessionRepository) CountByReason(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Reason string
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Select("reason, COUNT(*) AS count").
		Group("reason").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Reason] = row.Count
	}
	return counts, nil
}

func (r *sessionRepository) DeleteEndedBefore(ctx context.Context, t time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("ended_at < ?", t).Delete(&models.SessionRecord{})
	return result.RowsAffected, result.Error
}
