package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ABHIRAMSHIBU/internetradio/internal/models"
)

// selectionRepository implements SelectionRepository using GORM.
type selectionRepository struct {
	db *gorm.DB
}

// NewSelectionRepository creates a new SelectionRepository.
func NewSelectionRepository(db *gorm.DB) SelectionRepository {
	return &selectionRepository{db: db}
}

func (r *selectionRepository) Save(ctx context.Context, selection *models.SourceSelection) error {
	if err := selection.Validate(); err != nil {
		return fmt.Errorf("validating source selection: %w", err)
	}
	return r.db.WithContext(ctx).Create(selection).Error
}

// Current orders by ID as well as creation time; ULIDs sort by creation.
func (r *selectionRepository) Current(ctx context.Context) (*models.SourceSelection, error) {
	var selection models.SourceSelection
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").First(&selection).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &selection, nil
}

func (r *selectionRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	var ids []models.ULID
	if err := r.db.WithContext(ctx).
		Model(&models.SourceSelection{}).
		Order("created_at DESC, id DESC").
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) <= keep {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("id IN ?", ids[keep:]).Delete(&models.SourceSelection{})
	return result.RowsAffected, result.Error
}
