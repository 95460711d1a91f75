// Package repository defines data access interfaces for internetradio
// entities. All database access goes through these interfaces.
package repository

import (
	"context"
	"time"

	"github.com/ABHIRAMSHIBU/internetradio/internal/models"
)

// SessionRepository defines operations for finished-session history.
type SessionRepository interface {
	// Create stores a finished session.
	Create(ctx context.Context, record *models.SessionRecord) error
	// GetByID retrieves a record by session ID. Returns nil, nil when absent.
	GetByID(ctx context.Context, id models.ULID) (*models.SessionRecord, error)
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]*models.SessionRecord, error)
	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)
	// CountByReason returns record counts grouped by end reason.
	CountByReason(ctx context.Context) (map[string]int64, error)
	// DeleteEndedBefore removes records that ended before t.
	DeleteEndedBefore(ctx context.Context, t time.Time) (int64, error)
}

// SelectionRepository defines operations for persisted source selections.
type SelectionRepository interface {
	// Save appends a selection; the newest one is current.
	Save(ctx context.Context, selection *models.SourceSelection) error
	// Current returns the newest selection, or nil, nil when none exists.
	Current(ctx context.Context) (*models.SourceSelection, error)
	// Prune keeps the newest keep selections and deletes the rest.
	Prune(ctx context.Context, keep int) (int64, error)
}
