package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// ErrSourceRequired indicates a record without a source.
var ErrSourceRequired = errors.New("source is required")

// SessionRecord is the persisted summary of one finished relay session.
// Its ID is the relay session ID.
type SessionRecord struct {
	BaseModel

	ClientID   string    `gorm:"size:255;index" json:"client"`
	Source     string    `gorm:"size:2048;not null" json:"source"`
	SourceKind string    `gorm:"size:16;not null;default:local" json:"source_kind"`
	StartedAt  time.Time `gorm:"not null;index" json:"started_at"`
	EndedAt    time.Time `gorm:"not null" json:"ended_at"`
	BytesSent  int64     `gorm:"not null;default:0" json:"bytes_sent"`
	ChunksSent int64     `gorm:"not null;default:0" json:"chunks_sent"`
	Restarts   int64     `gorm:"not null;default:0" json:"restarts"`
	Reason     string    `gorm:"size:32;not null;index" json:"reason"`
	Error      string    `gorm:"size:1024" json:"error,omitempty"`
}

// TableName returns the table name for session records.
func (SessionRecord) TableName() string {
	return "session_records"
}

// Duration returns how long the session ran.
func (r *SessionRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Validate checks the record before it is stored.
func (r *SessionRecord) Validate() error {
	if r.Source == "" {
		return ErrSourceRequired
	}
	if r.Reason == "" {
		return ErrValidation{Field: "reason", Message: "is required"}
	}
	if r.EndedAt.Before(r.StartedAt) {
		return ErrValidation{Field: "ended_at", Message: "is before started_at"}
	}
	return nil
}

// BeforeCreate validates the record and assigns an ID when missing.
func (r *SessionRecord) BeforeCreate(tx *gorm.DB) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return r.BaseModel.BeforeCreate(tx)
}
