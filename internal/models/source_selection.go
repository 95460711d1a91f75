package models

import "gorm.io/gorm"

// Source kinds stored in SourceSelection.Kind.
const (
	SourceKindLocal  = "local"
	SourceKindRemote = "remote"
)

// SourceSelection records a source chosen for new sessions. The most recent
// row is restored at startup.
type SourceSelection struct {
	BaseModel

	Kind string `gorm:"size:16;not null" json:"kind"`
	// Identifier is a filename inside the media directory or a URL.
	Identifier string `gorm:"size:2048;not null" json:"identifier"`
}

// TableName returns the table name for source selections.
func (SourceSelection) TableName() string {
	return "source_selections"
}

// IsRemote reports whether the selection is a network stream.
func (s *SourceSelection) IsRemote() bool {
	return s.Kind == SourceKindRemote
}

// Validate checks the selection before it is stored.
func (s *SourceSelection) Validate() error {
	if s.Identifier == "" {
		return ErrSourceRequired
	}
	if s.Kind != SourceKindLocal && s.Kind != SourceKindRemote {
		return ErrValidation{Field: "kind", Message: "must be 'local' or 'remote'"}
	}
	return nil
}

// BeforeCreate validates the selection and assigns an ID when missing.
func (s *SourceSelection) BeforeCreate(tx *gorm.DB) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return s.BaseModel.BeforeCreate(tx)
}
