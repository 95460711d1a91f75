// Package handlers provides HTTP API handlers for internetradio.
package handlers

import (
	"context"
	"time"

	"github.com/ABHIRAMSHIBU/internetradio/internal/audio"
	"github.com/ABHIRAMSHIBU/internetradio/internal/catalog"
	"github.com/ABHIRAMSHIBU/internetradio/internal/models"
	"github.com/ABHIRAMSHIBU/internetradio/internal/relay"
)

// ServerName is reported by the status endpoints.
const ServerName = "internetradio"

// SessionManager is the part of relay.Manager the handlers use.
type SessionManager interface {
	OpenSession(ctx context.Context, clientID string, src relay.SourceDescriptor) (*relay.Session, error)
	CloseSession(id string) error
	Session(id string) (*relay.Session, bool)
	Snapshot(ctx context.Context) relay.Snapshot
	Count() int
	Format() relay.TargetFormat
	EngineName() string
}

// SourceCatalog is the part of catalog.Catalog the handlers use.
type SourceCatalog interface {
	Select(ctx context.Context, id string) (*catalog.Selection, error)
	SelectURL(ctx context.Context, rawURL string) (*catalog.Selection, error)
	Current() *catalog.Selection
	CurrentExists() bool
	Source() relay.SourceDescriptor
	List() []catalog.Entry
	ScannedAt() time.Time
}

// HistoryStore lists finished sessions.
type HistoryStore interface {
	Recent(ctx context.Context, limit int) ([]*models.SessionRecord, error)
	Count(ctx context.Context) (int64, error)
	CountByReason(ctx context.Context) (map[string]int64, error)
	GetByID(ctx context.Context, id models.ULID) (*models.SessionRecord, error)
}

// FileInfoResponse describes the selected audio file.
type FileInfoResponse struct {
	Format      string  `json:"format"`
	Channels    int     `json:"channels"`
	SampleRate  int     `json:"sample_rate"`
	SampleWidth int     `json:"sample_width"`
	Frames      int64   `json:"frames"`
	Duration    float64 `json:"duration" doc:"Duration in seconds"`
}

func fileInfoFrom(info *audio.FileInfo) *FileInfoResponse {
	if info == nil {
		return nil
	}
	return &FileInfoResponse{
		Format:      info.Format,
		Channels:    info.Channels,
		SampleRate:  info.SampleRate,
		SampleWidth: info.SampleWidth,
		Frames:      info.Frames,
		Duration:    info.Duration.Seconds(),
	}
}

// FormatResponse describes the relayed PCM.
type FormatResponse struct {
	ContentType string `json:"content_type"`
	Encoding    string `json:"encoding"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	ChunkBytes  int    `json:"chunk_bytes,omitempty"`
}

func formatFrom(f relay.TargetFormat, chunk int) FormatResponse {
	return FormatResponse{
		ContentType: relay.ContentType,
		Encoding:    f.Encoding,
		SampleRate:  f.SampleRate,
		Channels:    f.Channels,
		ChunkBytes:  chunk,
	}
}

// SelectionResponse is the current source selection.
type SelectionResponse struct {
	Identifier string            `json:"identifier"`
	Kind       string            `json:"kind" enum:"local,remote"`
	SelectedAt time.Time         `json:"selected_at"`
	FileInfo   *FileInfoResponse `json:"file_info"`
}

func selectionFrom(sel *catalog.Selection) *SelectionResponse {
	if sel == nil {
		return nil
	}
	return &SelectionResponse{
		Identifier: sel.Identifier,
		Kind:       sel.Kind,
		SelectedAt: sel.SelectedAt,
		FileInfo:   fileInfoFrom(sel.Info),
	}
}
