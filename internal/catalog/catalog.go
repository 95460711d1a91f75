// Package catalog tracks the playable files in the media directory and the
// source selected for newly opened sessions.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ABHIRAMSHIBU/internetradio/internal/audio"
	"github.com/ABHIRAMSHIBU/internetradio/internal/models"
	"github.com/ABHIRAMSHIBU/internetradio/internal/relay"
	"github.com/ABHIRAMSHIBU/internetradio/internal/storage"
)

var (
	// ErrInvalidIdentifier is returned for identifiers that could name a
	// file outside the media directory.
	ErrInvalidIdentifier = errors.New("invalid filename")
	// ErrNotFound is returned when the identifier names no regular file.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidURL is returned for remote sources that are not http(s) URLs.
	ErrInvalidURL = errors.New("invalid source url")
)

// DefaultExtensions are listed when Config.Extensions is empty.
var DefaultExtensions = []string{".wav", ".mp3", ".ogg", ".flac", ".aiff", ".aif", ".m4a", ".aac", ".opus"}

// SelectionStore persists selections. repository.SelectionRepository
// satisfies it.
type SelectionStore interface {
	Save(ctx context.Context, selection *models.SourceSelection) error
	Current(ctx context.Context) (*models.SourceSelection, error)
}

// Config configures a Catalog.
type Config struct {
	MediaDir   string
	Extensions []string
	Policy     relay.ReconnectPolicy
	Store      SelectionStore // optional
	Logger     *slog.Logger
}

// Selection is the source chosen for new sessions.
type Selection struct {
	Identifier string                 `json:"identifier"`
	Kind       string                 `json:"kind"`
	Info       *audio.FileInfo        `json:"file_info,omitempty"`
	SelectedAt time.Time              `json:"selected_at"`
	Source     relay.SourceDescriptor `json:"-"`
}

// Entry is a playable file in the media directory.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	// Native reports whether the pure-Go engine can decode the file.
	Native bool `json:"native"`
}

// Catalog is safe for concurrent use.
type Catalog struct {
	sandbox    *storage.Sandbox
	extensions map[string]bool
	policy     relay.ReconnectPolicy
	store      SelectionStore
	logger     *slog.Logger

	mu        sync.RWMutex
	current   *Selection
	entries   []Entry
	scannedAt time.Time
}

// New opens the media directory and performs an initial scan.
func New(cfg Config) (*Catalog, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sb, err := storage.NewSandbox(cfg.MediaDir)
	if err != nil {
		return nil, err
	}

	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	extensions := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[ext] = true
	}

	c := &Catalog{
		sandbox:    sb,
		extensions: extensions,
		policy:     cfg.Policy,
		store:      cfg.Store,
		logger:     logger.With(slog.String("component", "catalog")),
	}
	if _, err := c.Rescan(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// MediaDir returns the absolute media directory.
func (c *Catalog) MediaDir() string {
	return c.sandbox.BaseDir()
}

// ValidateIdentifier rejects identifiers that are empty, absolute, or contain
// a path separator or "..". It never touches the filesystem.
func ValidateIdentifier(id string) error {
	switch {
	case id == "", id == ".":
		return ErrInvalidIdentifier
	case strings.Contains(id, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	case strings.ContainsAny(id, `/\`), filepath.IsAbs(id):
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	case strings.ContainsRune(id, 0):
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return nil
}

// Select makes a file in the media directory the current source.
func (c *Catalog) Select(ctx context.Context, id string) (*Selection, error) {
	sel, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, sel)
	return sel.clone(), nil
}

func (c *Catalog) lookup(id string) (*Selection, error) {
	if err := ValidateIdentifier(id); err != nil {
		return nil, err
	}
	path, _, err := c.sandbox.RegularFile(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrEscapesSandbox) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("looking up %s: %w", id, err)
	}

	return &Selection{
		Identifier: id,
		Kind:       models.SourceKindLocal,
		Info:       c.inspect(path),
		SelectedAt: time.Now(),
		Source:     relay.LocalSource(path, c.policy),
	}, nil
}

// SelectURL makes a remote http(s) stream the current source. Reachability
// is checked when sessions open, not here.
func (c *Catalog) SelectURL(ctx context.Context, rawURL string) (*Selection, error) {
	sel, err := c.remote(rawURL)
	if err != nil {
		return nil, err
	}
	c.set(ctx, sel)
	return sel.clone(), nil
}

func (c *Catalog) remote(rawURL string) (*Selection, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	src := relay.RemoteSource(rawURL, c.policy)
	return &Selection{
		Identifier: src.Name,
		Kind:       models.SourceKindRemote,
		SelectedAt: time.Now(),
		Source:     src,
	}, nil
}

// Initial selects spec, a filename or http(s) URL. An empty spec is a no-op.
func (c *Catalog) Initial(ctx context.Context, spec string) (*Selection, error) {
	switch {
	case spec == "":
		return nil, nil
	case relay.IsRemoteURL(spec):
		return c.SelectURL(ctx, spec)
	default:
		return c.Select(ctx, spec)
	}
}

// Restore reloads the last persisted selection. A stored file that no longer
// exists is skipped with a warning.
func (c *Catalog) Restore(ctx context.Context) (*Selection, error) {
	if c.store == nil {
		return nil, nil
	}
	stored, err := c.store.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stored selection: %w", err)
	}
	if stored == nil {
		return nil, nil
	}

	var sel *Selection
	if stored.IsRemote() {
		sel, err = c.remote(stored.Identifier)
	} else {
		sel, err = c.lookup(stored.Identifier)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "stored source no longer usable",
			slog.String("identifier", stored.Identifier),
			slog.String("error", err.Error()))
		return nil, nil
	}
	sel.SelectedAt = stored.CreatedAt

	c.mu.Lock()
	c.current = sel
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "restored source selection",
		slog.String("source", sel.Identifier),
		slog.String("kind", sel.Kind))
	return sel.clone(), nil
}

func (c *Catalog) set(ctx context.Context, sel *Selection) {
	c.mu.Lock()
	c.current = sel
	c.mu.Unlock()

	attrs := []any{slog.String("source", sel.Identifier), slog.String("kind", sel.Kind)}
	if sel.Info != nil {
		attrs = append(attrs,
			slog.Int("channels", sel.Info.Channels),
			slog.Int("sample_rate", sel.Info.SampleRate),
			slog.Duration("duration", sel.Info.Duration))
	}
	c.logger.InfoContext(ctx, "source selected", attrs...)

	if c.store == nil {
		return
	}
	record := &models.SourceSelection{Kind: sel.Kind, Identifier: sel.Source.Location}
	if sel.Kind == models.SourceKindLocal {
		record.Identifier = sel.Identifier
	}
	if err := c.store.Save(ctx, record); err != nil {
		c.logger.WarnContext(ctx, "failed to persist source selection",
			slog.String("source", sel.Identifier),
			slog.String("error", err.Error()))
	}
}

// Current returns a copy of the current selection, or nil.
func (c *Catalog) Current() *Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.clone()
}

// Source returns the descriptor for new sessions; zero when nothing is selected.
func (c *Catalog) Source() relay.SourceDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return relay.SourceDescriptor{}
	}
	return c.current.Source
}

// CurrentExists reports whether the current local file is still present.
// Remote selections always report true.
func (c *Catalog) CurrentExists() bool {
	cur := c.Current()
	if cur == nil {
		return false
	}
	if cur.Source.IsRemote() {
		return true
	}
	ok, err := c.sandbox.Exists(cur.Identifier)
	return err == nil && ok
}

// Refresh re-reads file info for the current local selection.
func (c *Catalog) Refresh() *Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && !c.current.Source.IsRemote() {
		c.current.Info = c.inspect(c.current.Source.Location)
	}
	return c.current.clone()
}

// List returns the entries found by the last scan.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// ScannedAt returns when the media directory was last scanned.
func (c *Catalog) ScannedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scannedAt
}

// Rescan re-reads the media directory and returns the playable entries.
func (c *Catalog) Rescan(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := c.sandbox.ListFiles()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		if !c.extensions[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}
		entries = append(entries, Entry{
			Name:    f.Name,
			Size:    f.Size,
			ModTime: f.ModTime,
			Native:  audio.Supported(f.Name),
		})
	}

	c.mu.Lock()
	changed := len(entries) != len(c.entries)
	c.entries = entries
	c.scannedAt = time.Now()
	c.mu.Unlock()

	if changed {
		c.logger.DebugContext(ctx, "media directory scanned", slog.Int("files", len(entries)))
	}
	return c.List(), nil
}

func (c *Catalog) inspect(path string) *audio.FileInfo {
	if !audio.Supported(path) {
		return nil
	}
	info, err := audio.Inspect(path)
	if err != nil {
		c.logger.Warn("failed to read audio file info",
			slog.String("file", filepath.Base(path)),
			slog.String("error", err.Error()))
		return nil
	}
	return info
}

func (s *Selection) clone() *Selection {
	if s == nil {
		return nil
	}
	out := *s
	if s.Info != nil {
		info := *s.Info
		out.Info = &info
	}
	return &out
}
