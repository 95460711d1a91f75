package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of filesystem events into one rescan.
const DefaultDebounce = 500 * time.Millisecond

// Watcher rescans the catalog when the media directory changes.
type Watcher struct {
	catalog  *Catalog
	debounce time.Duration
	logger   *slog.Logger

	// OnRescan is called after each event-driven rescan. Optional.
	OnRescan func(entries []Entry)
}

// NewWatcher creates a watcher for c. A debounce <= 0 uses DefaultDebounce.
func NewWatcher(c *Catalog, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		catalog:  c,
		debounce: debounce,
		logger:   c.logger.With(slog.String("subcomponent", "watcher")),
	}
}

// Run watches the media directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.catalog.MediaDir()); err != nil {
		return fmt.Errorf("watching %s: %w", w.catalog.MediaDir(), err)
	}
	w.logger.InfoContext(ctx, "watching media directory", slog.String("dir", w.catalog.MediaDir()))

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	rescan := func() {
		entries, err := w.catalog.Rescan(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.WarnContext(ctx, "rescan failed", slog.String("error", err.Error()))
			}
			return
		}
		w.catalog.Refresh()
		if w.OnRescan != nil {
			w.OnRescan(entries)
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create | fsnotify.Remove | fsnotify.Rename | fsnotify.Write) {
				continue
			}
			w.logger.DebugContext(ctx, "media directory event",
				slog.String("name", ev.Name),
				slog.String("op", ev.Op.String()))
			mu.Lock()
			if timer == nil {
				timer = time.AfterFunc(w.debounce, rescan)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "fsnotify error", slog.String("error", err.Error()))
		}
	}
}
