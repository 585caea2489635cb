package facts

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadDelay debounces bursts of file events into one reload.
const ReloadDelay = 500 * time.Millisecond

// Watcher re-evaluates a MangleStore whenever one of its model files changes.
type Watcher struct {
	store    *MangleStore
	logger   zerolog.Logger
	onReload func(error)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher. onReload, if set, is called after each reload
// attempt with its error.
func NewWatcher(logger zerolog.Logger, store *MangleStore, onReload func(error)) *Watcher {
	return &Watcher{
		store:    store,
		logger:   logger.With().Str("component", "model-watcher").Logger(),
		onReload: onReload,
	}
}

// Watch starts watching the directories holding the store's model files.
// It returns once the watch is registered; events are processed until ctx
// is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	files, err := w.store.Files()
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dirs := make(map[string]bool)
	for _, f := range files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn().Err(err).Str("path", dir).Msg("Failed to watch directory")
		}
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go w.processEvents(ctx, watcher)

	w.logger.Info().
		Int("directories", len(dirs)).
		Int("files", len(files)).
		Msg("Started watching model files")
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".mg") {
				continue
			}
			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Model file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(ReloadDelay, w.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) reload() {
	err := w.store.Reload()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload model, keeping previous facts")
	} else {
		w.logger.Info().Msg("Model reloaded")
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
