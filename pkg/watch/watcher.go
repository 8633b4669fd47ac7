// Package watch feeds filesystem changes into the resonance stream, giving
// the mirrors awareness of their own repository and configuration.
package watch

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/adam-kernel/resonance-go/pkg/core"
	"github.com/adam-kernel/resonance-go/pkg/store"
)

// Watcher translates fsnotify events into file_change events in the store.
type Watcher struct {
	store  store.Store
	logger *zap.Logger
	fsw    *fsnotify.Watcher
	source core.Source
}

// New creates a watcher writing into the given store. Events are attributed
// to the repo_monitor source.
func New(s store.Store, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		store:  s,
		logger: logger,
		fsw:    fsw,
		source: core.SourceRepoMonitor,
	}, nil
}

// Add starts watching a file or directory.
func (w *Watcher) Add(path string) error {
	return w.fsw.Add(path)
}

// Run consumes filesystem events until the context is cancelled or the
// underlying watcher closes. Store write failures are logged and the loop
// keeps going: a missed event must not stop the watch.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.record(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watch error", zap.Error(err))
		}
	}
}

// record appends one file_change event.
func (w *Watcher) record(ctx context.Context, event fsnotify.Event) {
	// Chmod-only noise carries no information about content.
	if event.Op == fsnotify.Chmod {
		return
	}
	_, err := w.store.Append(ctx, &core.Event{
		Source:  w.source,
		Kind:    core.KindFileChange,
		Content: strings.ToLower(event.Op.String()) + " " + filepath.Clean(event.Name),
		Metadata: map[string]interface{}{
			"path": filepath.Clean(event.Name),
			"op":   event.Op.String(),
		},
	})
	if err != nil {
		w.logger.Warn("file change not recorded",
			zap.String("path", event.Name),
			zap.Error(err))
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
