package retention

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"archival-hq/keeper/internal/fswatch"
)

// PolicyWatcher reloads a PolicyStore when its policy file changes.
type PolicyWatcher struct {
	store   *PolicyStore
	watcher *fswatch.Watcher
	logger  *slog.Logger
}

// NewPolicyWatcher creates a watcher for the store's policy file.
func NewPolicyWatcher(store *PolicyStore) (*PolicyWatcher, error) {
	if store.Path() == "" {
		return nil, errors.New("policy store has no policy file to watch")
	}

	logger := slog.Default().With("component", "archive.retention.watcher")
	w, err := fswatch.New(fswatch.Config{
		Dir:        filepath.Dir(store.Path()),
		Names:      []string{filepath.Base(store.Path())},
		SkipHidden: true,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &PolicyWatcher{store: store, watcher: w, logger: logger}, nil
}

// Run watches until ctx is cancelled or Stop is called.
func (w *PolicyWatcher) Run(ctx context.Context) error {
	return w.watcher.Watch(ctx, func(string) error {
		w.logger.Info("policy file changed, reloading", "path", w.store.Path())
		return w.store.Reload()
	})
}

// Stop stops the watcher.
func (w *PolicyWatcher) Stop() error {
	return w.watcher.Stop()
}
