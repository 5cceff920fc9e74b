// Package fswatch watches files for changes and calls back after a quiet
// period. It is shared by the retention policy reloader and the file secret
// provider.
package fswatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period before a change is reported.
const DefaultDebounceInterval = 100 * time.Millisecond

// Config contains configuration for a Watcher.
type Config struct {
	// Dir is the directory to watch. Watching the directory rather than the
	// file keeps the watch alive across editors that replace files by rename.
	Dir string

	// Names restricts events to these base names. Empty means any file.
	Names []string

	// DebounceInterval is the time to wait after the last event before the
	// callback runs (default: 100ms).
	DebounceInterval time.Duration

	// SkipHidden ignores dot files, which are usually editor temp files.
	SkipHidden bool
}

// Watcher watches a directory and triggers a callback on relevant changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	config   Config
	debounce *Debouncer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a watcher. Call Watch to start it.
func New(config Config, logger *slog.Logger) (*Watcher, error) {
	if config.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultDebounceInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:  w,
		logger:   logger,
		config:   config,
		debounce: NewDebouncer(config.DebounceInterval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until the context is cancelled or Stop is called, invoking
// onChange after each debounced burst of events. A callback error is logged
// and watching continues.
func (w *Watcher) Watch(ctx context.Context, onChange func(name string) error) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	if err := w.watcher.Add(w.config.Dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.config.Dir, err)
	}

	w.logger.Info("file watcher started",
		"dir", w.config.Dir,
		"names", strings.Join(w.config.Names, ","),
		"debounce_ms", w.config.DebounceInterval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("file watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}

			w.logger.Debug("file event detected", "path", event.Name, "op", event.Op.String())

			name := filepath.Base(event.Name)
			w.debounce.Trigger(func() {
				if err := onChange(name); err != nil {
					w.logger.Error("change handler failed", "file", name, "error", err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

// Stop stops a running watcher and releases its resources.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	w.debounce.Stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if w.config.SkipHidden && strings.HasPrefix(base, ".") {
		return false
	}
	if len(w.config.Names) == 0 {
		return true
	}
	for _, name := range w.config.Names {
		if base == name {
			return true
		}
	}
	return false
}

// Debouncer collects rapid events and runs only the latest callback after a
// quiet period.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		d.callback = nil
		stopped := d.stopped
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Further triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
