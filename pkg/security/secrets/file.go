package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"archival-hq/keeper/internal/fswatch"
)

// FileProvider loads secrets from individual files in a directory, one
// file per secret. Only regular files with mode 0600 or 0400 are read.
type FileProvider struct {
	BasePath string
	Watch    bool

	mu     sync.RWMutex
	cache  map[string]string
	logger *slog.Logger

	watcher   *fswatch.Watcher
	cancel    context.CancelFunc
	watchDone chan struct{}
}

// NewFileProvider creates a provider reading from basePath. With watch
// enabled, a cached value is dropped as soon as its file changes.
func NewFileProvider(basePath string, watch bool) (*FileProvider, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets path is not a directory: %s", basePath)
	}

	p := &FileProvider{
		BasePath: basePath,
		Watch:    watch,
		cache:    make(map[string]string),
		logger:   slog.Default().With("component", "security.secrets"),
	}

	if watch {
		w, err := fswatch.New(fswatch.Config{Dir: basePath, SkipHidden: true}, p.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets watcher: %w", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		p.watcher = w
		p.cancel = cancel
		p.watchDone = make(chan struct{})
		go func() {
			defer close(p.watchDone)
			if err := w.Watch(ctx, p.invalidate); err != nil {
				p.logger.Error("secrets watcher stopped", "error", err)
			}
		}()
	}

	p.logger.Info("file secret provider ready", "path", basePath, "watch", watch)
	return p, nil
}

// GetSecret reads the file named name under BasePath.
func (p *FileProvider) GetSecret(ctx context.Context, name string) (string, error) {
	p.mu.RLock()
	value, ok := p.cache[name]
	p.mu.RUnlock()
	if ok {
		return value, nil
	}

	if !validSecretName(name) {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	path := filepath.Join(p.BasePath, name)

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w in %s: %s", ErrSecretNotFound, p.BasePath, name)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", name)
	}
	if mode := info.Mode().Perm(); mode != 0o600 && mode != 0o400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
	}

	// #nosec G304 - name is a single path element under BasePath.
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	value = strings.TrimSpace(string(data))

	p.mu.Lock()
	p.cache[name] = value
	p.mu.Unlock()

	return value, nil
}

// ListSecrets returns the names of the regular files in BasePath.
func (p *FileProvider) ListSecrets(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Provider returns "file".
func (p *FileProvider) Provider() string {
	return "file"
}

// Supports reports whether a regular file named name exists.
func (p *FileProvider) Supports(name string) bool {
	if !validSecretName(name) {
		return false
	}
	info, err := os.Lstat(filepath.Join(p.BasePath, name))
	return err == nil && info.Mode().IsRegular()
}

// Refresh drops every cached value.
func (p *FileProvider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	p.cache = make(map[string]string)
	p.mu.Unlock()
	p.logger.Debug("file secret cache cleared")
	return nil
}

// Close stops the watcher, if any.
func (p *FileProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	p.cancel()
	<-p.watchDone
	return p.watcher.Stop()
}

func (p *FileProvider) invalidate(name string) error {
	p.mu.Lock()
	_, cached := p.cache[name]
	delete(p.cache, name)
	p.mu.Unlock()

	if cached {
		p.logger.Info("secret file changed, cached value dropped", "name", redactSecretName(name))
	}
	return nil
}

func validSecretName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}
