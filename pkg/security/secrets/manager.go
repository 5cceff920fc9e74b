package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Manager resolves secrets through an ordered chain of providers.
type Manager struct {
	providers []SecretProvider
	cache     *Cache
	logger    *slog.Logger
}

// NewManager creates a manager. Providers are tried in the order given.
func NewManager(providers []SecretProvider, cacheConfig CacheConfig) *Manager {
	return &Manager{
		providers: providers,
		cache:     NewCache(cacheConfig),
		logger:    slog.Default().With("component", "security.secrets"),
	}
}

// GetSecret returns the value from the first provider that has it. If every
// provider misses, the error wraps ErrSecretNotFound; a provider failing for
// another reason is reported in preference to a plain miss.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if value, ok := m.cache.Get(name); ok {
		return value, nil
	}

	var lastErr error
	for _, provider := range m.providers {
		if !provider.Supports(name) {
			continue
		}

		value, err := provider.GetSecret(ctx, name)
		if err != nil {
			m.logger.Debug("secret provider miss",
				"provider", provider.Provider(),
				"name", redactSecretName(name),
				"error", err,
			)
			if lastErr == nil || !errors.Is(err, ErrSecretNotFound) {
				lastErr = err
			}
			continue
		}

		m.cache.Set(name, value)
		m.logger.Debug("secret resolved", "provider", provider.Provider(), "name", redactSecretName(name))
		return value, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", name, lastErr)
	}
	return "", fmt.Errorf("%w: %q (no provider supports it)", ErrSecretNotFound, name)
}

// GetKey resolves name and decodes it as a 32-byte key.
func (m *Manager) GetKey(ctx context.Context, name string) ([]byte, error) {
	raw, err := m.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	key, err := DecodeKey(raw)
	if err != nil {
		return nil, fmt.Errorf("secret %q: %w", name, err)
	}
	return key, nil
}

// Refresh refreshes every refreshable provider and clears the cache.
func (m *Manager) Refresh(ctx context.Context) error {
	var failures []string
	for _, provider := range m.providers {
		refreshable, ok := provider.(RefreshableProvider)
		if !ok {
			continue
		}
		if err := refreshable.Refresh(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", provider.Provider(), err))
			m.logger.Error("failed to refresh secret provider", "provider", provider.Provider(), "error", err)
		}
	}

	m.cache.Clear()

	if len(failures) > 0 {
		return fmt.Errorf("failed to refresh some providers: %s", strings.Join(failures, "; "))
	}
	return nil
}

// ListSecrets returns the sorted union of secret names across providers.
// Providers that fail to list are skipped with a warning.
func (m *Manager) ListSecrets(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, provider := range m.providers {
		names, err := provider.ListSecrets(ctx)
		if err != nil {
			m.logger.Warn("failed to list secrets", "provider", provider.Provider(), "error", err)
			continue
		}
		for _, name := range names {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func redactSecretName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
