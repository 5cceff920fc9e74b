package secrets

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned when no provider holds the requested secret.
var ErrSecretNotFound = errors.New("secret not found")

// SecretProvider retrieves secrets from a backend.
type SecretProvider interface {
	// GetSecret retrieves a secret by name. A missing secret wraps
	// ErrSecretNotFound.
	GetSecret(ctx context.Context, name string) (string, error)

	// ListSecrets returns the names of the secrets available from this
	// provider. Values are never returned.
	ListSecrets(ctx context.Context) ([]string, error)

	// Provider returns the provider name ("env", "file").
	Provider() string

	// Supports reports whether the provider may hold the named secret.
	Supports(name string) bool
}

// RefreshableProvider can drop cached values without a restart.
type RefreshableProvider interface {
	SecretProvider

	// Refresh discards cached values so the next read goes to the backend.
	Refresh(ctx context.Context) error
}
