package secrets

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// EnvProvider loads secrets from environment variables.
//
// The secret "archive-encryption-key" with prefix "KEEPER_SECRET_" is read
// from KEEPER_SECRET_ARCHIVE_ENCRYPTION_KEY.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates an environment provider with the given prefix.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret reads the environment variable for name. An empty variable
// counts as missing.
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	envVar := p.envVarName(name)
	value, ok := os.LookupEnv(envVar)
	if !ok || value == "" {
		return "", fmt.Errorf("%w in environment: %s (env var: %s)", ErrSecretNotFound, name, envVar)
	}
	return value, nil
}

// ListSecrets returns the names of all prefixed environment variables,
// converted back to secret form and sorted.
func (p *EnvProvider) ListSecrets(ctx context.Context) ([]string, error) {
	var names []string
	for _, env := range os.Environ() {
		key, _, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, p.Prefix) || key == p.Prefix {
			continue
		}
		names = append(names, p.secretName(key))
	}
	sort.Strings(names)
	return names, nil
}

// Provider returns "env".
func (p *EnvProvider) Provider() string {
	return "env"
}

// Supports always returns true so the environment works as a fallback.
func (p *EnvProvider) Supports(name string) bool {
	return true
}

func (p *EnvProvider) envVarName(name string) string {
	return p.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func (p *EnvProvider) secretName(envVar string) string {
	name := strings.TrimPrefix(envVar, p.Prefix)
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}
