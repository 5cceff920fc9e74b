package secrets

import (
	"context"
	"errors"
	"testing"
)

func TestEnvProvider_GetSecret(t *testing.T) {
	t.Setenv("KEEPER_SECRET_ARCHIVE_ENCRYPTION_KEY", "abc")
	t.Setenv("KEEPER_SECRET_EMPTY", "")

	p := NewEnvProvider("KEEPER_SECRET_")

	tests := []struct {
		name     string
		secret   string
		want     string
		notFound bool
	}{
		{"hyphenated name", "archive-encryption-key", "abc", false},
		{"missing", "archive-age-identity", "", true},
		{"empty counts as missing", "empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.GetSecret(context.Background(), tt.secret)
			if tt.notFound {
				if !errors.Is(err, ErrSecretNotFound) {
					t.Errorf("GetSecret() error = %v, want ErrSecretNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetSecret() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("GetSecret() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnvProvider_NameConversion(t *testing.T) {
	p := NewEnvProvider("KEEPER_SECRET_")

	if got := p.envVarName("archive-age-identity"); got != "KEEPER_SECRET_ARCHIVE_AGE_IDENTITY" {
		t.Errorf("envVarName() = %q", got)
	}
	if got := p.secretName("KEEPER_SECRET_ARCHIVE_AGE_IDENTITY"); got != "archive-age-identity" {
		t.Errorf("secretName() = %q", got)
	}
}

func TestEnvProvider_ListSecrets(t *testing.T) {
	t.Setenv("KEEPERTEST_SECRET_B_KEY", "1")
	t.Setenv("KEEPERTEST_SECRET_A_KEY", "2")
	t.Setenv("OTHER_VALUE", "3")

	names, err := NewEnvProvider("KEEPERTEST_SECRET_").ListSecrets(context.Background())
	if err != nil {
		t.Fatalf("ListSecrets() failed: %v", err)
	}
	if len(names) != 2 || names[0] != "a-key" || names[1] != "b-key" {
		t.Errorf("ListSecrets() = %v, want [a-key b-key]", names)
	}
}

func TestEnvProvider_Supports(t *testing.T) {
	p := NewEnvProvider("KEEPER_SECRET_")
	if !p.Supports("anything") {
		t.Error("env provider should support every name")
	}
	if p.Provider() != "env" {
		t.Errorf("Provider() = %q, want env", p.Provider())
	}
}
