package cli

import (
	"errors"
	"fmt"
	"testing"

	"archival-hq/keeper/pkg/archive"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		err  *ConfigError
		want string
	}{
		{NewConfigError("jobs.timeout", "must be positive"), "config error in jobs.timeout: must be positive"},
		{NewConfigError("", "file not found"), "config error: file not found"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := NewCommandError("serve", underlying)

	if got, want := err.Error(), "command serve failed: underlying error"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is() should see through CommandError")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"validation", archive.Validationf("op", "bad"), ExitUsage},
		{"not found", fmt.Errorf("get: %w", archive.ErrNotFound), ExitNotFound},
		{"forbidden", archive.NewError(archive.KindForbidden, "op", "", errors.New("denied")), ExitForbidden},
		{"conflict", archive.NewError(archive.KindConflict, "op", "a", errors.New("busy")), ExitConflict},
		{"integrity", archive.NewError(archive.KindIntegrity, "op", "a", errors.New("checksum")), ExitIntegrity},
		{"unreadable", archive.NewError(archive.KindUnreadable, "op", "a", errors.New("no key")), ExitIntegrity},
		{"config", NewConfigError("x", "y"), ExitConfigFail},
		{"wrapped command", NewCommandError("archive get", archive.NewError(archive.KindNotFound, "op", "a", archive.ErrNotFound)), ExitNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
