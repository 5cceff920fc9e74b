package access

import (
	"errors"
	"testing"

	"archival-hq/keeper/pkg/archive"
)

func TestPolicy_Allowed(t *testing.T) {
	policy, err := NewPolicy(nil)
	if err != nil {
		t.Fatalf("NewPolicy() failed: %v", err)
	}

	tests := []struct {
		name string
		id   Identity
		perm Permission
		want bool
	}{
		{"admin enforces", Identity{ID: "root", Roles: []string{RoleAdmin}}, PermRetentionEnforce, true},
		{"archivist retrieves", Identity{ID: "a", Roles: []string{RoleArchivist}}, PermArchiveRetrieve, true},
		{"archivist cannot enforce", Identity{ID: "a", Roles: []string{RoleArchivist}}, PermRetentionEnforce, false},
		{"auditor verifies", Identity{ID: "b", Roles: []string{RoleAuditor}}, PermArchiveVerify, true},
		{"auditor cannot retrieve", Identity{ID: "b", Roles: []string{RoleAuditor}}, PermArchiveRetrieve, false},
		{"user reads", Identity{ID: "c", Roles: []string{RoleUser}}, PermArchiveRead, true},
		{"user cannot retrieve", Identity{ID: "c", Roles: []string{RoleUser}}, PermArchiveRetrieve, false},
		{"any role suffices", Identity{ID: "d", Roles: []string{RoleUser, RoleAuditor}}, PermArchiveVerify, true},
		{"unknown role", Identity{ID: "e", Roles: []string{"ghost"}}, PermArchiveRead, false},
		{"anonymous admin", Identity{Roles: []string{RoleAdmin}}, PermArchiveRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Allowed(tt.id, tt.perm); got != tt.want {
				t.Errorf("Allowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_Require(t *testing.T) {
	policy, _ := NewPolicy(nil)

	err := policy.Require(Identity{ID: "c", Roles: []string{RoleUser}}, PermArchiveRetrieve, "archive.retrieve")
	if !archive.IsKind(err, archive.KindForbidden) {
		t.Fatalf("Require() error = %v, want forbidden", err)
	}
	if !errors.Is(err, archive.ErrForbidden) {
		t.Error("errors.Is(err, ErrForbidden) = false, want true")
	}

	err = policy.Require(Identity{}, PermArchiveRead, "archive.list")
	if !archive.IsKind(err, archive.KindForbidden) {
		t.Errorf("anonymous Require() error = %v, want forbidden", err)
	}

	if err := policy.Require(Identity{ID: "root", Roles: []string{RoleAdmin}}, PermHoldOverride, "archive.hold"); err != nil {
		t.Errorf("admin Require() error = %v, want nil", err)
	}
}

func TestNewPolicy_Overrides(t *testing.T) {
	policy, err := NewPolicy(map[string][]string{
		RoleUser:  {"archive:read", "archive:retrieve"},
		"counsel": {"hold:manage", "hold:override"},
	})
	if err != nil {
		t.Fatalf("NewPolicy() failed: %v", err)
	}

	user := Identity{ID: "u", Roles: []string{RoleUser}}
	if !policy.Allowed(user, PermArchiveRetrieve) {
		t.Error("overridden user role should retrieve")
	}
	if policy.Allowed(user, PermJobsRead) {
		t.Error("override should replace the built-in role, not extend it")
	}
	if !policy.Allowed(Identity{ID: "x", Roles: []string{"counsel"}}, PermHoldOverride) {
		t.Error("custom role should hold:override")
	}

	_, err = NewPolicy(map[string][]string{"broken": {"archive:destroy"}})
	if err == nil {
		t.Error("NewPolicy() with unknown permission should fail")
	}
}
