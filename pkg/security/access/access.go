// Package access implements the coarse-grained permission checks the archival
// engine performs on a resolved caller identity.
//
// Authentication happens elsewhere. The engine receives an Identity (an id and
// a set of role names) and asks a Policy whether any of those roles grants the
// permission an operation needs.
package access

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"archival-hq/keeper/pkg/archive"
)

// Permission names a single capability.
type Permission string

const (
	PermArchiveCreate     Permission = "archive:create"
	PermArchiveRead       Permission = "archive:read"
	PermArchiveRetrieve   Permission = "archive:retrieve"
	PermArchiveVerify     Permission = "archive:verify"
	PermJobsRead          Permission = "jobs:read"
	PermRetentionRead     Permission = "retention:read"
	PermRetentionEnforce  Permission = "retention:enforce"
	PermRetentionOverride Permission = "retention:override"
	PermHoldManage        Permission = "hold:manage"
	PermHoldOverride      Permission = "hold:override"
	PermMetricsRead       Permission = "metrics:read"
)

// AllPermissions lists every known permission.
var AllPermissions = []Permission{
	PermArchiveCreate,
	PermArchiveRead,
	PermArchiveRetrieve,
	PermArchiveVerify,
	PermJobsRead,
	PermRetentionRead,
	PermRetentionEnforce,
	PermRetentionOverride,
	PermHoldManage,
	PermHoldOverride,
	PermMetricsRead,
}

// Built-in role names.
const (
	RoleAdmin     = "admin"
	RoleArchivist = "archivist"
	RoleAuditor   = "auditor"
	RoleUser      = "user"
)

// DefaultRoles returns the built-in role table.
func DefaultRoles() map[string][]Permission {
	return map[string][]Permission{
		RoleAdmin: append([]Permission(nil), AllPermissions...),
		RoleArchivist: {
			PermArchiveCreate, PermArchiveRead, PermArchiveRetrieve, PermArchiveVerify,
			PermJobsRead, PermRetentionRead, PermHoldManage, PermMetricsRead,
		},
		RoleAuditor: {
			PermArchiveRead, PermArchiveVerify, PermJobsRead, PermRetentionRead, PermMetricsRead,
		},
		RoleUser: {
			PermArchiveRead, PermJobsRead,
		},
	}
}

// ParsePermission validates a permission name.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.TrimSpace(s))
	for _, known := range AllPermissions {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

// Identity is an authenticated caller.
type Identity struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// String returns the caller id, or "anonymous".
func (i Identity) String() string {
	if i.ID == "" {
		return "anonymous"
	}
	return i.ID
}

// Policy maps roles to permissions.
type Policy struct {
	mu    sync.RWMutex
	roles map[string]map[Permission]bool
}

// NewPolicy creates a policy from the built-in roles with overrides applied.
// A role present in overrides replaces the built-in role of the same name.
func NewPolicy(overrides map[string][]string) (*Policy, error) {
	p := &Policy{roles: make(map[string]map[Permission]bool)}
	for role, perms := range DefaultRoles() {
		p.setRole(role, perms)
	}

	var errs []error
	for role, names := range overrides {
		perms := make([]Permission, 0, len(names))
		for _, name := range names {
			perm, err := ParsePermission(name)
			if err != nil {
				errs = append(errs, fmt.Errorf("role %q: %w", role, err))
				continue
			}
			perms = append(perms, perm)
		}
		p.setRole(role, perms)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return p, nil
}

// SetRole replaces the permissions of a role.
func (p *Policy) SetRole(role string, perms []Permission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setRole(role, perms)
}

func (p *Policy) setRole(role string, perms []Permission) {
	set := make(map[Permission]bool, len(perms))
	for _, perm := range perms {
		set[perm] = true
	}
	p.roles[role] = set
}

// Roles returns the configured role names, sorted.
func (p *Policy) Roles() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.roles))
	for name := range p.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Allowed reports whether any of the identity's roles grants perm.
// Anonymous identities are never allowed.
func (p *Policy) Allowed(id Identity, perm Permission) bool {
	if id.ID == "" {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, role := range id.Roles {
		if p.roles[role][perm] {
			return true
		}
	}
	return false
}

// Require returns a Forbidden error unless the identity holds perm.
func (p *Policy) Require(id Identity, perm Permission, op string) error {
	if id.ID == "" {
		return archive.NewError(archive.KindForbidden, op, "",
			fmt.Errorf("%w: anonymous caller", archive.ErrForbidden))
	}
	if !p.Allowed(id, perm) {
		return archive.NewError(archive.KindForbidden, op, "",
			fmt.Errorf("%w: %s lacks %s", archive.ErrForbidden, id.ID, perm))
	}
	return nil
}
