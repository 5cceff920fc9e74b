package retention

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"archival-hq/keeper/pkg/archive"

	"gopkg.in/yaml.v3"
)

// PolicyFile is the on-disk format of a retention policy file.
//
//	policies:
//	  - entity_type: samples
//	    retention_period: 8760h
//	    archive_after: 720h
//	  - entity_type: cases
//	    retention_period: 61320h
//	    legal_hold_overridable: false
type PolicyFile struct {
	Policies []archive.RetentionPolicy `yaml:"policies"`
}

// PolicyStore serves retention policies by entity type.
type PolicyStore struct {
	mu            sync.RWMutex
	base          map[string]archive.RetentionPolicy
	merged        map[string]archive.RetentionPolicy
	defaultPeriod time.Duration
	path          string
	logger        *slog.Logger
}

// NewPolicyStore creates a store from the configured policies and, when path
// is non-empty, the policy file at path.
func NewPolicyStore(configured []archive.RetentionPolicy, defaultPeriod time.Duration, path string) (*PolicyStore, error) {
	base, err := indexPolicies(configured)
	if err != nil {
		return nil, fmt.Errorf("configured policies: %w", err)
	}

	s := &PolicyStore{
		base:          base,
		defaultPeriod: defaultPeriod,
		path:          path,
		logger:        slog.Default().With("component", "archive.retention"),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the policy file path, or "" when none is configured.
func (s *PolicyStore) Path() string {
	return s.path
}

// Reload re-reads the policy file. On error the previous policies stay in
// effect.
func (s *PolicyStore) Reload() error {
	merged := make(map[string]archive.RetentionPolicy, len(s.base))
	for k, p := range s.base {
		merged[k] = p
	}

	if s.path != "" {
		filePolicies, err := LoadPolicyFile(s.path)
		if err != nil {
			return err
		}
		for k, p := range filePolicies {
			merged[k] = p
		}
	}

	s.mu.Lock()
	s.merged = merged
	s.mu.Unlock()

	s.logger.Info("retention policies loaded",
		"policy_count", len(merged),
		"policy_file", s.path,
	)
	return nil
}

// Lookup returns the explicit policy for entityType.
func (s *PolicyStore) Lookup(entityType string) (archive.RetentionPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.merged[entityType]
	return p, ok
}

// Policy returns the policy for entityType, falling back to the default
// period when there is no explicit policy.
func (s *PolicyStore) Policy(entityType string) archive.RetentionPolicy {
	if p, ok := s.Lookup(entityType); ok {
		return p
	}
	return archive.RetentionPolicy{
		EntityType:      entityType,
		RetentionPeriod: s.defaultPeriod,
	}
}

// List returns every explicit policy sorted by entity type.
func (s *PolicyStore) List() []archive.RetentionPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]archive.RetentionPolicy, 0, len(s.merged))
	for _, p := range s.merged {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityType < out[j].EntityType })
	return out
}

// LoadPolicyFile reads and validates a policy file.
func LoadPolicyFile(path string) (map[string]archive.RetentionPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %q: %w", path, err)
	}

	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %q: %w", path, err)
	}

	policies, err := indexPolicies(file.Policies)
	if err != nil {
		return nil, fmt.Errorf("policy file %q: %w", path, err)
	}
	return policies, nil
}

func indexPolicies(list []archive.RetentionPolicy) (map[string]archive.RetentionPolicy, error) {
	out := make(map[string]archive.RetentionPolicy, len(list))
	var errs []error
	for i, p := range list {
		switch {
		case p.EntityType == "":
			errs = append(errs, fmt.Errorf("policy %d: entity_type is required", i))
			continue
		case p.RetentionPeriod < 0:
			errs = append(errs, fmt.Errorf("policy %q: retention_period must not be negative", p.EntityType))
		case p.ArchiveAfter < 0:
			errs = append(errs, fmt.Errorf("policy %q: archive_after must not be negative", p.EntityType))
		}
		if _, dup := out[p.EntityType]; dup {
			errs = append(errs, fmt.Errorf("policy %q: duplicate entity_type", p.EntityType))
		}
		out[p.EntityType] = p
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
