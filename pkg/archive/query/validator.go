// Package query validates and defaults archive catalog listings.
package query

import (
	"fmt"

	"archival-hq/keeper/pkg/archive"
)

const (
	// DefaultLimit is the default number of archives to return if not specified.
	DefaultLimit = 100

	// MaxLimit is the maximum number of archives that can be returned in a single query.
	MaxLimit = 10000
)

// Limits holds the page size bounds applied to listings.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultLimits returns the package default bounds.
func DefaultLimits() Limits {
	return Limits{DefaultLimit: DefaultLimit, MaxLimit: MaxLimit}
}

// Validate validates a query with the default limits.
func Validate(q *archive.ListQuery) error {
	return DefaultLimits().Validate(q)
}

// ApplyDefaults applies the default limits to a query.
func ApplyDefaults(q *archive.ListQuery) {
	DefaultLimits().ApplyDefaults(q)
}

// Validate returns a validation error if any parameter is invalid.
func (l Limits) Validate(q *archive.ListQuery) error {
	if q == nil {
		return nil
	}

	if q.Limit < 0 {
		return invalid(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > l.MaxLimit {
		return invalid(q, fmt.Errorf("limit must be <= %d, got %d", l.MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return invalid(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}

	if q.CreatedFrom != nil && q.CreatedTo != nil && q.CreatedFrom.After(*q.CreatedTo) {
		return invalid(q, fmt.Errorf("created_from must be before created_to"))
	}
	if q.MinSize != nil && *q.MinSize < 0 {
		return invalid(q, fmt.Errorf("min_size must be >= 0"))
	}
	if q.MinSize != nil && q.MaxSize != nil && *q.MinSize > *q.MaxSize {
		return invalid(q, fmt.Errorf("min_size must be <= max_size"))
	}
	if q.MinRecords != nil && q.MaxRecords != nil && *q.MinRecords > *q.MaxRecords {
		return invalid(q, fmt.Errorf("min_records must be <= max_records"))
	}

	if q.Status != "" && !q.Status.Valid() {
		return invalid(q, fmt.Errorf("invalid status: %s (must be '%s' or '%s')", q.Status, archive.StatusComplete, archive.StatusDeleting))
	}

	return nil
}

// ApplyDefaults sets the default page size when none is given.
func (l Limits) ApplyDefaults(q *archive.ListQuery) {
	if q.Limit == 0 {
		q.Limit = l.DefaultLimit
	}
}

func invalid(q *archive.ListQuery, cause error) error {
	return archive.NewError(archive.KindValidation, "archive.list", "", archive.NewQueryError(q, cause))
}
