// Package blobstore holds archive payloads keyed by archive id.
//
// Two backends are provided: FileStore for durable storage on a local
// filesystem and MemoryStore for tests and ephemeral runs. Payloads are
// write-once; Put never overwrites an existing payload.
package blobstore

import (
	"context"
	"fmt"
	"regexp"

	"archival-hq/keeper/pkg/archive"
)

// Store is a write-once payload store.
type Store interface {
	// Put stores data under id. Fails with archive.ErrBlobExists if a
	// payload is already present.
	Put(ctx context.Context, id string, data []byte) error

	// Get returns the payload or archive.ErrBlobNotFound.
	Get(ctx context.Context, id string) ([]byte, error)

	// Delete removes the payload. Deleting a missing payload succeeds.
	Delete(ctx context.Context, id string) error

	// Exists reports whether a payload is stored under id.
	Exists(ctx context.Context, id string) (bool, error)
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{1,127}$`)

// ValidateID rejects ids that are unsafe as file names.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return archive.Validationf("blobstore", "invalid archive id %q", id)
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", archive.ErrBlobNotFound, id)
}
