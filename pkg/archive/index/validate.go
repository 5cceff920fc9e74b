package index

import (
	"archival-hq/keeper/pkg/archive"
)

// prepareNew checks a record passed to Create and fills the status.
func prepareNew(rec *archive.ArchiveRecord) error {
	if rec == nil {
		return archive.Validationf("index.create", "record is required")
	}
	if rec.EntityType == "" {
		return archive.Validationf("index.create", "entity type is required")
	}
	if rec.Checksum == "" {
		return archive.Validationf("index.create", "checksum is required")
	}
	if rec.CreatedAt.IsZero() {
		return archive.Validationf("index.create", "created_at is required")
	}
	if rec.Status == "" {
		rec.Status = archive.StatusComplete
	}
	if rec.Status != archive.StatusComplete {
		return archive.Validationf("index.create", "new archives must be %s, got %s", archive.StatusComplete, rec.Status)
	}
	return nil
}
