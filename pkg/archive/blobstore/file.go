package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"archival-hq/keeper/pkg/archive"
)

// FileExt is the extension of payload files.
const FileExt = ".karc"

// FileStore stores payloads as files under a root directory, fanned out by
// the first two characters of the id: <root>/<id[:2]>/<id>.karc.
type FileStore struct {
	root   string
	logger *slog.Logger
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, archive.NewStorageError("filesystem", "init", fmt.Errorf("create %s: %w", root, err))
	}
	s := &FileStore{
		root:   root,
		logger: slog.Default().With("component", "archive.blobstore"),
	}
	s.logger.Info("file blob store initialized", "root", root)
	return s, nil
}

// Path returns the file path of a payload.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.root, id[:2], id+FileExt)
}

// Put writes to a temp file, fsyncs it and links it into place. Linking
// fails if the target exists, so concurrent writers cannot clobber each
// other.
func (s *FileStore) Put(ctx context.Context, id string, data []byte) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath := s.Path(id)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return archive.NewStorageError("filesystem", "put", err)
	}

	tmpPath := fullPath + "." + uuid.NewString() + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return archive.NewStorageError("filesystem", "put", err)
	}
	defer os.Remove(tmpPath)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return archive.NewStorageError("filesystem", "put", fmt.Errorf("write: %w", err))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return archive.NewStorageError("filesystem", "put", fmt.Errorf("fsync: %w", err))
	}
	if err := f.Close(); err != nil {
		return archive.NewStorageError("filesystem", "put", fmt.Errorf("close: %w", err))
	}

	if err := os.Link(tmpPath, fullPath); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", archive.ErrBlobExists, id)
		}
		return archive.NewStorageError("filesystem", "put", fmt.Errorf("link: %w", err))
	}

	s.logger.Debug("payload stored", "archive_id", id, "size_bytes", len(data))
	return nil
}

// Get reads a payload.
func (s *FileStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, archive.NewStorageError("filesystem", "get", err)
	}
	return data, nil
}

// Delete removes a payload. A missing file is not an error.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.Path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return archive.NewStorageError("filesystem", "delete", err)
	}
	s.logger.Debug("payload deleted", "archive_id", id)
	return nil
}

// Exists reports whether the payload file exists.
func (s *FileStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	_, err := os.Stat(s.Path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, archive.NewStorageError("filesystem", "stat", err)
}
