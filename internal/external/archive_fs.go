package external

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSArchiveStore writes exported history batches to a local directory,
// mirroring the key structure an object store would use. The maintenance
// task only needs durable bytes at a stable key; in the Lambda deployment the
// directory is a mounted EFS path.
type FSArchiveStore struct {
	root string
}

// NewFSArchiveStore creates an FSArchiveStore rooted at dir.
func NewFSArchiveStore(dir string) *FSArchiveStore {
	return &FSArchiveStore{root: dir}
}

// Upload writes data at key under the store root, creating intermediate
// directories as needed. The write goes through a temp file and rename so a
// crash never leaves a truncated archive at the final key.
func (s *FSArchiveStore) Upload(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("creating archive temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return nil
}
