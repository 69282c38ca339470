package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStorage implements Storage on a local filesystem root. Keys map to
// paths under the root; directories are created on demand.
type FSStorage struct {
	root   string
	logger *slog.Logger
}

// NewFSStorage creates a filesystem-backed storage rooted at root.
func NewFSStorage(root string, logger *slog.Logger) *FSStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSStorage{root: root, logger: logger}
}

func (s *FSStorage) path(dir, key string) string {
	return filepath.Join(s.root, filepath.FromSlash(dir), key)
}

// Rename moves an object between keys.
func (s *FSStorage) Rename(ctx context.Context, oldDir, oldKey, newDir, newKey string) error {
	oldPath := s.path(oldDir, oldKey)
	newPath := s.path(newDir, newKey)

	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("renaming %s/%s: %w", oldDir, oldKey, ErrNotFound)
		}
		return fmt.Errorf("renaming %s/%s: %w", oldDir, oldKey, err)
	}

	s.logger.Debug("artifact renamed", "from", oldKey, "to", newKey, "dir", newDir)
	return nil
}

// Upload stores an object under dir/key.
func (s *FSStorage) Upload(ctx context.Context, dir, key string, r io.Reader) error {
	path := s.path(dir, key)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s/%s: %w", dir, key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing %s/%s: %w", dir, key, err)
	}

	return nil
}

// Exists reports whether the directory exists.
func (s *FSStorage) Exists(ctx context.Context, dir string) (bool, error) {
	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(dir)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s: %w", dir, err)
	}
	return info.IsDir(), nil
}

// Delete removes an object. Deleting an absent object is not an error.
func (s *FSStorage) Delete(ctx context.Context, dir, key string) error {
	if err := os.Remove(s.path(dir, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting %s/%s: %w", dir, key, err)
	}
	return nil
}
