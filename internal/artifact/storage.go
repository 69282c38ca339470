// Package artifact provides access to staged build artifacts.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when a referenced object does not exist.
var ErrNotFound = errors.New("artifact not found")

// Storage is the external object-storage collaborator. The
// orchestration core only renames staged binaries; upload and download
// happen outside it.
type Storage interface {
	// Rename moves an object between keys, possibly across directories.
	Rename(ctx context.Context, oldDir, oldKey, newDir, newKey string) error
	// Upload stores an object under dir/key.
	Upload(ctx context.Context, dir, key string, r io.Reader) error
	// Exists reports whether the directory (bucket) exists.
	Exists(ctx context.Context, dir string) (bool, error)
	// Delete removes an object.
	Delete(ctx context.Context, dir, key string) error
}

// StagingDir returns the staging directory of one build invocation:
// {project}/{user}/{buildID}/staging.
func StagingDir(projectID, userID, buildID string) string {
	return fmt.Sprintf("%s/%s/%s/staging", projectID, userID, buildID)
}

// StagedKey returns the staged artifact filename for a tag:
// {project}_{user}_{tag}.zip.
func StagedKey(projectID, userID, tag string) string {
	return fmt.Sprintf("%s_%s_%s.zip", projectID, userID, tag)
}
