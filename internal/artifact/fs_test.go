package artifact

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStorageUploadAndExists(t *testing.T) {
	s := NewFSStorage(t.TempDir(), nil)
	ctx := context.Background()

	dir := StagingDir("p1", "u1", "b1")
	require.NoError(t, s.Upload(ctx, dir, "fw.zip", strings.NewReader("payload")))

	ok, err := s.Exists(ctx, dir)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "p2/u2/b2/staging")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFSStorageRename(t *testing.T) {
	root := t.TempDir()
	s := NewFSStorage(root, nil)
	ctx := context.Background()

	dir := StagingDir("p1", "u1", "b1")
	oldKey := StagedKey("p1", "u1", "20240101_000000")
	newKey := StagedKey("p1", "u1", "20240102_000000")

	require.NoError(t, s.Upload(ctx, dir, oldKey, strings.NewReader("payload")))
	require.NoError(t, s.Rename(ctx, dir, oldKey, dir, newKey))

	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(dir), oldKey))
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(dir), newKey))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestFSStorageRenameMissing(t *testing.T) {
	s := NewFSStorage(t.TempDir(), nil)

	err := s.Rename(context.Background(), "p1/u1/b1/staging", "gone.zip", "p1/u1/b1/staging", "new.zip")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStorageDeleteIsIdempotent(t *testing.T) {
	s := NewFSStorage(t.TempDir(), nil)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "d", "k.zip", strings.NewReader("x")))
	require.NoError(t, s.Delete(ctx, "d", "k.zip"))
	require.NoError(t, s.Delete(ctx, "d", "k.zip"))
}

func TestStagingKeys(t *testing.T) {
	assert.Equal(t, "p1/u1/b1/staging", StagingDir("p1", "u1", "b1"))
	assert.Equal(t, "p1_u1_20240101_000000.zip", StagedKey("p1", "u1", "20240101_000000"))
}
