package attach

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "attachments"))
	stored, err := store.Put("file.txt", []byte("hello"))
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("hello"))
	require.Equal(t, hex.EncodeToString(sum[:]), stored.SHA256)
	require.Equal(t, stored.SHA256+"__file.txt", filepath.Base(stored.Path))

	data, err := store.Get(filepath.Base(stored.Path))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

func TestPutDeduplicates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "attachments")
	store := NewStore(dir)
	first, err := store.Put("a.txt", []byte("same"))
	require.NoError(t, err)
	second, err := store.Put("a.txt", []byte("same"))
	require.NoError(t, err)
	require.Equal(t, first.Path, second.Path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPutSameContentDifferentNames(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "attachments")
	store := NewStore(dir)
	a, err := store.Put("a.txt", []byte("same"))
	require.NoError(t, err)
	b, err := store.Put("b.txt", []byte("same"))
	require.NoError(t, err)
	require.Equal(t, a.SHA256, b.SHA256)
	require.NotEqual(t, a.Path, b.Path)
}

func TestGC(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "attachments")
	store := NewStore(dir)
	_, err := store.Put("keep.txt", []byte("content"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deadbeef__empty"), nil, 0o644))

	removed, err := store.GC()
	require.NoError(t, err)
	require.Len(t, removed, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestGCMissingDir(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope"))
	removed, err := store.GC()
	require.NoError(t, err)
	require.Empty(t, removed)
}
