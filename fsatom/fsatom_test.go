package fsatom

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, WriteFile(path, []byte("hello")))
	got, err := ReadString(path)
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestWriteFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "deep.txt")
	require.NoError(t, WriteFile(path, []byte("nested")))
	got, err := ReadString(path)
	require.NoError(t, err)
	require.Equal(t, "nested", got)
}

func TestWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, WriteFile(path, []byte("first")))
	require.NoError(t, WriteFile(path, []byte("second")))
	got, err := ReadString(path)
	require.NoError(t, err)
	require.Equal(t, "second", got)
}

func TestWriteFileLeavesNoTempDebris(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteFile(filepath.Join(dir, "f"), []byte("x")))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteFileBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bin.dat")
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, WriteFile(path, data))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestWriteFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, WriteFile(path, nil))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWriteFileParentIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "occupied")
	require.NoError(t, os.WriteFile(blocker, []byte("f"), 0o644))
	err := WriteFile(filepath.Join(blocker, "child.txt"), []byte("x"))
	require.Error(t, err)
}

func TestMkdirAllIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub")
	require.NoError(t, MkdirAll(dir))
	require.NoError(t, MkdirAll(dir))
}

func TestReadStringMissing(t *testing.T) {
	_, err := ReadString(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
