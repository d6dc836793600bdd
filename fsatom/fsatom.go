// Package fsatom provides crash-safe file operations.
//
// Every artifact the engine persists goes through WriteFile, which
// stages the bytes in a sibling temp file, fsyncs, and renames over the
// destination. After a crash the destination holds either the prior
// bytes or the new bytes, never a truncated mixture.
package fsatom

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile atomically replaces the contents of path with data,
// creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := MkdirAll(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("fsatom: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("fsatom: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsatom: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fsatom: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("fsatom: rename %s: %w", path, err)
	}
	return nil
}

// MkdirAll creates dir and any missing parents. It succeeds when the
// directory already exists.
func MkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsatom: mkdir %s: %w", dir, err)
	}
	return nil
}

// ReadString reads the file at path as UTF-8 text.
func ReadString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("fsatom: %w", err)
	}
	return string(data), nil
}
