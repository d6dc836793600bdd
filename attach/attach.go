// Package attach implements the per-list content-addressed attachment
// store. Blobs are named <sha256>__<original-name>, so storing the
// same content under the same name twice is a no-op and many sidecars
// can share one blob.
package attach

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"owlery.ink/fsatom"
)

// Store is a content-addressed blob directory.
type Store struct {
	root string
}

func NewStore(root string) Store { return Store{root: root} }

// Stored describes a blob after a Put.
type Stored struct {
	Path   string
	SHA256 string
}

// Put writes data under <sha256>__<name> unless that file already
// exists. The same content stored under a different name gets its own
// blob.
func (s Store) Put(name string, data []byte) (Stored, error) {
	if err := fsatom.MkdirAll(s.root); err != nil {
		return Stored{}, err
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	path := filepath.Join(s.root, digest+"__"+name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := fsatom.WriteFile(path, data); err != nil {
			return Stored{}, err
		}
	}
	return Stored{Path: path, SHA256: digest}, nil
}

// Get reads a blob by its full on-disk name.
func (s Store) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, name))
	if err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	return data, nil
}

// GC removes zero-length blobs. This is a defensive sweep; the real
// orphan policy runs during retention reconciliation.
func (s Store) GC() ([]string, error) {
	var removed []string
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("attach: %w", err)
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return removed, fmt.Errorf("attach: %w", err)
		}
		if info.Mode().IsRegular() && info.Size() == 0 {
			path := filepath.Join(s.root, entry.Name())
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("attach: %w", err)
			}
			removed = append(removed, path)
		}
	}
	return removed, nil
}
