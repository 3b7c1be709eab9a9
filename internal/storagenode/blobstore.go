// Package storagenode implements the storage-node chunk HTTP surface,
// master discovery, and heartbeat sender of spec section 4.4.
package storagenode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// BlobStore is a flat directory holding chunk files named exactly by
// chunk name, the persisted-state layout spec section 6 requires of
// every storage node.
type BlobStore struct {
	dir string
	mu  sync.RWMutex
}

func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &BlobStore{dir: dir}, nil
}

func (b *BlobStore) path(chunk string) string {
	return filepath.Join(b.dir, chunk)
}

// Get reads a chunk's raw bytes.
func (b *BlobStore) Get(chunk string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return os.ReadFile(b.path(chunk))
}

// Put writes a chunk's bytes, overwriting any existing content.
func (b *BlobStore) Put(chunk string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return os.WriteFile(b.path(chunk), payload, 0o644)
}

// DeletePrefixes deletes every chunk file whose name begins with any of
// the given prefixes (spec section 4.4's DELETE verb).
func (b *BlobStore) DeletePrefixes(prefixes []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				if err := os.Remove(filepath.Join(b.dir, name)); err != nil && !os.IsNotExist(err) {
					return err
				}
				break
			}
		}
	}
	return nil
}

// Delete removes a single named chunk, used by recovery trash-flush.
func (b *BlobStore) Delete(chunk string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := os.Remove(b.path(chunk))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// CopyPrefixes implements the POST verb: copy every chunk beginning with
// oldPrefixes[i] to a new name with newPrefixes[i] substituted in.
func (b *BlobStore) CopyPrefixes(oldPrefixes, newPrefixes []string) error {
	if len(oldPrefixes) != len(newPrefixes) {
		return fmt.Errorf("mismatched prefix lists: %d old, %d new", len(oldPrefixes), len(newPrefixes))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		for i, old := range oldPrefixes {
			if !strings.HasPrefix(name, old) {
				continue
			}
			newName := newPrefixes[i] + strings.TrimPrefix(name, old)
			data, err := os.ReadFile(filepath.Join(b.dir, name))
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(b.dir, newName), data, 0o644); err != nil {
				return err
			}
			break
		}
	}
	return nil
}
