package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound reports a blob that has already been deleted or never existed.
// A request racing the sweeper sees this when its artifact's file vanishes
// mid-read; callers treat it like a missing artifact, not a crash.
var ErrNotFound = errors.New("blob not found")

// Blobs abstracts the transient upload storage so the router, registry and
// sweeper can be tested without touching disk.
type Blobs interface {
	// Store writes data under a generated name with the given extension and
	// returns the path handle used for later reads and deletes.
	Store(data []byte, ext string) (string, error)
	Read(path string) ([]byte, error)
	// Delete removes the blob. Deleting an absent blob is a no-op.
	Delete(path string) error
}

// DiskBlobs stores uploads as files under a single directory, one file per
// artifact, named by a fresh UUID.
type DiskBlobs struct {
	dir string
}

func NewDiskBlobs(dir string) (*DiskBlobs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskBlobs{dir: dir}, nil
}

func (d *DiskBlobs) Store(data []byte, ext string) (string, error) {
	path := filepath.Join(d.dir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (d *DiskBlobs) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (d *DiskBlobs) Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// MemoryBlobs is the in-memory fake used by tests.
type MemoryBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string][]byte)}
}

func (m *MemoryBlobs) Store(data []byte, ext string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := "mem/" + uuid.NewString() + ext
	copied := make([]byte, len(data))
	copy(copied, data)
	m.blobs[path] = copied
	return path, nil
}

func (m *MemoryBlobs) Read(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *MemoryBlobs) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, path)
	return nil
}

// Len reports the number of stored blobs; test helper.
func (m *MemoryBlobs) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
