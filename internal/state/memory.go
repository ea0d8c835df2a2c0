package state

import (
	"sync"

	"github.com/codeql-community/qldist/internal/registry"
)

// Memory is an in-memory Store for tests and embedding hosts that keep
// their own persistence.
type Memory struct {
	mu      sync.Mutex
	release *registry.Release
	index   int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) InstalledRelease() (*registry.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.release, nil
}

func (m *Memory) SetInstalledRelease(r *registry.Release) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release = r
	return nil
}

func (m *Memory) FolderIndex() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index, nil
}

func (m *Memory) BumpFolderIndex() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index++
	return m.index, nil
}
