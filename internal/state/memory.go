package state

import (
	"context"
	"sync"
)

// MemoryPersister keeps the encoded snapshot in memory. It is used when no
// durable store is configured and in tests.
type MemoryPersister struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryPersister returns an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

// Load decodes the stored blob. An empty persister yields an empty snapshot.
func (m *MemoryPersister) Load(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return Snapshot{}, nil
	}
	return decode(m.data)
}

// Save encodes and stores snap.
func (m *MemoryPersister) Save(_ context.Context, snap Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

// Raw returns the stored bytes.
func (m *MemoryPersister) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// SetRaw replaces the stored bytes.
func (m *MemoryPersister) SetRaw(data []byte) {
	m.mu.Lock()
	m.data = append([]byte(nil), data...)
	m.mu.Unlock()
}
