package jobstore

import (
	"context"
	"slices"
	"sync"
)

// MemorySlot keeps the slot in process memory. It does not survive a restart.
type MemorySlot struct {
	mu   sync.Mutex
	data []byte
	ok   bool
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (m *MemorySlot) Load(_ context.Context) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.data), m.ok, nil
}

func (m *MemorySlot) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = slices.Clone(data)
	m.ok = true
	return nil
}

func (m *MemorySlot) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.ok = false
	return nil
}

var _ Slot = (*MemorySlot)(nil)
