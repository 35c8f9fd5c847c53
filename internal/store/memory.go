package store

import (
	"context"
	"sync"

	"github.com/jmerrifield20/tokenledger/internal/ledger"
)

// MemoryStore keeps the latest checkpoint in process memory.
// Suitable for development and tests; state is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data *encoded
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context) (*ledger.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil, ErrNoSnapshot
	}
	return decode(m.data.payload, m.data.checksum)
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, snap *ledger.Snapshot) error {
	enc, err := encode(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = &enc
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
