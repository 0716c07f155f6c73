package keystore

import (
	"context"
	"sync"
)

// MemoryKeyStore keeps records in a process-local map. Nothing survives a
// restart. LoadAllKeys returns records in first-insertion order.
//
// The zero value is unconfigured; use NewMemoryKeyStore or call Configure.
type MemoryKeyStore struct {
	mu         sync.RWMutex
	configured bool
	records    map[string]EncryptedKey
	order      []string
}

// NewMemoryKeyStore creates a configured, empty in-memory store.
func NewMemoryKeyStore() *MemoryKeyStore {
	m := &MemoryKeyStore{}
	_ = m.Configure()
	return m
}

// Configure prepares the backing map, optionally seeded with records.
func (m *MemoryKeyStore) Configure(seed ...EncryptedKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configured {
		return ErrAlreadyConfigured
	}
	m.records = make(map[string]EncryptedKey, len(seed))
	m.order = nil
	m.configured = true
	m.putLocked(seed)
	return nil
}

func (m *MemoryKeyStore) Name() string { return "memory" }

func (m *MemoryKeyStore) StoreKeys(ctx context.Context, keys []EncryptedKey) ([]KeyMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.configured {
		return nil, ErrNotConfigured
	}
	m.putLocked(keys)
	return metadataOf(keys), nil
}

func (m *MemoryKeyStore) LoadAllKeys(ctx context.Context) ([]EncryptedKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.configured {
		return nil, ErrNotConfigured
	}
	out := make([]EncryptedKey, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id])
	}
	return out, nil
}

func (m *MemoryKeyStore) LoadKey(ctx context.Context, id string) (EncryptedKey, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.configured {
		return EncryptedKey{}, false, ErrNotConfigured
	}
	k, ok := m.records[id]
	return k, ok, nil
}

func (m *MemoryKeyStore) RemoveKey(ctx context.Context, id string) (KeyMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.configured {
		return KeyMetadata{}, ErrNotConfigured
	}
	if _, ok := m.records[id]; ok {
		delete(m.records, id)
		for i, existing := range m.order {
			if existing == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	return KeyMetadata{ID: id}, nil
}

func (m *MemoryKeyStore) putLocked(keys []EncryptedKey) {
	for _, k := range keys {
		if _, exists := m.records[k.ID]; !exists {
			m.order = append(m.order, k.ID)
		}
		m.records[k.ID] = k
	}
}
