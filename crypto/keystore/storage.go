package keystore

import (
	"context"
	"sort"
	"sync"
)

// MapStorage is an in-memory Storage.
type MapStorage struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMapStorage creates an empty in-memory storage area.
func NewMapStorage() *MapStorage {
	return &MapStorage{items: make(map[string][]byte)}
}

// Keys returns all keys in lexical order.
func (m *MapStorage) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MapStorage) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return nil, ErrStorageKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MapStorage) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string][]byte)
	}
	m.items[key] = append([]byte(nil), value...)
	return nil
}

func (m *MapStorage) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
