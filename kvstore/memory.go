package kvstore

import (
	"sort"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// MemBackend is a Backend that keeps its entries in memory. It is mostly used
// in tests and for throwaway stores.
type MemBackend struct {
	mu      sync.RWMutex
	entries map[string]string
}

// A compile-time check to ensure MemBackend implements the Backend interface.
var _ Backend = (*MemBackend)(nil)

// NewMemBackend returns an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{
		entries: make(map[string]string),
	}
}

// Get returns the value stored under key.
//
// NOTE: This is part of the Backend interface.
func (m *MemBackend) Get(key string) (fn.Option[string], error) {
	if err := validateKey(key); err != nil {
		return fn.None[string](), err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.entries[key]
	if !ok {
		return fn.None[string](), nil
	}

	return fn.Some(value), nil
}

// Set replaces the value stored under key.
//
// NOTE: This is part of the Backend interface.
func (m *MemBackend) Set(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = value

	return nil
}

// RemoveAll drops every entry.
//
// NOTE: This is part of the Backend interface.
func (m *MemBackend) RemoveAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]string)

	return nil
}

// Keys returns the sorted entry names.
//
// NOTE: This is part of the Backend interface.
func (m *MemBackend) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}
