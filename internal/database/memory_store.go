// file: internal/database/memory_store.go
// version: 1.1.0
// guid: 2d3e4f5a-6b7c-8d9e-0f1a-2b3c4d5e6f7a

package database

import (
	"sort"
	"strings"
	"sync"

	"github.com/opencatalog/streamvault/internal/catalog"
)

// MemoryStore implements the Store interface with plain maps. It backs
// memory-only mode (no database path configured) and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	cols map[catalog.Collection]map[string][]byte

	// FailPut, when set, makes every write return a StorageError wrapping it.
	// Tests use this to exercise the no-retry error path.
	FailPut error
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cols: make(map[catalog.Collection]map[string][]byte)}
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }

// Put overwrites one record.
func (m *MemoryStore) Put(col catalog.Collection, key string, value []byte) error {
	if m.FailPut != nil {
		return storageErr("put", m.FailPut)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.cols[col]
	if !ok {
		bucket = make(map[string][]byte)
		m.cols[col] = bucket
	}
	out := make([]byte, len(value))
	copy(out, value)
	bucket[key] = out
	return nil
}

// Get reads one record. Missing keys return (nil, false, nil).
func (m *MemoryStore) Get(col catalog.Collection, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.cols[col]
	if !ok {
		return nil, false, nil
	}
	value, ok := bucket[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Keys lists the keys in one collection with the given prefix, sorted.
func (m *MemoryStore) Keys(col catalog.Collection, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.cols[col] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes one record.
func (m *MemoryStore) Delete(col catalog.Collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bucket, ok := m.cols[col]; ok {
		delete(bucket, key)
	}
	return nil
}

// Clear removes every record in one collection.
func (m *MemoryStore) Clear(col catalog.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cols, col)
	return nil
}

// ClearAll wipes the store.
func (m *MemoryStore) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cols = make(map[catalog.Collection]map[string][]byte)
	return nil
}

// ImportSnapshot stages all writes, then applies them under one lock so a
// partial catalog is never observable.
func (m *MemoryStore) ImportSnapshot(snap *catalog.Snapshot) error {
	if m.FailPut != nil {
		return storageErr("import", m.FailPut)
	}
	writes, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for col, kvs := range writes {
		bucket, ok := m.cols[col]
		if !ok {
			bucket = make(map[string][]byte)
			m.cols[col] = bucket
		}
		for key, value := range kvs {
			bucket[key] = value
		}
	}
	return nil
}
