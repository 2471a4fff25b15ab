// file: internal/database/pebble_store.go
// version: 2.0.0
// guid: 0c1d2e3f-4a5b-6c7d-8e9f-0a1b2c3d4e5f

package database

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble/v2"
	"github.com/opencatalog/streamvault/internal/catalog"
)

// PebbleStore implements the Store interface using PebbleDB (LSM key-value
// store). The flat keyspace is "<collection>:<key>"; see store.go for the
// key schema.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) a PebbleDB store at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open PebbleDB: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the database.
func (p *PebbleStore) Close() error {
	return p.db.Close()
}

func pebbleKey(col catalog.Collection, key string) []byte {
	return []byte(string(col) + ":" + key)
}

// Put overwrites one record.
func (p *PebbleStore) Put(col catalog.Collection, key string, value []byte) error {
	if err := p.db.Set(pebbleKey(col, key), value, pebble.Sync); err != nil {
		return storageErr("put", err)
	}
	return nil
}

// Get reads one record. Missing keys return (nil, false, nil).
func (p *PebbleStore) Get(col catalog.Collection, key string) ([]byte, bool, error) {
	value, closer, err := p.db.Get(pebbleKey(col, key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("get", err)
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Delete removes one record. Deleting a missing key is not an error.
func (p *PebbleStore) Delete(col catalog.Collection, key string) error {
	if err := p.db.Delete(pebbleKey(col, key), pebble.Sync); err != nil {
		return storageErr("delete", err)
	}
	return nil
}

// Keys lists the keys in one collection with the given prefix, sorted.
func (p *PebbleStore) Keys(col catalog.Collection, prefix string) ([]string, error) {
	lower := []byte(string(col) + ":" + prefix)
	upper := []byte(string(col) + ";")
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, storageErr("keys", err)
	}
	defer iter.Close()

	strip := len(col) + 1
	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		k := string(iter.Key())[strip:]
		if !strings.HasPrefix(k, prefix) {
			break
		}
		keys = append(keys, k)
	}
	if err := iter.Error(); err != nil {
		return nil, storageErr("keys", err)
	}
	return keys, nil
}

// Clear removes every record in one collection via a range delete over the
// collection's key prefix.
func (p *PebbleStore) Clear(col catalog.Collection) error {
	start := []byte(string(col) + ":")
	end := []byte(string(col) + ";") // ';' sorts immediately after ':'
	if err := p.db.DeleteRange(start, end, pebble.Sync); err != nil {
		return storageErr("clear", err)
	}
	return nil
}

// ClearAll wipes every collection.
func (p *PebbleStore) ClearAll() error {
	cols := append([]catalog.Collection{}, catalog.ContentCollections...)
	cols = append(cols, catalog.CollectionMeta)
	for _, col := range cols {
		if err := p.Clear(col); err != nil {
			return err
		}
	}
	return nil
}

// ImportSnapshot applies the whole import as a single synced batch, so a
// partial catalog is never queryable.
func (p *PebbleStore) ImportSnapshot(snap *catalog.Snapshot) error {
	writes, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	for col, kvs := range writes {
		for key, value := range kvs {
			if err := batch.Set(pebbleKey(col, key), value, nil); err != nil {
				return storageErr("import", err)
			}
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return storageErr("import", err)
	}
	return nil
}
