// file: internal/database/store.go
// version: 2.1.0
// guid: 8a9b0c1d-2e3f-4a5b-6c7d-8e9f0a1b2c3d

package database

import (
	"encoding/json"
	"fmt"

	"github.com/opencatalog/streamvault/internal/catalog"
)

// Store defines the interface for catalog persistence.
// This abstraction allows us to support both PebbleDB (default) and SQLite3
// (opt-in), plus an in-memory store for tests and memory-only mode.
//
// Values are opaque JSON blobs keyed by (collection, key). Writes overwrite,
// never merge; result-cache invalidation is the caller's responsibility. The
// store performs no internal retry: persistence failures surface as
// *StorageError.
//
// The store is single-writer-per-key by convention of the sync orchestrator
// and provides no cross-call locking beyond what the backend needs for its
// own integrity.
type Store interface {
	// Lifecycle
	Close() error

	// Raw key/value access within one collection.
	Put(col catalog.Collection, key string, value []byte) error
	Get(col catalog.Collection, key string) ([]byte, bool, error)
	Delete(col catalog.Collection, key string) error

	// Keys lists the keys in one collection with the given prefix, sorted.
	Keys(col catalog.Collection, prefix string) ([]string, error)

	// Clear removes every record in one collection; ClearAll wipes the store.
	Clear(col catalog.Collection) error
	ClearAll() error

	// ImportSnapshot persists a normalized catalog snapshot so that either
	// the whole import becomes queryable or none of it does.
	ImportSnapshot(snap *catalog.Snapshot) error
}

// StorageError wraps a persistence failure (quota, corruption, backend loss).
// It is fatal for the operation that hit it; callers must not retry through
// the store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Key schema (within the flat backend keyspace, "<collection>:<key>"):
// - live:<catalogHash>        -> ordered []catalog.Item JSON (full array)
// - vod:<catalogHash>         -> ordered []catalog.Item JSON (full array)
// - series:<catalogHash>      -> ordered []catalog.Item JSON (full array)
// - meta:catalog:<catalogHash> -> catalog.Catalog JSON (categories + counts)
// - meta:default_catalog      -> catalogHash of the default catalog
const (
	metaCatalogPrefix = "catalog:"
	metaDefaultKey    = "default_catalog"
)

// Open constructs a store backend. PebbleDB is the default; SQLite must be
// explicitly enabled; an empty path yields a memory-only store.
func Open(dbType, path string, enableSQLite bool) (Store, error) {
	if path == "" {
		return NewMemoryStore(), nil
	}
	switch dbType {
	case "sqlite", "sqlite3":
		if !enableSQLite {
			return nil, fmt.Errorf("SQLite3 is not enabled. To use SQLite3, you must explicitly enable it with --enable-sqlite3-i-know-the-risks or set 'enable_sqlite3_i_know_the_risks: true' in your config file. PebbleDB is the recommended database for production use")
		}
		store, err := NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		return store, nil
	case "pebble", "":
		store, err := NewPebbleStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PebbleDB store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: pebble, sqlite)", dbType)
	}
}

// Typed helpers over the raw byte interface. All values are JSON.

// GetItems loads the full ordered item array of one catalog collection.
func GetItems(s Store, key catalog.Key, col catalog.Collection) ([]catalog.Item, bool, error) {
	data, ok, err := s.Get(col, key.Hash())
	if err != nil || !ok {
		return nil, false, err
	}
	var items []catalog.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, storageErr("decode items", err)
	}
	return items, true, nil
}

// PutItems overwrites the full ordered item array of one catalog collection.
func PutItems(s Store, key catalog.Key, col catalog.Collection, items []catalog.Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return storageErr("encode items", err)
	}
	return s.Put(col, key.Hash(), data)
}

// GetCatalog loads the catalog summary record (categories, counts, import time).
func GetCatalog(s Store, key catalog.Key) (*catalog.Catalog, bool, error) {
	data, ok, err := s.Get(catalog.CollectionMeta, metaCatalogPrefix+key.Hash())
	if err != nil || !ok {
		return nil, false, err
	}
	var cat catalog.Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, false, storageErr("decode catalog", err)
	}
	return &cat, true, nil
}

// SetDefaultCatalog records which catalog the presentation layer opens first.
func SetDefaultCatalog(s Store, key catalog.Key) error {
	return s.Put(catalog.CollectionMeta, metaDefaultKey, []byte(key.String()))
}

// GetDefaultCatalog returns the default catalog key, if one was recorded.
func GetDefaultCatalog(s Store) (catalog.Key, bool, error) {
	data, ok, err := s.Get(catalog.CollectionMeta, metaDefaultKey)
	if err != nil || !ok {
		return catalog.Key{}, false, err
	}
	key, err := catalog.ParseKey(string(data))
	if err != nil {
		return catalog.Key{}, false, storageErr("decode default catalog", err)
	}
	return key, true, nil
}

// ListCatalogs scans the meta collection for every imported catalog summary.
func ListCatalogs(s Store) ([]catalog.Catalog, error) {
	keys, err := s.Keys(catalog.CollectionMeta, metaCatalogPrefix)
	if err != nil {
		return nil, err
	}
	catalogs := make([]catalog.Catalog, 0, len(keys))
	for _, k := range keys {
		data, ok, err := s.Get(catalog.CollectionMeta, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var cat catalog.Catalog
		if err := json.Unmarshal(data, &cat); err != nil {
			return nil, storageErr("decode catalog", err)
		}
		catalogs = append(catalogs, cat)
	}
	return catalogs, nil
}

// DeleteCatalog removes one catalog's items and summary record. Best-effort
// across collections; the first failure aborts.
func DeleteCatalog(s Store, key catalog.Key) error {
	hash := key.Hash()
	for _, col := range catalog.ContentCollections {
		if err := s.Delete(col, hash); err != nil {
			return err
		}
	}
	return s.Delete(catalog.CollectionMeta, metaCatalogPrefix+hash)
}

// encodeSnapshot renders the writes an import must apply, shared by all
// backends so their atomicity mechanics stay the only difference.
func encodeSnapshot(snap *catalog.Snapshot) (map[catalog.Collection]map[string][]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	hash := snap.Catalog.Key.Hash()
	writes := make(map[catalog.Collection]map[string][]byte, len(catalog.ContentCollections)+1)
	for _, col := range catalog.ContentCollections {
		data, err := json.Marshal(snap.Items[col])
		if err != nil {
			return nil, storageErr("encode items", err)
		}
		writes[col] = map[string][]byte{hash: data}
	}
	catData, err := json.Marshal(&snap.Catalog)
	if err != nil {
		return nil, storageErr("encode catalog", err)
	}
	writes[catalog.CollectionMeta] = map[string][]byte{metaCatalogPrefix + hash: catData}
	return writes, nil
}
