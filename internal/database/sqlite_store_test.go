// file: internal/database/sqlite_store_test.go
// version: 2.0.0
// guid: 7c8d9e0f-1a2b-3c4d-5e6f-7a8b9c0d1e2f

package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencatalog/streamvault/internal/catalog"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteCRUD(t *testing.T) {
	s := newTestSQLite(t)

	require.NoError(t, s.Put(catalog.CollectionVOD, "abc", []byte("v1")))
	got, ok, err := s.Get(catalog.CollectionVOD, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	// Upsert on conflict.
	require.NoError(t, s.Put(catalog.CollectionVOD, "abc", []byte("v2")))
	got, _, _ = s.Get(catalog.CollectionVOD, "abc")
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, s.Delete(catalog.CollectionVOD, "abc"))
	_, ok, err = s.Get(catalog.CollectionVOD, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteKeysAndClear(t *testing.T) {
	s := newTestSQLite(t)

	require.NoError(t, s.Put(catalog.CollectionMeta, "catalog:bbb", []byte("2")))
	require.NoError(t, s.Put(catalog.CollectionMeta, "catalog:aaa", []byte("1")))
	require.NoError(t, s.Put(catalog.CollectionMeta, "setting:chunk_size", []byte("50")))

	keys, err := s.Keys(catalog.CollectionMeta, "catalog:")
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog:aaa", "catalog:bbb"}, keys)

	require.NoError(t, s.Clear(catalog.CollectionMeta))
	keys, err = s.Keys(catalog.CollectionMeta, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSQLiteImportSnapshot(t *testing.T) {
	s := newTestSQLite(t)
	snap := testSnapshot(testKey)
	require.NoError(t, s.ImportSnapshot(snap))

	items, ok, err := GetItems(s, testKey, catalog.CollectionLive)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.Items[catalog.CollectionLive], items)

	cat, ok, err := GetCatalog(s, testKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testKey, cat.Key)
}
