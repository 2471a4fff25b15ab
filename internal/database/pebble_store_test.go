// file: internal/database/pebble_store_test.go
// version: 2.0.0
// guid: 3a4b5c6d-7e8f-9a0b-1c2d-3e4f5a6b7c8d

package database

import (
	"os"
	"testing"

	ulid "github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencatalog/streamvault/internal/catalog"
)

func newTestPebble(t *testing.T) *PebbleStore {
	t.Helper()
	dir := "/tmp/test_pebble_" + ulid.Make().String()
	s, err := NewPebbleStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
		os.RemoveAll(dir)
	})
	return s
}

func TestPebbleCRUD(t *testing.T) {
	s := newTestPebble(t)

	_, ok, err := s.Get(catalog.CollectionLive, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(catalog.CollectionLive, "abc", []byte("v1")))
	got, ok, err := s.Get(catalog.CollectionLive, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, s.Put(catalog.CollectionLive, "abc", []byte("v2")))
	got, _, _ = s.Get(catalog.CollectionLive, "abc")
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, s.Delete(catalog.CollectionLive, "abc"))
	_, ok, err = s.Get(catalog.CollectionLive, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPebbleCollectionIsolation(t *testing.T) {
	s := newTestPebble(t)

	// Same record key in two collections must not collide.
	require.NoError(t, s.Put(catalog.CollectionLive, "abc", []byte("live")))
	require.NoError(t, s.Put(catalog.CollectionVOD, "abc", []byte("vod")))

	got, _, _ := s.Get(catalog.CollectionLive, "abc")
	assert.Equal(t, []byte("live"), got)
	got, _, _ = s.Get(catalog.CollectionVOD, "abc")
	assert.Equal(t, []byte("vod"), got)
}

func TestPebbleKeys(t *testing.T) {
	s := newTestPebble(t)

	require.NoError(t, s.Put(catalog.CollectionMeta, "catalog:bbb", []byte("2")))
	require.NoError(t, s.Put(catalog.CollectionMeta, "catalog:aaa", []byte("1")))
	require.NoError(t, s.Put(catalog.CollectionMeta, "default_catalog", []byte("x")))
	require.NoError(t, s.Put(catalog.CollectionLive, "catalog:ccc", []byte("other col")))

	keys, err := s.Keys(catalog.CollectionMeta, "catalog:")
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog:aaa", "catalog:bbb"}, keys)

	all, err := s.Keys(catalog.CollectionMeta, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog:aaa", "catalog:bbb", "default_catalog"}, all)
}

func TestPebbleClear(t *testing.T) {
	s := newTestPebble(t)

	require.NoError(t, s.Put(catalog.CollectionLive, "a", []byte("1")))
	require.NoError(t, s.Put(catalog.CollectionLive, "b", []byte("2")))
	require.NoError(t, s.Put(catalog.CollectionMeta, "a", []byte("3")))

	require.NoError(t, s.Clear(catalog.CollectionLive))
	keys, err := s.Keys(catalog.CollectionLive, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, ok, _ := s.Get(catalog.CollectionMeta, "a")
	assert.True(t, ok, "range delete must stay inside its collection")

	require.NoError(t, s.ClearAll())
	_, ok, _ = s.Get(catalog.CollectionMeta, "a")
	assert.False(t, ok)
}

func TestPebbleImportSnapshot(t *testing.T) {
	s := newTestPebble(t)
	snap := testSnapshot(testKey)
	require.NoError(t, s.ImportSnapshot(snap))

	items, ok, err := GetItems(s, testKey, catalog.CollectionLive)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.Items[catalog.CollectionLive], items)

	cat, ok, err := GetCatalog(s, testKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, cat.Counts[catalog.CollectionLive])
}

func TestPebblePersistsAcrossReopen(t *testing.T) {
	dir := "/tmp/test_pebble_" + ulid.Make().String()
	defer os.RemoveAll(dir)

	s, err := NewPebbleStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(catalog.CollectionMeta, "default_catalog", []byte(testKey.String())))
	require.NoError(t, s.Close())

	s, err = NewPebbleStore(dir)
	require.NoError(t, err)
	defer s.Close()

	key, ok, err := GetDefaultCatalog(s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testKey, key)
}
