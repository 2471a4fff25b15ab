// file: internal/catalogsync/orchestrator_test.go
// version: 1.2.0
// guid: 6b7c8d9e-0f1a-2b3c-4d5e-6f7a8b9c0d1f

package catalogsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencatalog/streamvault/internal/catalog"
	"github.com/opencatalog/streamvault/internal/database"
)

var testKey = catalog.Key{Server: "http://example.com", Username: "alice"}

func testDocument() *catalog.Document {
	return &catalog.Document{
		Categories: catalog.DocumentSections[catalog.RawCategory]{
			Live: []catalog.RawCategory{{CategoryID: "1", CategoryName: "News"}},
		},
		Streams: catalog.DocumentSections[catalog.RawItem]{
			Live: []catalog.RawItem{
				{"stream_id": "100", "name": "News One", "category_id": "1"},
			},
		},
	}
}

func staticFetcher(calls *int32) Fetcher {
	return func(ctx context.Context, key catalog.Key) (*catalog.Document, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		return testDocument(), nil
	}
}

func failingFetcher(err error) Fetcher {
	return func(ctx context.Context, key catalog.Key) (*catalog.Document, error) {
		return nil, err
	}
}

// recordingInvalidator records collection invalidations.
type recordingInvalidator struct {
	mu   sync.Mutex
	cols []catalog.Collection
}

func (r *recordingInvalidator) InvalidateCollection(col catalog.Collection) {
	r.mu.Lock()
	r.cols = append(r.cols, col)
	r.mu.Unlock()
}

// recordingResetter records window resets.
type recordingResetter struct {
	mu   sync.Mutex
	keys []catalog.Key
}

func (r *recordingResetter) ResetCatalog(key catalog.Key) {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
}

func TestLoadCatalogFetchesAndImports(t *testing.T) {
	store := database.NewMemoryStore()
	caches := &recordingInvalidator{}
	windows := &recordingResetter{}
	o := New(store, caches, windows, 10*time.Minute, nil)

	var imported *catalog.Catalog
	o.OnImport = func(cat *catalog.Catalog) { imported = cat }

	var calls int32
	res := o.LoadCatalog(context.Background(), testKey, staticFetcher(&calls))

	require.True(t, res.Success)
	assert.False(t, res.Cached)
	assert.False(t, res.Fallback)
	require.NotNil(t, res.Catalog)
	assert.Equal(t, 1, res.Catalog.Counts[catalog.CollectionLive])
	assert.EqualValues(t, 1, calls)

	// The import is durable and observable.
	cat, ok, err := database.GetCatalog(store, testKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testKey, cat.Key)
	require.NotNil(t, imported)

	// Every content collection's cached results were dropped and the
	// catalog's windows reset.
	assert.ElementsMatch(t, catalog.ContentCollections, caches.cols)
	assert.Equal(t, []catalog.Key{testKey}, windows.keys)
}

func TestLoadCatalogServesFreshCacheWithoutFetch(t *testing.T) {
	store := database.NewMemoryStore()
	o := New(store, nil, nil, 10*time.Minute, nil)

	var calls int32
	first := o.LoadCatalog(context.Background(), testKey, staticFetcher(&calls))
	require.True(t, first.Success)

	second := o.LoadCatalog(context.Background(), testKey, staticFetcher(&calls))
	require.True(t, second.Success)
	assert.True(t, second.Cached)
	assert.EqualValues(t, 1, calls, "fresh catalog must not trigger a fetch")
}

func TestLoadCatalogRefetchesWhenStale(t *testing.T) {
	store := database.NewMemoryStore()
	// Freshness of a few milliseconds so the first import goes stale fast.
	o := New(store, nil, nil, 5*time.Millisecond, nil)

	var calls int32
	require.True(t, o.LoadCatalog(context.Background(), testKey, staticFetcher(&calls)).Success)
	time.Sleep(15 * time.Millisecond)

	res := o.LoadCatalog(context.Background(), testKey, staticFetcher(&calls))
	require.True(t, res.Success)
	assert.False(t, res.Cached)
	assert.EqualValues(t, 2, calls)
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	store := database.NewMemoryStore()
	o := New(store, nil, nil, 10*time.Minute, nil)

	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, key catalog.Key) (*catalog.Document, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return testDocument(), nil
	}

	const waiters = 8
	results := make(chan LoadResult, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			results <- o.LoadCatalog(context.Background(), testKey, fetch)
		}()
	}

	// Wait until the single fetch is actually running, then release it.
	require.Eventually(t, func() bool { return o.InFlight(testKey) },
		time.Second, time.Millisecond)
	close(release)

	for i := 0; i < waiters; i++ {
		res := <-results
		require.True(t, res.Success)
		require.NotNil(t, res.Catalog)
	}
	assert.EqualValues(t, 1, calls, "concurrent loads must share one fetch")
	assert.False(t, o.InFlight(testKey))
}

func TestFetchFailureFallsBackToStale(t *testing.T) {
	store := database.NewMemoryStore()
	o := New(store, nil, nil, 5*time.Millisecond, nil)

	require.True(t, o.LoadCatalog(context.Background(), testKey, staticFetcher(nil)).Success)
	time.Sleep(15 * time.Millisecond)

	res := o.LoadCatalog(context.Background(), testKey, failingFetcher(errors.New("provider down")))
	require.True(t, res.Success, "stale catalog must be served on fetch failure")
	assert.True(t, res.Fallback)
	require.NotNil(t, res.Catalog)
	assert.Contains(t, res.Message, "provider down")

	var ferr *FetchError
	require.True(t, errors.As(res.Err, &ferr))
	assert.Equal(t, testKey, ferr.Key)
}

func TestFetchFailureWithoutCacheFails(t *testing.T) {
	store := database.NewMemoryStore()
	o := New(store, nil, nil, 10*time.Minute, nil)

	res := o.LoadCatalog(context.Background(), testKey, failingFetcher(errors.New("provider down")))
	assert.False(t, res.Success)
	assert.Nil(t, res.Catalog)
	assert.Contains(t, res.Message, "provider down")
}

func TestFailedKeySkippedForSession(t *testing.T) {
	store := database.NewMemoryStore()
	o := New(store, nil, nil, 10*time.Minute, nil)

	var calls int32
	countingFail := func(ctx context.Context, key catalog.Key) (*catalog.Document, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("provider down")
	}

	res := o.LoadCatalog(context.Background(), testKey, countingFail)
	require.False(t, res.Success)
	assert.EqualValues(t, 1, calls)

	// Same session, same key: no second attempt.
	res = o.LoadCatalog(context.Background(), testKey, countingFail)
	require.False(t, res.Success)
	assert.Contains(t, res.Message, "previous fetch this session failed")
	assert.EqualValues(t, 1, calls)

	// Clearing the marker re-enables attempts.
	o.ClearFailed(testKey)
	res = o.LoadCatalog(context.Background(), testKey, staticFetcher(&calls))
	require.True(t, res.Success)
}

func TestSuccessfulFetchClearsFailureMarker(t *testing.T) {
	store := database.NewMemoryStore()
	o := New(store, nil, nil, 5*time.Millisecond, nil)

	require.False(t, o.LoadCatalog(context.Background(), testKey,
		failingFetcher(errors.New("down"))).Success)
	o.ClearFailed(testKey)

	require.True(t, o.LoadCatalog(context.Background(), testKey, staticFetcher(nil)).Success)
	time.Sleep(15 * time.Millisecond)

	// The success wiped the marker: a later attempt fetches instead of
	// skipping.
	var calls int32
	res := o.LoadCatalog(context.Background(), testKey, staticFetcher(&calls))
	require.True(t, res.Success)
	assert.EqualValues(t, 1, calls)
}

func TestStorageFailureIsNotMasked(t *testing.T) {
	store := database.NewMemoryStore()
	o := New(store, nil, nil, 5*time.Millisecond, nil)

	// Seed a stale catalog, then make persistence fail.
	require.True(t, o.LoadCatalog(context.Background(), testKey, staticFetcher(nil)).Success)
	time.Sleep(15 * time.Millisecond)
	store.FailPut = errors.New("disk full")

	res := o.LoadCatalog(context.Background(), testKey, staticFetcher(nil))
	assert.False(t, res.Success, "storage loss must not be masked by the stale fallback")
	assert.False(t, res.Fallback)

	var se *database.StorageError
	require.True(t, errors.As(res.Err, &se))
}

func TestCancelAbortsInFlightFetch(t *testing.T) {
	store := database.NewMemoryStore()
	o := New(store, nil, nil, 10*time.Minute, nil)

	fetch := func(ctx context.Context, key catalog.Key) (*catalog.Document, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	results := make(chan LoadResult, 1)
	go func() { results <- o.LoadCatalog(context.Background(), testKey, fetch) }()

	require.Eventually(t, func() bool { return o.InFlight(testKey) },
		time.Second, time.Millisecond)
	o.Cancel(testKey)

	res := <-results
	assert.False(t, res.Success)
	assert.False(t, o.InFlight(testKey))

	// Cancelling with nothing in flight is a no-op.
	o.Cancel(testKey)
}

func TestAwaitAbandonsOnCallerContext(t *testing.T) {
	store := database.NewMemoryStore()
	o := New(store, nil, nil, 10*time.Minute, nil)

	release := make(chan struct{})
	fetch := func(ctx context.Context, key catalog.Key) (*catalog.Document, error) {
		<-release
		return testDocument(), nil
	}

	first := make(chan LoadResult, 1)
	go func() { first <- o.LoadCatalog(context.Background(), testKey, fetch) }()
	require.Eventually(t, func() bool { return o.InFlight(testKey) },
		time.Second, time.Millisecond)

	// A waiter with a cancelled context abandons without killing the fetch.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := o.LoadCatalog(ctx, testKey, fetch)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.Canceled)

	close(release)
	assert.True(t, (<-first).Success, "abandoned waiter must not cancel the shared fetch")
}

func TestNormalizeFailureFallsBack(t *testing.T) {
	store := database.NewMemoryStore()
	o := New(store, nil, nil, 10*time.Minute, nil)

	// A nil document fails normalization.
	nilDoc := func(ctx context.Context, key catalog.Key) (*catalog.Document, error) {
		return nil, nil
	}
	res := o.LoadCatalog(context.Background(), testKey, nilDoc)
	assert.False(t, res.Success)
	var ferr *FetchError
	require.True(t, errors.As(res.Err, &ferr))
}
