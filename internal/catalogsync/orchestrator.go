// file: internal/catalogsync/orchestrator.go
// version: 1.2.0
// guid: 5a6b7c8d-9e0f-1a2b-3c4d-5e6f7a8b9c0d

package catalogsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opencatalog/streamvault/internal/catalog"
	"github.com/opencatalog/streamvault/internal/database"
	"github.com/opencatalog/streamvault/internal/metrics"
)

// Fetcher is the opaque provider fetch function. The provider protocol
// client lives outside this system; the orchestrator only sees the
// normalized document or an error.
type Fetcher func(ctx context.Context, key catalog.Key) (*catalog.Document, error)

// FetchError wraps a provider failure for one catalog key.
type FetchError struct {
	Key catalog.Key
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// LoadResult is the caller-visible outcome of LoadCatalog. The orchestrator
// never panics or propagates past this boundary: a hard fetch failure
// becomes either a stale fallback (Success with Fallback=true) or a plain
// {Success:false, Message}.
type LoadResult struct {
	Success  bool             `json:"success"`
	Catalog  *catalog.Catalog `json:"catalog,omitempty"`
	Cached   bool             `json:"cached"`
	Fallback bool             `json:"fallback"`
	Message  string           `json:"message,omitempty"`
	Err      error            `json:"-"`
}

// inflight is the cancellable handle for one running fetch. Waiters share
// the result through done; the fetch context is detached from any single
// caller so one caller abandoning does not starve the rest.
type inflight struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	result LoadResult
}

// Invalidator drops derived results after an import replaces a collection.
// The query evaluator implements it.
type Invalidator interface {
	InvalidateCollection(col catalog.Collection)
}

// WindowResetter drops materialized windows after a refresh. The window
// manager implements it.
type WindowResetter interface {
	ResetCatalog(key catalog.Key)
}

// Orchestrator decides cache-vs-fetch per catalog key, guarantees at most
// one concurrent fetch per key, and reconciles failures against cached
// fallbacks. It is the single serialization point for all mutating entry
// points of one catalog key.
type Orchestrator struct {
	store     database.Store
	caches    Invalidator
	windows   WindowResetter
	freshness time.Duration
	log       logrus.FieldLogger

	mu       sync.Mutex
	inflight map[string]*inflight
	failed   map[string]struct{} // volatile; cleared on restart by construction

	// OnImport, when set, observes every successful import (SSE hub).
	OnImport func(cat *catalog.Catalog)
}

// New creates an orchestrator over the given store. caches and windows may
// be nil in tests.
func New(store database.Store, caches Invalidator, windows WindowResetter, freshness time.Duration, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if freshness <= 0 {
		freshness = 10 * time.Minute
	}
	return &Orchestrator{
		store:     store,
		caches:    caches,
		windows:   windows,
		freshness: freshness,
		log:       log,
		inflight:  make(map[string]*inflight),
		failed:    make(map[string]struct{}),
	}
}

// LoadCatalog resolves one catalog key:
//  1. fresh cached catalog -> returned immediately, Cached=true, no fetch
//  2. fetch already in flight for the key -> wait on the same result
//  3. otherwise fetch, import atomically, invalidate caches and windows
//  4. on fetch failure: stale catalog if one exists (Fallback=true), else
//     {Success:false}
func (o *Orchestrator) LoadCatalog(ctx context.Context, key catalog.Key, fetch Fetcher) LoadResult {
	cached, haveCached, err := database.GetCatalog(o.store, key)
	if err != nil {
		// Storage loss is not maskable by a fetch; surface it.
		return LoadResult{Success: false, Message: err.Error(), Err: err}
	}
	if haveCached && time.Since(cached.ImportedAt) < o.freshness {
		return LoadResult{Success: true, Catalog: cached, Cached: true}
	}

	keyStr := key.String()
	o.mu.Lock()
	if fl, ok := o.inflight[keyStr]; ok {
		o.mu.Unlock()
		return o.await(ctx, fl)
	}
	if _, recentlyFailed := o.failed[keyStr]; recentlyFailed {
		o.mu.Unlock()
		return o.fallback(key, cached, haveCached,
			&FetchError{Key: key, Err: fmt.Errorf("skipped: previous fetch this session failed")})
	}
	fctx, cancel := context.WithCancel(context.Background())
	fl := &inflight{ctx: fctx, cancel: cancel, done: make(chan struct{})}
	o.inflight[keyStr] = fl
	o.mu.Unlock()

	fl.result = o.fetchAndImport(fl.ctx, key, cached, haveCached, fetch)

	o.mu.Lock()
	delete(o.inflight, keyStr)
	o.mu.Unlock()
	cancel()
	close(fl.done)

	return fl.result
}

// Cancel aborts an in-flight fetch for the key, if any. Waiters receive the
// resulting failure (or fallback) like any other fetch error.
func (o *Orchestrator) Cancel(key catalog.Key) {
	o.mu.Lock()
	fl, ok := o.inflight[key.String()]
	o.mu.Unlock()
	if ok {
		fl.cancel()
	}
}

// InFlight reports whether a fetch for the key is currently running.
func (o *Orchestrator) InFlight(key catalog.Key) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[key.String()]
	return ok
}

// ClearFailed forgets the session failure marker for one key, re-enabling
// fetch attempts before the next restart.
func (o *Orchestrator) ClearFailed(key catalog.Key) {
	o.mu.Lock()
	delete(o.failed, key.String())
	o.mu.Unlock()
}

// await blocks on a de-duplicated fetch. The caller's ctx only abandons the
// wait; the shared fetch keeps running and resolves for other waiters.
func (o *Orchestrator) await(ctx context.Context, fl *inflight) LoadResult {
	select {
	case <-fl.done:
		return fl.result
	case <-ctx.Done():
		return LoadResult{Success: false, Message: ctx.Err().Error(), Err: ctx.Err()}
	}
}

func (o *Orchestrator) fetchAndImport(ctx context.Context, key catalog.Key, cached *catalog.Catalog, haveCached bool, fetch Fetcher) LoadResult {
	keyHash := key.Hash()
	log := o.log.WithField("catalog", keyHash)

	metrics.IncFetchStarted(keyHash)
	began := time.Now()

	doc, err := fetch(ctx, key)
	if err != nil {
		metrics.IncFetchFailed(keyHash)
		o.markFailed(key)
		log.WithError(err).Warn("catalog fetch failed")
		return o.fallback(key, cached, haveCached, &FetchError{Key: key, Err: err})
	}

	snap, err := catalog.Normalize(key, doc)
	if err != nil {
		metrics.IncFetchFailed(keyHash)
		o.markFailed(key)
		return o.fallback(key, cached, haveCached, &FetchError{Key: key, Err: err})
	}

	if err := o.store.ImportSnapshot(snap); err != nil {
		// Persistence failure, not a provider failure: no fallback masking.
		log.WithError(err).Error("catalog import failed")
		return LoadResult{Success: false, Message: err.Error(), Err: err}
	}

	if o.caches != nil {
		for _, col := range catalog.ContentCollections {
			o.caches.InvalidateCollection(col)
		}
	}
	if o.windows != nil {
		o.windows.ResetCatalog(key)
	}

	metrics.IncFetchCompleted(keyHash)
	metrics.ObserveFetchDuration(keyHash, time.Since(began))
	for _, col := range catalog.ContentCollections {
		metrics.SetItems(string(col), snap.Catalog.Counts[col])
	}

	o.mu.Lock()
	delete(o.failed, key.String())
	o.mu.Unlock()

	log.WithFields(logrus.Fields{
		"items":    snap.Catalog.TotalItems(),
		"duration": time.Since(began).Round(time.Millisecond),
	}).Info("catalog imported")

	if o.OnImport != nil {
		o.OnImport(&snap.Catalog)
	}
	return LoadResult{Success: true, Catalog: &snap.Catalog, Cached: false}
}

// fallback serves a previously-imported catalog after a fetch failure, or a
// plain failure when none exists. Fallback results stay distinguishable from
// fresh and cached ones so the user-visible "possibly outdated" state works.
func (o *Orchestrator) fallback(key catalog.Key, cached *catalog.Catalog, haveCached bool, ferr *FetchError) LoadResult {
	if haveCached {
		metrics.IncFetchFallback(key.Hash())
		return LoadResult{
			Success:  true,
			Catalog:  cached,
			Fallback: true,
			Message:  ferr.Error(),
			Err:      ferr,
		}
	}
	return LoadResult{Success: false, Message: ferr.Error(), Err: ferr}
}

func (o *Orchestrator) markFailed(key catalog.Key) {
	o.mu.Lock()
	o.failed[key.String()] = struct{}{}
	o.mu.Unlock()
}
