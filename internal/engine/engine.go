// file: internal/engine/engine.go
// version: 1.2.0
// guid: 2c3d4e5f-6a7b-8c9d-0e1f-2a3b4c5d6e7f

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opencatalog/streamvault/internal/cache"
	"github.com/opencatalog/streamvault/internal/catalog"
	"github.com/opencatalog/streamvault/internal/catalogsync"
	"github.com/opencatalog/streamvault/internal/database"
	"github.com/opencatalog/streamvault/internal/matcher"
	"github.com/opencatalog/streamvault/internal/metrics"
	"github.com/opencatalog/streamvault/internal/query"
	"github.com/opencatalog/streamvault/internal/realtime"
	"github.com/opencatalog/streamvault/internal/window"
)

// ErrNoCatalog is returned when an operation targets a catalog key that was
// never imported.
var ErrNoCatalog = errors.New("no catalog imported")

// Options carries the tunables the engine wires into its parts.
type Options struct {
	ChunkSize       int
	ViewportSize    int
	QueryTTL        time.Duration
	AggregateTTL    time.Duration
	CacheMaxEntries int
	Freshness       time.Duration
	SearchLimit     int
	Logger          logrus.FieldLogger
	Events          *realtime.EventHub // optional
}

func (o *Options) withDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 50
	}
	if o.ViewportSize <= 0 {
		o.ViewportSize = 25
	}
	if o.QueryTTL <= 0 {
		o.QueryTTL = 5 * time.Minute
	}
	if o.AggregateTTL <= 0 {
		o.AggregateTTL = 2 * time.Minute
	}
	if o.CacheMaxEntries <= 0 {
		o.CacheMaxEntries = 256
	}
	if o.Freshness <= 0 {
		o.Freshness = 10 * time.Minute
	}
	if o.SearchLimit <= 0 || o.SearchLimit > 100 {
		o.SearchLimit = 100
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// Engine is the data engine's facade toward the presentation layer. It is
// constructed once at process start with an injected store and torn down at
// shutdown; there is no ambient singleton.
type Engine struct {
	store        database.Store
	results      *cache.Cache[*query.Result]
	evaluator    *query.Evaluator
	windows      *window.Manager
	orchestrator *catalogsync.Orchestrator
	events       *realtime.EventHub
	searchLimit  int
	log          logrus.FieldLogger
}

// New wires the evaluator, result cache, window manager, and orchestrator
// around one store.
func New(store database.Store, opts Options) *Engine {
	opts.withDefaults()

	results := cache.New[*query.Result](opts.QueryTTL, opts.CacheMaxEntries)
	results.OnHit = metrics.IncCacheHit
	results.OnMiss = metrics.IncCacheMiss
	results.OnEvict = metrics.IncCacheEviction

	evaluator := query.NewEvaluator(store, results, opts.QueryTTL, opts.AggregateTTL, opts.Logger)
	windows := window.NewManager(opts.ChunkSize, opts.ViewportSize, opts.Logger)
	orchestrator := catalogsync.New(store, evaluator, windows, opts.Freshness, opts.Logger)

	e := &Engine{
		store:        store,
		results:      results,
		evaluator:    evaluator,
		windows:      windows,
		orchestrator: orchestrator,
		events:       opts.Events,
		searchLimit:  opts.SearchLimit,
		log:          opts.Logger,
	}
	orchestrator.OnImport = e.onImport
	return e
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store exposes the injected store for diagnostics and tooling.
func (e *Engine) Store() database.Store { return e.store }

// Evaluator exposes the query evaluator for ad-hoc tooling (CLI query).
func (e *Engine) Evaluator() *query.Evaluator { return e.evaluator }

// ResultCache exposes the result cache for diagnostics.
func (e *Engine) ResultCache() *cache.Cache[*query.Result] { return e.results }

// LoadCatalog resolves cache-vs-fetch for one catalog key (see catalogsync).
func (e *Engine) LoadCatalog(ctx context.Context, key catalog.Key, fetch catalogsync.Fetcher) catalogsync.LoadResult {
	res := e.orchestrator.LoadCatalog(ctx, key, fetch)
	if res.Fallback && e.events != nil {
		e.events.SendCatalogFallback(key.Hash(), res.Message)
	}
	return res
}

// CancelFetch aborts an in-flight fetch for the key, if any.
func (e *Engine) CancelFetch(key catalog.Key) {
	e.orchestrator.Cancel(key)
}

// ImportDocument imports a catalog document directly, bypassing freshness
// checks. The CLI import command and the drop-directory watcher use it.
func (e *Engine) ImportDocument(key catalog.Key, doc *catalog.Document) (*catalog.Catalog, error) {
	snap, err := catalog.Normalize(key, doc)
	if err != nil {
		return nil, err
	}
	if err := e.store.ImportSnapshot(snap); err != nil {
		return nil, err
	}
	for _, col := range catalog.ContentCollections {
		e.evaluator.InvalidateCollection(col)
	}
	e.windows.ResetCatalog(key)
	e.onImport(&snap.Catalog)
	return &snap.Catalog, nil
}

// ExportDocument rebuilds a round-trippable document from an imported
// catalog, for JSON export and the drop-directory flow.
func (e *Engine) ExportDocument(key catalog.Key) (*catalog.Document, error) {
	cat, ok, err := database.GetCatalog(e.store, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("catalog %s: %w", key, ErrNoCatalog)
	}
	items := make(map[catalog.Collection][]catalog.Item, len(catalog.ContentCollections))
	for _, col := range catalog.ContentCollections {
		rows, _, err := database.GetItems(e.store, key, col)
		if err != nil {
			return nil, err
		}
		items[col] = rows
	}
	return catalog.Export(cat, items), nil
}

// GetCategories returns the category index of one collection, or an error
// when the catalog was never imported ("no catalog" state).
func (e *Engine) GetCategories(ctx context.Context, key catalog.Key, col catalog.Collection) ([]catalog.Category, error) {
	if !col.IsContent() {
		return nil, &query.InvalidQueryError{Reason: fmt.Sprintf("unknown collection %q", col)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cat, ok, err := database.GetCatalog(e.store, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("catalog %s: %w", key, ErrNoCatalog)
	}
	return cat.CategoriesFor(col), nil
}

// GetWindow returns the current visible slice of one category, creating and
// seeding the window on first display.
func (e *Engine) GetWindow(ctx context.Context, key catalog.Key, col catalog.Collection, categoryID string) (window.View, error) {
	w, err := e.windowFor(ctx, key, col, categoryID)
	if err != nil {
		return window.View{}, err
	}
	return w.Snapshot(), nil
}

// LoadMore grows one category's window by a chunk. Rejected while a prior
// load is pending; callers re-read GetWindow afterwards.
func (e *Engine) LoadMore(ctx context.Context, key catalog.Key, col catalog.Collection, categoryID string) error {
	w, err := e.windowFor(ctx, key, col, categoryID)
	if err != nil {
		return err
	}
	grew, err := w.LoadMore(ctx)
	if err != nil {
		return err
	}
	if grew && e.events != nil {
		e.events.SendWindowLoaded(key.Hash(), string(col), categoryID, w.LoadedChunks())
	}
	return nil
}

// ScrollTo recenters one category's visible slice on an absolute row index.
func (e *Engine) ScrollTo(ctx context.Context, key catalog.Key, col catalog.Collection, categoryID string, index int) error {
	w, err := e.windowFor(ctx, key, col, categoryID)
	if err != nil {
		return err
	}
	w.ScrollToIndex(index)
	return nil
}

// CloseCategory drops a category's window (category unmount).
func (e *Engine) CloseCategory(key catalog.Key, col catalog.Collection, categoryID string) {
	e.windows.Remove(key, col, categoryID)
}

// SearchOptions narrows a search.
type SearchOptions struct {
	Collections []catalog.Collection // empty means all content collections
	Limit       int                  // capped at the engine's search limit
}

// Search runs a like-predicate over item and category names across the
// requested collections and ranks the union fuzzily. Results are capped
// at 100.
func (e *Engine) Search(ctx context.Context, key catalog.Key, text string, opts SearchOptions) ([]catalog.Item, error) {
	cols := opts.Collections
	if len(cols) == 0 {
		cols = catalog.ContentCollections
	}
	limit := opts.Limit
	if limit <= 0 || limit > e.searchLimit {
		limit = e.searchLimit
	}

	cat, _, err := database.GetCatalog(e.store, key)
	if err != nil {
		return nil, err
	}
	categoryNames := make(map[string]string)
	if cat != nil {
		for _, col := range cols {
			for _, c := range cat.CategoriesFor(col) {
				categoryNames[c.ID] = c.Name
			}
		}
	}

	var pool []catalog.Item
	seen := make(map[string]bool)
	add := func(items []catalog.Item) {
		for _, it := range items {
			id := string(it.ContentType) + ":" + it.ID
			if seen[id] {
				continue
			}
			seen[id] = true
			pool = append(pool, it)
		}
	}

	lowered := strings.ToLower(text)
	for _, col := range cols {
		res, err := e.evaluator.Execute(ctx, key, query.Query{
			Operation:  query.OpSelect,
			Collection: col,
			Where:      query.Predicate{"name": {query.OpLike: text}},
		})
		if err != nil {
			return nil, err
		}
		add(res.Items)

		// Items whose own name misses can still match through their
		// category's name.
		var hitCategories []string
		if cat != nil {
			for _, c := range cat.CategoriesFor(col) {
				if strings.Contains(strings.ToLower(c.Name), lowered) {
					hitCategories = append(hitCategories, c.ID)
				}
			}
		}
		if len(hitCategories) > 0 {
			res, err := e.evaluator.Execute(ctx, key, query.Query{
				Operation:  query.OpSelect,
				Collection: col,
				Where:      query.Predicate{"category_id": {query.OpIn: hitCategories}},
			})
			if err != nil {
				return nil, err
			}
			add(res.Items)
		}
	}

	ranked := matcher.RankItems(text, pool, categoryNames, limit)
	items := make([]catalog.Item, len(ranked))
	for i, m := range ranked {
		items[i] = m.Item
	}
	return items, nil
}

// SetDefaultCatalog records the catalog the presentation layer opens first.
func (e *Engine) SetDefaultCatalog(key catalog.Key) error {
	return database.SetDefaultCatalog(e.store, key)
}

// DefaultCatalog returns the recorded default catalog key, if any.
func (e *Engine) DefaultCatalog() (catalog.Key, bool, error) {
	return database.GetDefaultCatalog(e.store)
}

// Catalogs lists every imported catalog summary.
func (e *Engine) Catalogs() ([]catalog.Catalog, error) {
	return database.ListCatalogs(e.store)
}

// windowFor returns the category's window, seeding it from a full category
// SELECT on first display or when empty.
func (e *Engine) windowFor(ctx context.Context, key catalog.Key, col catalog.Collection, categoryID string) (*window.Window, error) {
	if !col.IsContent() {
		return nil, &query.InvalidQueryError{Reason: fmt.Sprintf("unknown collection %q", col)}
	}

	loader := func(ctx context.Context, offset, limit int) ([]catalog.Item, error) {
		res, err := e.evaluator.Execute(ctx, key, query.Query{
			Operation:  query.OpSelect,
			Collection: col,
			Where:      query.Predicate{"category_id": {query.OpEq: categoryID}},
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			return nil, err
		}
		return res.Items, nil
	}

	w := e.windows.GetOrCreate(key, col, categoryID, loader)
	view := w.Snapshot()
	if view.State == window.StateEmpty {
		res, err := e.evaluator.Execute(ctx, key, query.Query{
			Operation:  query.OpSelect,
			Collection: col,
			Where:      query.Predicate{"category_id": {query.OpEq: categoryID}},
		})
		if err != nil {
			return nil, err
		}
		w.Initialize(res.Items)
	}
	return w, nil
}

func (e *Engine) onImport(cat *catalog.Catalog) {
	if catalogs, err := database.ListCatalogs(e.store); err == nil {
		metrics.SetCatalogs(len(catalogs))
	}
	if e.events != nil {
		e.events.SendCatalogImported(cat.Key.Hash(), cat.TotalItems())
	}
}
