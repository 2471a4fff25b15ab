// file: internal/window/window.go
// version: 1.3.0
// guid: 1b2c3d4e-5f6a-7b8c-9d0e-1f2a3b4c5d6e

package window

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opencatalog/streamvault/internal/catalog"
	"github.com/opencatalog/streamvault/internal/metrics"
)

// State is the window lifecycle state.
type State string

const (
	StateEmpty   State = "empty"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Loader fetches one chunk of a category's ordered items, typically a
// SELECT with LIMIT chunkSize OFFSET start through the query evaluator.
type Loader func(ctx context.Context, offset, limit int) ([]catalog.Item, error)

// ErrInvariant marks an out-of-range index or offset that could not be
// clamped safely.
var ErrInvariant = errors.New("window invariant violation")

// Window maintains the bounded visible slice of one category's ordered item
// list and grows it incrementally in chunks. The visible span never exceeds
// the viewport size. The backing array supports sparse fill so chunks can
// merge at absolute indices in any order.
type Window struct {
	mu           sync.Mutex
	chunkSize    int
	viewportSize int
	loader       Loader

	ids  []string        // id sequence of the last Initialize, for no-op detection
	rows []*catalog.Item // sparse backing array, absolute indices

	state          State
	lastErr        error
	loadedChunks   int
	endIndex       int // highest loaded row index, -1 when empty
	visibleStart   int
	visibleEnd     int
	totalAvailable int
	hasMore        bool

	loadCount int
	totalLoad time.Duration
	avgLoad   time.Duration
}

// View is the read-only snapshot handed to the presentation layer.
type View struct {
	Items          []catalog.Item `json:"items"`
	HasMore        bool           `json:"has_more"`
	IsLoading      bool           `json:"is_loading"`
	State          State          `json:"state"`
	Error          string         `json:"error,omitempty"`
	VisibleStart   int            `json:"visible_start"`
	VisibleEnd     int            `json:"visible_end"`
	TotalAvailable int            `json:"total_available"`
	LoadedChunks   int            `json:"loaded_chunks"`
	AvgLoadMillis  int64          `json:"avg_load_ms"`
}

// New creates an empty window over the given loader.
func New(chunkSize, viewportSize int, loader Loader) *Window {
	if chunkSize <= 0 {
		chunkSize = 50
	}
	if viewportSize <= 0 {
		viewportSize = 25
	}
	return &Window{
		chunkSize:    chunkSize,
		viewportSize: viewportSize,
		loader:       loader,
		state:        StateEmpty,
		endIndex:     -1,
		visibleEnd:   -1,
	}
}

// Initialize seeds the window from a freshly queried item list. It is a
// no-op when the incoming item-id sequence equals the current one, so
// semantically-unchanged re-renders do not reset scroll state. Ids, not
// array identity, decide equality.
func (w *Window) Initialize(items []catalog.Item) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if sameSequence(w.ids, ids) {
		return
	}

	w.resetLocked()
	w.ids = ids
	w.totalAvailable = len(items)
	if len(items) == 0 {
		return
	}

	seed := min(w.chunkSize, len(items))
	w.rows = make([]*catalog.Item, seed)
	for i := 0; i < seed; i++ {
		it := items[i]
		w.rows[i] = &it
	}
	w.loadedChunks = 1
	w.endIndex = seed - 1
	w.hasMore = len(items) > w.chunkSize
	w.state = StateReady
	w.recenterOnEndLocked()
}

// LoadMore grows the window by one chunk through the loader. It is rejected
// synchronously (returns false, nil) while a prior load is pending or when
// the last row is already loaded; callers must check IsLoading before
// re-issuing. A failed load leaves the window in StateError and a later
// LoadMore retries the same chunk.
func (w *Window) LoadMore(ctx context.Context) (bool, error) {
	w.mu.Lock()
	if w.state == StateLoading {
		w.mu.Unlock()
		return false, nil
	}
	if w.totalAvailable == 0 || w.endIndex >= w.totalAvailable-1 {
		w.mu.Unlock()
		return false, nil
	}

	start := w.loadedChunks * w.chunkSize
	if start >= w.totalAvailable {
		// All chunk slots fetched; totals disagree with rows. Nothing to grow.
		w.hasMore = false
		w.mu.Unlock()
		return false, nil
	}
	requested := min(w.chunkSize, w.totalAvailable-start)
	w.state = StateLoading
	w.mu.Unlock()

	began := time.Now()
	rows, err := w.loader(ctx, start, w.chunkSize)
	elapsed := time.Since(began)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.state = StateError
		w.lastErr = err
		metrics.IncWindowLoadFailed()
		return false, fmt.Errorf("load chunk at %d: %w", start, err)
	}

	// Merge at absolute indices; sparse fill keeps earlier gaps intact.
	for i, it := range rows {
		idx := start + i
		w.growTo(idx)
		copied := it
		w.rows[idx] = &copied
	}

	if len(rows) > 0 {
		w.endIndex = start + len(rows) - 1
	}
	w.loadedChunks++
	w.recenterOnEndLocked()

	if len(rows) < requested {
		// Source returned a short chunk; trust rows over the reported total.
		w.hasMore = false
	} else {
		w.hasMore = w.loadedChunks*w.chunkSize < w.totalAvailable
	}

	w.loadCount++
	w.totalLoad += elapsed
	w.avgLoad = w.totalLoad / time.Duration(w.loadCount)
	metrics.ObserveWindowLoad(elapsed)

	w.state = StateReady
	w.lastErr = nil
	return true, nil
}

// ScrollToIndex recenters the visible slice around target using only
// already-loaded rows. Targets past the loaded range clamp to the last
// loaded row; callers wanting further rows must LoadMore first.
func (w *Window) ScrollToIndex(target int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.endIndex < 0 {
		return
	}
	if target < 0 {
		target = 0
	}
	if target > w.endIndex {
		target = w.endIndex
	}

	start := target - w.viewportSize/2
	maxStart := w.endIndex - w.viewportSize + 1
	if maxStart < 0 {
		maxStart = 0
	}
	if start > maxStart {
		start = maxStart
	}
	if start < 0 {
		start = 0
	}
	w.visibleStart = start
	w.visibleEnd = min(start+w.viewportSize-1, w.endIndex)
}

// UpdateVisible recenters the visible slice on a scroll position. It is the
// continuous-scroll companion of ScrollToIndex.
func (w *Window) UpdateVisible(position int) {
	w.ScrollToIndex(position)
}

// ClampTotal shrinks the reported total after a refresh. The end index is
// clamped and hasMore recomputed; growing the total only re-enables hasMore.
func (w *Window) ClampTotal(total int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if total < 0 {
		total = 0
	}
	w.totalAvailable = total
	if w.endIndex >= total {
		w.endIndex = total - 1
		if len(w.rows) > total {
			w.rows = w.rows[:total]
		}
		w.recenterOnEndLocked()
	}
	w.hasMore = w.endIndex < total-1 && w.loadedChunks*w.chunkSize < total
	if total == 0 {
		w.state = StateEmpty
	}
}

// Reset returns the window to Empty, discarding the slice and counters. The
// underlying store data is untouched.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
}

// IsLoading reports whether a chunk load is pending.
func (w *Window) IsLoading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateLoading
}

// Snapshot renders the current visible slice for the presentation layer.
func (w *Window) Snapshot() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	view := View{
		HasMore:        w.hasMore,
		IsLoading:      w.state == StateLoading,
		State:          w.state,
		VisibleStart:   w.visibleStart,
		VisibleEnd:     w.visibleEnd,
		TotalAvailable: w.totalAvailable,
		LoadedChunks:   w.loadedChunks,
		AvgLoadMillis:  w.avgLoad.Milliseconds(),
	}
	if w.lastErr != nil {
		view.Error = w.lastErr.Error()
	}
	if w.endIndex < 0 || w.visibleEnd < w.visibleStart {
		return view
	}
	for i := w.visibleStart; i <= w.visibleEnd && i < len(w.rows); i++ {
		if w.rows[i] != nil {
			view.Items = append(view.Items, *w.rows[i])
		}
	}
	return view
}

// EndIndex returns the highest loaded row index, -1 when empty.
func (w *Window) EndIndex() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.endIndex
}

// LoadedChunks returns the number of completed chunk loads including the seed.
func (w *Window) LoadedChunks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadedChunks
}

// --- internals (w.mu held) ---

func (w *Window) resetLocked() {
	w.ids = nil
	w.rows = nil
	w.state = StateEmpty
	w.lastErr = nil
	w.loadedChunks = 0
	w.endIndex = -1
	w.visibleStart = 0
	w.visibleEnd = -1
	w.totalAvailable = 0
	w.hasMore = false
	w.loadCount = 0
	w.totalLoad = 0
	w.avgLoad = 0
}

// recenterOnEndLocked pins the visible slice to the last viewportSize rows
// ending at endIndex, the position after a chunk load.
func (w *Window) recenterOnEndLocked() {
	if w.endIndex < 0 {
		w.visibleStart = 0
		w.visibleEnd = -1
		return
	}
	w.visibleEnd = w.endIndex
	w.visibleStart = w.endIndex - w.viewportSize + 1
	if w.visibleStart < 0 {
		w.visibleStart = 0
	}
}

func (w *Window) growTo(idx int) {
	for len(w.rows) <= idx {
		w.rows = append(w.rows, nil)
	}
}

func sameSequence(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return false // an empty window always accepts a seed
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
