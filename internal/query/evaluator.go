// file: internal/query/evaluator.go
// version: 1.2.0
// guid: 6f7a8b9c-0d1e-2f3a-4b5c-6d7e8f9a0b1c

package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/opencatalog/streamvault/internal/cache"
	"github.com/opencatalog/streamvault/internal/catalog"
	"github.com/opencatalog/streamvault/internal/database"
)

// Evaluator executes queries against one catalog's collections. Reads are
// memoized in the result cache; every successful write invalidates the
// affected collection's cache prefix and writes the full array back.
//
// Evaluation is O(n) per call over the collection array. The window manager
// bounds call frequency, so no secondary index is kept.
type Evaluator struct {
	store        database.Store
	results      *cache.Cache[*Result]
	queryTTL     time.Duration
	aggregateTTL time.Duration
	log          logrus.FieldLogger
}

// NewEvaluator wires an evaluator to its store and result cache.
func NewEvaluator(store database.Store, results *cache.Cache[*Result], queryTTL, aggregateTTL time.Duration, log logrus.FieldLogger) *Evaluator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Evaluator{
		store:        store,
		results:      results,
		queryTTL:     queryTTL,
		aggregateTTL: aggregateTTL,
		log:          log,
	}
}

// InvalidateCollection drops every cached result for one collection. The
// orchestrator calls this after imports; write queries call it internally.
func (e *Evaluator) InvalidateCollection(col catalog.Collection) {
	if e.results != nil {
		e.results.InvalidatePrefix(string(col) + ":")
	}
}

// Execute runs one query for one catalog. In-memory scans run to completion;
// ctx gates only the storage boundaries.
func (e *Evaluator) Execute(ctx context.Context, key catalog.Key, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch q.Operation {
	case OpSelect:
		return e.execSelect(key, q)
	case OpInsert:
		return e.execInsert(key, q)
	case OpUpdate:
		return e.execUpdate(key, q)
	default:
		return e.execDelete(key, q)
	}
}

func (e *Evaluator) execSelect(key catalog.Key, q Query) (*Result, error) {
	cacheKey := ""
	if e.results != nil {
		cacheKey = q.CacheKey(key)
		if cacheKey != "" {
			if res, ok := e.results.Get(cacheKey); ok {
				return res, nil
			}
		}
	}

	items, _, err := database.GetItems(e.store, key, q.Collection)
	if err != nil {
		return nil, err
	}

	matched := filterItems(items, q.Where)

	res := &Result{}
	if q.GroupBy != "" {
		res.Groups = groupItems(matched, q.GroupBy, q.OrderBy)
		res.Groups = sliceGroups(res.Groups, q.Offset, q.Limit)
	} else {
		sortItems(matched, q.OrderBy)
		res.Items = sliceItems(matched, q.Offset, q.Limit)
	}

	if e.results != nil && cacheKey != "" {
		ttl := e.queryTTL
		if q.GroupBy != "" {
			// Derived aggregates go stale faster than row listings.
			ttl = e.aggregateTTL
		}
		e.results.SetWithTTL(cacheKey, res, ttl)
	}
	return res, nil
}

func (e *Evaluator) execInsert(key catalog.Key, q Query) (*Result, error) {
	items, _, err := database.GetItems(e.store, key, q.Collection)
	if err != nil {
		return nil, err
	}

	it := itemFromValues(q.Values)
	if it.ID == "" {
		it.ID = ulid.Make().String()
	}
	if it.ContentType == "" {
		it.ContentType = catalog.ContentTypeForCollection(q.Collection)
	}
	it.Ordinal = nextOrdinal(items, it.CategoryID)

	items = append(items, it)
	if err := database.PutItems(e.store, key, q.Collection, items); err != nil {
		return nil, err
	}
	e.InvalidateCollection(q.Collection)
	e.log.WithFields(logrus.Fields{"collection": q.Collection, "id": it.ID}).Debug("inserted item")
	return &Result{Items: []catalog.Item{it}, Affected: 1}, nil
}

func (e *Evaluator) execUpdate(key catalog.Key, q Query) (*Result, error) {
	items, _, err := database.GetItems(e.store, key, q.Collection)
	if err != nil {
		return nil, err
	}

	var affected []catalog.Item
	for i := range items {
		if !matchItem(items[i], q.Where) {
			continue
		}
		applyValues(&items[i], q.Values)
		affected = append(affected, items[i])
	}
	if len(affected) == 0 {
		return &Result{}, nil
	}

	if err := database.PutItems(e.store, key, q.Collection, items); err != nil {
		return nil, err
	}
	e.InvalidateCollection(q.Collection)
	return &Result{Items: affected, Affected: len(affected)}, nil
}

func (e *Evaluator) execDelete(key catalog.Key, q Query) (*Result, error) {
	items, _, err := database.GetItems(e.store, key, q.Collection)
	if err != nil {
		return nil, err
	}

	kept := items[:0:0]
	var removed []catalog.Item
	for _, it := range items {
		if matchItem(it, q.Where) {
			removed = append(removed, it)
			continue
		}
		kept = append(kept, it)
	}
	if len(removed) == 0 {
		return &Result{}, nil
	}

	if err := database.PutItems(e.store, key, q.Collection, kept); err != nil {
		return nil, err
	}
	e.InvalidateCollection(q.Collection)
	return &Result{Items: removed, Affected: len(removed)}, nil
}

// --- predicate evaluation ---

func filterItems(items []catalog.Item, where Predicate) []catalog.Item {
	if len(where) == 0 {
		out := make([]catalog.Item, len(items))
		copy(out, items)
		return out
	}
	var out []catalog.Item
	for _, it := range items {
		if matchItem(it, where) {
			out = append(out, it)
		}
	}
	return out
}

func matchItem(it catalog.Item, where Predicate) bool {
	for field, cond := range where {
		value, _ := it.Field(field)
		for op, operand := range cond {
			if !matchOp(value, op, operand) {
				return false
			}
		}
	}
	return true
}

func matchOp(value any, op Operator, operand any) bool {
	switch op {
	case OpEq:
		return compareValues(value, operand) == 0
	case OpNe:
		return compareValues(value, operand) != 0
	case OpLike:
		return strings.Contains(
			strings.ToLower(stringify(value)),
			strings.ToLower(stringify(operand)))
	case OpGt:
		return compareValues(value, operand) > 0
	case OpLt:
		return compareValues(value, operand) < 0
	case OpIn:
		for _, candidate := range operandSlice(operand) {
			if compareValues(value, candidate) == 0 {
				return true
			}
		}
		return false
	}
	return false
}

// compareValues compares numerically when both sides parse as numbers and
// falls back to case-normalized string comparison otherwise.
func compareValues(a, b any) int {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(strings.ToLower(stringify(a)), strings.ToLower(stringify(b)))
}

func operandSlice(operand any) []any {
	switch t := operand.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{operand}
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// --- ordering, grouping, slicing ---

// sortItems sorts by the order field using case-normalized comparison,
// ascending unless DESC. Ties keep ordinal order (the sort is stable and
// inputs arrive ordinal-ordered).
func sortItems(items []catalog.Item, order *Order) {
	if order == nil || order.Field == "" {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		vi, _ := items[i].Field(order.Field)
		vj, _ := items[j].Field(order.Field)
		cmp := compareValues(vi, vj)
		if order.Desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func groupItems(items []catalog.Item, groupBy string, order *Order) []Group {
	buckets := make(map[string]*Group)
	var keys []string
	for _, it := range items {
		value, _ := it.Field(groupBy)
		gk := stringify(value)
		g, ok := buckets[gk]
		if !ok {
			g = &Group{Key: gk}
			buckets[gk] = g
			keys = append(keys, gk)
		}
		g.Items = append(g.Items, it)
		g.Count++
	}

	sort.SliceStable(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		g := buckets[k]
		sortItems(g.Items, order)
		groups = append(groups, *g)
	}
	return groups
}

func sliceItems(items []catalog.Item, offset, limit int) []catalog.Item {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func sliceGroups(groups []Group, offset, limit int) []Group {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(groups) {
		return nil
	}
	groups = groups[offset:]
	if limit > 0 && limit < len(groups) {
		groups = groups[:limit]
	}
	return groups
}

// --- write-op value handling ---

func itemFromValues(values map[string]any) catalog.Item {
	var it catalog.Item
	applyValues(&it, values)
	return it
}

func applyValues(it *catalog.Item, values map[string]any) {
	for field, v := range values {
		switch field {
		case "id", "item_id":
			it.ID = stringify(v)
		case "name":
			it.Name = stringify(v)
		case "category_id", "category":
			it.CategoryID = stringify(v)
		case "content_type":
			it.ContentType = catalog.ContentType(stringify(v))
		case "icon_url":
			it.IconURL = stringify(v)
		default:
			if it.Metadata == nil {
				it.Metadata = make(map[string]any)
			}
			it.Metadata[field] = v
		}
	}
}

func nextOrdinal(items []catalog.Item, categoryID string) int {
	next := 0
	for _, it := range items {
		if it.CategoryID == categoryID && it.Ordinal >= next {
			next = it.Ordinal + 1
		}
	}
	return next
}
