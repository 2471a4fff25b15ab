// file: internal/query/query.go
// version: 1.1.0
// guid: 4e5f6a7b-8c9d-0e1f-2a3b-4c5d6e7f8a9b

package query

import (
	"encoding/json"
	"fmt"

	"github.com/opencatalog/streamvault/internal/catalog"
)

// Operation selects the query verb.
type Operation string

const (
	OpSelect Operation = "SELECT"
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Operator is a predicate field operator.
type Operator string

const (
	OpEq   Operator = "eq"
	OpNe   Operator = "ne"
	OpLike Operator = "like"
	OpGt   Operator = "gt"
	OpLt   Operator = "lt"
	OpIn   Operator = "in"
)

// Condition maps operators to operands for one field.
type Condition map[Operator]any

// Predicate is a conjunction of per-field conditions: every field's every
// operator must match for an item to pass.
type Predicate map[string]Condition

// Order names the sort field and direction.
type Order struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Query is one declarative request against a single collection. Queries are
// never persisted.
type Query struct {
	Operation  Operation          `json:"operation"`
	Collection catalog.Collection `json:"collection"`
	Where      Predicate          `json:"where,omitempty"`
	OrderBy    *Order             `json:"order_by,omitempty"`
	Limit      int                `json:"limit,omitempty"`  // <= 0 means no limit
	Offset     int                `json:"offset,omitempty"` // negative clamps to 0
	GroupBy    string             `json:"group_by,omitempty"`
	Values     map[string]any     `json:"values,omitempty"` // INSERT fields / UPDATE assignments
}

// Group is one bucket of a grouped SELECT.
type Group struct {
	Key   string         `json:"group_key"`
	Items []catalog.Item `json:"items"`
	Count int            `json:"count"`
}

// Result carries the output of one query: Items for plain SELECTs and write
// ops (the affected records), Groups for grouped SELECTs.
type Result struct {
	Items    []catalog.Item `json:"items,omitempty"`
	Groups   []Group        `json:"groups,omitempty"`
	Affected int            `json:"affected,omitempty"`
}

// InvalidQueryError marks a malformed query: unknown operation, collection,
// or operator. It is a programmer error and never retried.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}

func invalidf(format string, args ...any) error {
	return &InvalidQueryError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the statically checkable parts of a query.
func (q *Query) Validate() error {
	switch q.Operation {
	case OpSelect, OpInsert, OpUpdate, OpDelete:
	default:
		return invalidf("unknown operation %q", q.Operation)
	}
	if !q.Collection.IsContent() {
		return invalidf("unknown collection %q", q.Collection)
	}
	for field, cond := range q.Where {
		for op := range cond {
			switch op {
			case OpEq, OpNe, OpLike, OpGt, OpLt, OpIn:
			default:
				return invalidf("unknown operator %q on field %q", op, field)
			}
		}
	}
	return nil
}

// CacheKey builds the deterministic result-cache key for a SELECT: the
// collection first (so writes can invalidate by collection prefix), then the
// catalog, then the canonical JSON encoding of the query. Go marshals maps
// with sorted keys, which makes the encoding deterministic.
func (q *Query) CacheKey(key catalog.Key) string {
	enc, err := json.Marshal(q)
	if err != nil {
		// Query fields are all JSON-encodable; treat failure as uncacheable.
		return ""
	}
	return string(q.Collection) + ":" + key.Hash() + ":" + string(enc)
}
