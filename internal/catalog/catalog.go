// file: internal/catalog/catalog.go
// version: 1.1.0
// guid: 3f2a8b1c-9d4e-4f6a-8b2c-1d5e7f9a0b3c

package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Collection identifies one of the typed item collections in a catalog, plus
// the meta collection used for bookkeeping records.
type Collection string

const (
	CollectionLive   Collection = "live"
	CollectionVOD    Collection = "vod"
	CollectionSeries Collection = "series"
	CollectionMeta   Collection = "meta"
)

// ContentCollections lists the item-bearing collections in import order.
var ContentCollections = []Collection{CollectionLive, CollectionVOD, CollectionSeries}

// ParseCollection validates a collection name from user input.
func ParseCollection(s string) (Collection, error) {
	switch Collection(strings.ToLower(s)) {
	case CollectionLive:
		return CollectionLive, nil
	case CollectionVOD:
		return CollectionVOD, nil
	case CollectionSeries:
		return CollectionSeries, nil
	case CollectionMeta:
		return CollectionMeta, nil
	}
	return "", fmt.Errorf("unknown collection %q", s)
}

// IsContent reports whether the collection holds catalog items (as opposed to
// meta records).
func (c Collection) IsContent() bool {
	return c == CollectionLive || c == CollectionVOD || c == CollectionSeries
}

// Key identifies one provider account's catalog: (server address, username).
type Key struct {
	Server   string `json:"server"`
	Username string `json:"username"`
}

// String renders the key in its canonical "server|username" form.
func (k Key) String() string {
	return k.Server + "|" + k.Username
}

// Hash returns a short stable identifier safe for use in storage keys and
// URLs, derived from the normalized key.
func (k Key) Hash() string {
	normalized := strings.TrimRight(strings.ToLower(k.Server), "/") + "|" + k.Username
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:6])
}

// ParseKey parses the "server|username" form produced by String.
func ParseKey(s string) (Key, error) {
	idx := strings.LastIndex(s, "|")
	if idx <= 0 || idx == len(s)-1 {
		return Key{}, fmt.Errorf("invalid catalog key %q (want server|username)", s)
	}
	return Key{Server: s[:idx], Username: s[idx+1:]}, nil
}

// Category is a named grouping of items within one collection. Categories are
// immutable per snapshot; a refresh replaces a catalog's categories wholesale.
type Category struct {
	ID        string `json:"category_id"`
	Name      string `json:"category_name"`
	ItemCount int    `json:"item_count"`
}

// Catalog is the normalized form of one account's content set. It is owned by
// the catalog store and replaced wholesale on refresh, never partially mutated.
type Catalog struct {
	Key        Key                       `json:"key"`
	UserInfo   map[string]any            `json:"user_info,omitempty"`
	Categories map[Collection][]Category `json:"categories"`
	Counts     map[Collection]int        `json:"counts"`
	ImportedAt time.Time                 `json:"imported_at"`
}

// CategoriesFor returns the category index for one content collection.
func (c *Catalog) CategoriesFor(col Collection) []Category {
	if c == nil || c.Categories == nil {
		return nil
	}
	return c.Categories[col]
}

// TotalItems sums item counts across all content collections.
func (c *Catalog) TotalItems() int {
	total := 0
	for _, n := range c.Counts {
		total += n
	}
	return total
}
