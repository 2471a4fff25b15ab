// file: internal/catalog/document.go
// version: 1.3.0
// guid: 9a1b4c7d-2e5f-4a8b-b1c4-d7e0f3a6b9c2

package catalog

import (
	"fmt"
	"strconv"
	"time"
)

// RawCategory is one category record as delivered by the provider fetch.
type RawCategory struct {
	CategoryID   any    `json:"category_id"`
	CategoryName string `json:"category_name"`
}

// RawItem is one untyped item record as delivered by the provider fetch.
// Providers disagree on field names, so normalization probes a set of
// candidates per base field and keeps the rest as metadata.
type RawItem map[string]any

// DocumentSections groups per-collection payloads inside a document.
type DocumentSections[T any] struct {
	Live   []T `json:"live"`
	VOD    []T `json:"vod"`
	Series []T `json:"series"`
}

// Document is the normalized catalog document returned by the provider fetch
// function. It is the only input shape the engine accepts.
type Document struct {
	UserInfo   map[string]any               `json:"user_info,omitempty"`
	Categories DocumentSections[RawCategory] `json:"categories"`
	Streams    DocumentSections[RawItem]     `json:"streams"`
}

// Snapshot is a fully normalized document ready for import: the catalog
// summary plus the ordered item arrays per collection.
type Snapshot struct {
	Catalog Catalog
	Items   map[Collection][]Item
}

// Normalize partitions a document into typed, ordered collections and builds
// the category index. Ordinals are assigned strictly increasing per category
// in document order, so re-normalizing the same document yields identical
// ordinals.
func Normalize(key Key, doc *Document) (*Snapshot, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil catalog document for %s", key)
	}

	snap := &Snapshot{
		Catalog: Catalog{
			Key:        key,
			UserInfo:   doc.UserInfo,
			Categories: make(map[Collection][]Category, len(ContentCollections)),
			Counts:     make(map[Collection]int, len(ContentCollections)),
			ImportedAt: time.Now().UTC(),
		},
		Items: make(map[Collection][]Item, len(ContentCollections)),
	}

	rawCats := map[Collection][]RawCategory{
		CollectionLive:   doc.Categories.Live,
		CollectionVOD:    doc.Categories.VOD,
		CollectionSeries: doc.Categories.Series,
	}
	rawItems := map[Collection][]RawItem{
		CollectionLive:   doc.Streams.Live,
		CollectionVOD:    doc.Streams.VOD,
		CollectionSeries: doc.Streams.Series,
	}

	for _, col := range ContentCollections {
		items, index := normalizeCollection(col, rawItems[col], rawCats[col])
		snap.Items[col] = items
		snap.Catalog.Categories[col] = index
		snap.Catalog.Counts[col] = len(items)
	}
	return snap, nil
}

// Export rebuilds a document from an imported catalog, the inverse of
// Normalize. Re-importing an exported document yields the same collections
// and ordinals.
func Export(cat *Catalog, items map[Collection][]Item) *Document {
	doc := &Document{UserInfo: cat.UserInfo}

	sections := map[Collection]struct {
		cats  *[]RawCategory
		items *[]RawItem
	}{
		CollectionLive:   {&doc.Categories.Live, &doc.Streams.Live},
		CollectionVOD:    {&doc.Categories.VOD, &doc.Streams.VOD},
		CollectionSeries: {&doc.Categories.Series, &doc.Streams.Series},
	}

	for _, col := range ContentCollections {
		sec := sections[col]
		for _, c := range cat.CategoriesFor(col) {
			*sec.cats = append(*sec.cats, RawCategory{CategoryID: c.ID, CategoryName: c.Name})
		}
		for _, it := range items[col] {
			*sec.items = append(*sec.items, exportItem(it))
		}
	}
	return doc
}

func exportItem(it Item) RawItem {
	raw := RawItem{
		"name":        it.Name,
		"category_id": it.CategoryID,
		"stream_type": string(it.ContentType),
	}
	if it.ContentType == ContentSeries {
		raw["series_id"] = it.ID
	} else {
		raw["stream_id"] = it.ID
	}
	if it.IconURL != "" {
		raw["stream_icon"] = it.IconURL
	}
	for k, v := range it.Metadata {
		if _, taken := raw[k]; !taken {
			raw[k] = v
		}
	}
	return raw
}

func normalizeCollection(col Collection, raws []RawItem, cats []RawCategory) ([]Item, []Category) {
	// Category index from the document, in document order.
	index := make([]Category, 0, len(cats))
	pos := make(map[string]int, len(cats))
	for _, rc := range cats {
		id := anyToString(rc.CategoryID)
		if id == "" {
			continue
		}
		if _, dup := pos[id]; dup {
			continue
		}
		pos[id] = len(index)
		index = append(index, Category{ID: id, Name: rc.CategoryName})
	}

	items := make([]Item, 0, len(raws))
	perCategory := make(map[string]int)
	for _, raw := range raws {
		it := normalizeItem(col, raw)
		if it.ID == "" {
			continue
		}
		it.Ordinal = perCategory[it.CategoryID]
		perCategory[it.CategoryID]++
		items = append(items, it)

		if _, known := pos[it.CategoryID]; !known && it.CategoryID != "" {
			// Item references a category the document never declared.
			pos[it.CategoryID] = len(index)
			index = append(index, Category{ID: it.CategoryID, Name: it.CategoryID})
		}
	}

	for cid, n := range perCategory {
		if p, ok := pos[cid]; ok {
			index[p].ItemCount = n
		}
	}
	return items, index
}

func normalizeItem(col Collection, raw RawItem) Item {
	it := Item{
		ID:         rawField(raw, "stream_id", "series_id", "item_id", "id"),
		Name:       rawField(raw, "name", "title"),
		CategoryID: rawField(raw, "category_id"),
		IconURL:    rawField(raw, "stream_icon", "cover", "icon"),
	}

	// The document section is the authoritative type; a declared stream_type
	// can narrow it, and name inference is only for records with neither.
	switch rawField(raw, "stream_type", "content_type", "type") {
	case "live":
		it.ContentType = ContentLive
	case "movie", "vod":
		it.ContentType = ContentVOD
	case "series":
		it.ContentType = ContentSeries
	case "":
		it.ContentType = ContentTypeForCollection(col)
	default:
		it.ContentType = InferContentType(it.Name)
	}

	consumed := map[string]bool{
		"stream_id": true, "series_id": true, "item_id": true, "id": true,
		"name": true, "title": true, "category_id": true,
		"stream_icon": true, "cover": true, "icon": true,
		"stream_type": true, "content_type": true, "type": true,
	}
	for k, v := range raw {
		if consumed[k] {
			continue
		}
		if it.Metadata == nil {
			it.Metadata = make(map[string]any)
		}
		it.Metadata[k] = v
	}
	return it
}

func rawField(raw RawItem, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s := anyToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; ids are integral in practice.
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
