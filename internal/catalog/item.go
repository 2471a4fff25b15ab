// file: internal/catalog/item.go
// version: 1.2.0
// guid: 7c4d9e2f-1a8b-4c3d-9e6f-2b5a8c1d4e7f

package catalog

import "strings"

// ContentType discriminates the tagged item variants.
type ContentType string

const (
	ContentLive   ContentType = "live"
	ContentVOD    ContentType = "vod"
	ContentSeries ContentType = "series"
)

// Item is the base record shared by all variants. Within a snapshot, Ordinal
// is strictly increasing per category and stable across re-fetches of the
// same snapshot.
type Item struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	CategoryID  string         `json:"category_id"`
	ContentType ContentType    `json:"content_type"`
	IconURL     string         `json:"icon_url,omitempty"`
	Ordinal     int            `json:"ordinal"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// LiveItem is a live channel.
type LiveItem struct {
	Item
	EPGChannelID string `json:"epg_channel_id,omitempty"`
	TVArchive    bool   `json:"tv_archive,omitempty"`
}

// VodItem is an on-demand title.
type VodItem struct {
	Item
	ContainerExt string `json:"container_extension,omitempty"`
	Rating       string `json:"rating,omitempty"`
	ReleaseDate  string `json:"release_date,omitempty"`
}

// SeriesItem is an episodic series.
type SeriesItem struct {
	Item
	Plot         string `json:"plot,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// AsLive widens the base item into its live variant, pulling known fields out
// of Metadata.
func (it Item) AsLive() LiveItem {
	return LiveItem{
		Item:         it,
		EPGChannelID: metaString(it.Metadata, "epg_channel_id"),
		TVArchive:    metaString(it.Metadata, "tv_archive") == "1",
	}
}

// AsVod widens the base item into its on-demand variant.
func (it Item) AsVod() VodItem {
	return VodItem{
		Item:         it,
		ContainerExt: metaString(it.Metadata, "container_extension"),
		Rating:       metaString(it.Metadata, "rating"),
		ReleaseDate:  metaString(it.Metadata, "release_date"),
	}
}

// AsSeries widens the base item into its series variant.
func (it Item) AsSeries() SeriesItem {
	return SeriesItem{
		Item:         it,
		Plot:         metaString(it.Metadata, "plot"),
		LastModified: metaString(it.Metadata, "last_modified"),
	}
}

// Field resolves a queryable field by name: the base fields first, then the
// metadata map. Used by the query evaluator's predicates and sort.
func (it Item) Field(name string) (any, bool) {
	switch name {
	case "id", "item_id":
		return it.ID, true
	case "name":
		return it.Name, true
	case "category_id", "category":
		return it.CategoryID, true
	case "content_type":
		return string(it.ContentType), true
	case "icon_url":
		return it.IconURL, true
	case "ordinal":
		return it.Ordinal, true
	}
	if it.Metadata != nil {
		if v, ok := it.Metadata[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// ContentTypeForCollection maps an item collection to its content type.
func ContentTypeForCollection(col Collection) ContentType {
	switch col {
	case CollectionVOD:
		return ContentVOD
	case CollectionSeries:
		return ContentSeries
	default:
		return ContentLive
	}
}

// InferContentType guesses a content type from an item name. This is a
// last-resort fallback for records that carry no explicit type and arrive
// outside a typed document section; explicit typing always wins.
func InferContentType(name string) ContentType {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "series"):
		return ContentSeries
	case strings.Contains(lower, "live"):
		return ContentLive
	default:
		return ContentVOD
	}
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
