// file: internal/matcher/matcher.go
// version: 2.0.0
// guid: 1f2a3b4c-5d6e-7f8a-9b0c-1d2e3f4a5b6c

package matcher

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/opencatalog/streamvault/internal/catalog"
)

// minItemScore is the floor below which an item is not considered a match.
const minItemScore = 35

// ItemMatch pairs an item with its search score.
type ItemMatch struct {
	Item  catalog.Item
	Score int
}

// RankItems scores catalog items against a free-text query over the item
// name and category, best first, capped at limit results. A cheap fuzzy
// subsequence check gates candidates before the scoring pass so large
// collections stay fast.
func RankItems(query string, items []catalog.Item, categoryNames map[string]string, limit int) []ItemMatch {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	lowered := strings.ToLower(query)

	var matches []ItemMatch
	for _, it := range items {
		name := it.Name
		categoryName := categoryNames[it.CategoryID]

		if !fuzzy.MatchFold(lowered, name) && !fuzzy.MatchFold(lowered, categoryName) {
			continue
		}

		score := ScoreMatch(query, name)
		if categoryName != "" {
			// Category hits rank below equally-good name hits.
			if cs := ScoreMatch(query, categoryName) - 10; cs > score {
				score = cs
			}
		}
		if score < minItemScore {
			continue
		}
		matches = append(matches, ItemMatch{Item: it, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
