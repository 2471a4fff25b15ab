// file: internal/matcher/fuzzy.go
// version: 2.0.0
// guid: a1b2c3d4-e5f6-7a8b-9c0d-1e2f3a4b5c6d

package matcher

import (
	"strings"
	"unicode"
)

// Score tiers. A substring hit scales with how much of the target name the
// query covers, so it can land anywhere in [60, 85).
const (
	scoreExact     = 100
	scorePrefix    = 90
	scoreWordStart = 80
	scoreSubstring = 60
)

// ScoreMatch scores how well a free-text query matches a catalog name on a
// 0-100 scale. Case and punctuation are ignored; channel names like
// "Sky: News!" score as "sky news".
func ScoreMatch(query, name string) int {
	q := foldName(query)
	t := foldName(name)
	if q == "" || t == "" {
		return 0
	}
	if q == t {
		return scoreExact
	}

	score := 0
	if strings.HasPrefix(t, q) {
		score = scorePrefix
	}
	if s := substringScore(q, t); s > score {
		score = s
	}

	words := strings.Fields(t)
	if score < scoreWordStart {
		for _, w := range words {
			if strings.HasPrefix(w, q) {
				score = scoreWordStart
				break
			}
		}
	}

	// Edit-distance floor: whole name weighted low, best single word a bit
	// higher, so near-miss spellings still surface.
	if s := editScore(q, t, 50); s > score {
		score = s
	}
	for _, w := range words {
		if s := editScore(q, w, 70); s > score {
			score = s
		}
	}
	return score
}

func substringScore(q, t string) int {
	if !strings.Contains(t, q) {
		return 0
	}
	coverage := float64(len(q)) / float64(len(t))
	return scoreSubstring + int(coverage*25)
}

// editScore maps the edit distance between q and t onto [0, weight].
func editScore(q, t string, weight int) int {
	longest := max(len(q), len(t))
	if longest == 0 {
		return 0
	}
	similarity := 1 - float64(LevenshteinDistance(q, t))/float64(longest)
	if similarity < 0 {
		return 0
	}
	return int(similarity * float64(weight))
}

// LevenshteinDistance computes the case-folded edit distance between two
// strings using a single rolling row.
func LevenshteinDistance(a, b string) int {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prevDiag := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			next := min(row[j]+1, min(row[j-1]+1, prevDiag+cost))
			prevDiag = row[j]
			row[j] = next
		}
	}
	return row[len(b)]
}

// foldName lowercases a name and strips everything but letters, digits, and
// spaces.
func foldName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
