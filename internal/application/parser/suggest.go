package parser

import (
	"sort"
	"strings"
)

// DefaultSuggestionLimit is how many candidates Suggest returns
const DefaultSuggestionLimit = 3

const (
	weightPrefix    = 100
	weightSubstring = 80
	weightTokens    = 50
	weightDistance  = 30
)

// Suggest ranks candidates against query by blending prefix/substring match,
// token overlap and bounded edit distance. Highest scores first.
func Suggest(query string, candidates []string, limit int) []string {
	q := NormalizeName(query)
	if q == "" || limit <= 0 {
		return nil
	}

	type scored struct {
		name  string
		score int
	}
	best := make(map[string]int)
	for _, c := range candidates {
		if s := scoreCandidate(q, NormalizeName(c)); s > 0 && s > best[c] {
			best[c] = s
		}
	}

	ranked := make([]scored, 0, len(best))
	for name, s := range best {
		ranked = append(ranked, scored{name, s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].name < ranked[j].name
	})

	out := make([]string, 0, limit)
	for _, r := range ranked {
		if len(out) == limit {
			break
		}
		out = append(out, r.name)
	}
	return out
}

func scoreCandidate(q, c string) int {
	if c == "" {
		return 0
	}
	score := 0
	switch {
	case strings.HasPrefix(c, q) || strings.HasPrefix(q, c):
		score = weightPrefix
	case strings.Contains(c, q) || strings.Contains(q, c):
		score = weightSubstring
	}

	if qt := splitNameTokens(q); len(qt) > 0 {
		ct := make(map[string]bool)
		for _, t := range splitNameTokens(c) {
			ct[t] = true
		}
		overlap := 0
		for _, t := range qt {
			if ct[t] {
				overlap++
			}
		}
		if s := weightTokens * overlap / len(qt); s > score {
			score = s
		}
	}

	if d := levenshtein(q, c); d <= distanceThreshold(len([]rune(q))) {
		if s := weightDistance - 5*d; s > score {
			score = s
		}
	}
	return score
}

// distanceThreshold scales the tolerated edit distance with query length
func distanceThreshold(n int) int {
	switch {
	case n <= 4:
		return 1
	case n <= 8:
		return 2
	default:
		return 3
	}
}

func splitNameTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
