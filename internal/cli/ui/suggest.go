package ui

import (
	"sort"
	"strings"
)

// MaxSuggestions caps the names Suggest returns.
const MaxSuggestions = 3

// Suggest returns up to MaxSuggestions candidates close to name, closest
// first. Matching ignores case; a candidate qualifies when its edit distance
// is at most a third of its length, or when one name contains the other.
func Suggest(name string, candidates []string) []string {
	type match struct {
		value    string
		distance int
	}

	target := strings.ToLower(name)
	var matches []match
	for _, candidate := range candidates {
		lower := strings.ToLower(candidate)
		d := editDistance(target, lower)
		limit := len(lower) / 3
		if limit < 1 {
			limit = 1
		}
		if d <= limit || (target != "" && (strings.Contains(lower, target) || strings.Contains(target, lower))) {
			matches = append(matches, match{candidate, d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	out := make([]string, 0, MaxSuggestions)
	for i := 0; i < len(matches) && i < MaxSuggestions; i++ {
		out = append(out, matches[i].value)
	}
	return out
}

// editDistance is the Levenshtein distance between a and b, kept in a single
// row of the dynamic programming table.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			next := diag + cost
			if row[j]+1 < next {
				next = row[j] + 1
			}
			if row[j-1]+1 < next {
				next = row[j-1] + 1
			}
			diag, row[j] = row[j], next
		}
	}
	return row[len(rb)]
}
