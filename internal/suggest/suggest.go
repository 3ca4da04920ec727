// Package suggest provides fuzzy matching for flag and config key suggestions
// using Levenshtein distance.
package suggest

import (
	"slices"
	"strings"
)

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Closest returns up to three candidates near unknown, best first. Leading
// dashes are ignored on both sides.
func Closest(unknown string, candidates []string) []string {
	unknown = strings.ToLower(strings.TrimLeft(unknown, "-"))

	type scored struct {
		name  string
		score int
	}
	var found []scored
	maxDist := max(3, len(unknown)/2)
	for _, c := range candidates {
		dist := levenshtein(unknown, strings.ToLower(strings.TrimLeft(c, "-")))
		if dist <= maxDist {
			found = append(found, scored{c, dist})
		}
	}
	slices.SortStableFunc(found, func(a, b scored) int { return a.score - b.score })

	var result []string
	for i := 0; i < len(found) && i < 3; i++ {
		result = append(result, found[i].name)
	}
	return result
}

// flagHints maps commonly attempted flags to what to use instead
var flagHints = map[string]string{
	"customer": "pass the customer as an argument: fieldops visit start <customer>",
	"notes":    "--purpose, -p",
	"note":     "--purpose, -p",
	"lat":      "--fix lat,lon",
	"lon":      "--fix lat,lon",
	"lng":      "--fix lat,lon",
	"gps":      "--fix lat,lon or --route file",
	"location": "--fix lat,lon or --route file",
	"selfie":   "--photo",
	"image":    "--photo",
	"plan":     "--tomorrow",
	"calls":    "--manual-calls",
	"meetings": "--manual-meetings",
	"orders":   "--manual-orders",
	"version":  "use: fieldops version",
}

// FlagHint returns a hint for a commonly misused flag
func FlagHint(flag string) string {
	return flagHints[strings.ToLower(strings.TrimLeft(flag, "-"))]
}
