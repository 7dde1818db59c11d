// Package textutil matches loosely typed course names.
package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases name and strips all whitespace so names can be
// compared regardless of formatting.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimSpace(name)
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// BestMatch returns the index of the candidate most similar to target by
// Jaro-Winkler similarity, substring hits win outright. It returns -1 when
// no candidate reaches minSimilarity.
func BestMatch(target string, candidates []string, minSimilarity float64) int {
	normTarget := NormalizeName(target)
	if normTarget == "" {
		return -1
	}

	best := -1
	bestScore := minSimilarity
	for i, c := range candidates {
		norm := NormalizeName(c)
		if norm == "" {
			continue
		}
		if strings.Contains(norm, normTarget) {
			return i
		}
		score := matchr.JaroWinkler(normTarget, norm, false)
		if score >= bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}
