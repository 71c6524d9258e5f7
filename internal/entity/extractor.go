// Package entity implements the C3 Entity Extractor: a regex-driven
// capitalized-token heuristic, grounded on
// original_source/server/src/kg.rs's extract_entities.
package entity

import (
	"regexp"
	"sort"
)

var pattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]{2,}\b`)

// Extract returns the deduplicated, lexicographically sorted set of
// capitalized tokens (length >= 3) found in text. The result is
// deterministic and order-independent of input structure.
func Extract(text string) []string {
	matches := pattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Jaccard computes the Jaccard similarity of two entity sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, e := range a {
		setA[e] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, e := range b {
		setB[e] = struct{}{}
	}
	inter := 0
	for e := range setA {
		if _, ok := setB[e]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
