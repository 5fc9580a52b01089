package engine

import (
	"unicode/utf8"

	"github.com/scrypster/atelier/pkg/types"
)

// HeuristicResult is the best string-similarity candidate for a reference.
type HeuristicResult struct {
	Matched    bool
	EntityID   string
	Confidence float64
}

// HeuristicMatcher scores a reference against every pool entity name in both
// locales. It is pure computation and safe for concurrent use.
type HeuristicMatcher struct{}

// NewHeuristicMatcher creates a HeuristicMatcher.
func NewHeuristicMatcher() *HeuristicMatcher {
	return &HeuristicMatcher{}
}

// Match returns the highest-scoring entity. Ties keep the entity that comes
// first in pool order. Matched is false only when nothing scored above zero;
// callers decide whether the confidence is high enough to act on.
func (m *HeuristicMatcher) Match(reference string, pool *AvailableEntityPool) HeuristicResult {
	ref := normalizeName(reference)
	if ref == "" || pool == nil {
		return HeuristicResult{}
	}
	refTokens := tokenSet(ref)

	var best HeuristicResult
	for _, e := range pool.Entities {
		for _, loc := range types.Locales {
			name := normalizeName(e.Name.Get(loc))
			score := similarity(ref, refTokens, name)
			if score > best.Confidence {
				best = HeuristicResult{Matched: true, EntityID: e.ID, Confidence: score}
			}
		}
		if best.Confidence == 1 {
			break
		}
	}
	return best
}

// Containment scores containBase plus up to containSpan for length
// closeness. The sum stays below the default threshold, so "Black Marble"
// against "Marble" is left to the semantic tier.
const (
	containBase = 0.6
	containSpan = 0.2
)

// similarity scores two normalized names in [0,1]:
// equal names score 1; a name contained in the other as whole tokens scores
// by containment; anything else scores the Jaccard overlap of the token sets.
func similarity(a string, aTokens map[string]struct{}, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	shorter, longer := a, b
	if utf8.RuneCountInString(shorter) > utf8.RuneCountInString(longer) {
		shorter, longer = longer, shorter
	}
	if containsPhrase(longer, shorter) {
		ratio := float64(utf8.RuneCountInString(shorter)) / float64(utf8.RuneCountInString(longer))
		return containBase + containSpan*ratio
	}

	bTokens := tokenSet(b)
	inter := 0
	for t := range aTokens {
		if _, ok := bTokens[t]; ok {
			inter++
		}
	}
	union := len(aTokens) + len(bTokens) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
