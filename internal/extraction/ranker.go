package extraction

import (
	"cmp"
	"slices"
)

// Rank orders candidates by score descending, breaking ties by the earlier
// start offset, and keeps at most topK. Candidates equal on both keep their
// vocabulary order. The input slice is not modified.
func Rank(candidates []Candidate, topK int) []Candidate {
	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Start, b.Start)
	})
	if topK < len(ranked) {
		ranked = ranked[:max(topK, 0)]
	}
	return ranked
}
