package extraction

// Candidate is a vocabulary entry that cleared the similarity threshold.
type Candidate struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	// Start is the rune offset of the entry's first token in the normalized
	// text. When the token does not occur verbatim (the score came from a
	// fuzzy alignment) Start is 0 and Located is false.
	Start   int  `json:"start"`
	Located bool `json:"located"`
}

// PartialRatio scores, from 0 to 100, how well the shorter of a and b aligns
// with its best matching substring of the longer one. Comparison is
// case-insensitive.
func PartialRatio(a, b string) int {
	return newScorer(fold(b)).ratio(newPattern(fold(a)))
}

// Match scores every vocabulary entry against text and returns those scoring
// at least threshold, in vocabulary order. Entries whose rune overlap with
// text cannot reach threshold are not aligned at all.
func Match(text []rune, vocab *Vocabulary, threshold int) []Candidate {
	if vocab == nil {
		return nil
	}

	sc := newScorer(text)
	var candidates []Candidate
	for _, e := range vocab.entries {
		if sc.bound(e.pat) < threshold {
			continue
		}
		score := sc.ratio(e.pat)
		if score < threshold {
			continue
		}
		start, located := indexRunes(text, e.first)
		candidates = append(candidates, Candidate{
			Name:    e.name,
			Score:   score,
			Start:   start,
			Located: located,
		})
	}
	return candidates
}

// scorer aligns many needles against one text. The text's own pattern is
// only built when an entry is at least as long as the text.
type scorer struct {
	text   []rune
	counts map[rune]int
	pat    *pattern
}

func newScorer(text []rune) *scorer {
	counts := make(map[rune]int, len(text))
	for _, r := range text {
		counts[r]++
	}
	return &scorer{text: text, counts: counts}
}

func (s *scorer) textPattern() *pattern {
	if s.pat == nil {
		s.pat = newPattern(s.text)
	}
	return s.pat
}

// bound is an upper limit on ratio(p)
func (s *scorer) bound(p *pattern) int {
	overlap := 0
	for r, n := range p.counts {
		overlap += min(n, s.counts[r])
	}
	return ratioBound(overlap, min(len(p.runes), len(s.text)))
}

func (s *scorer) ratio(p *pattern) int {
	switch m, n := len(p.runes), len(s.text); {
	case m == 0 || n == 0:
		return 0
	case m < n:
		return bestAlignment(p, s.text)
	case m > n:
		return bestAlignment(s.textPattern(), p.runes)
	default:
		best := bestAlignment(p, s.text)
		if best < 100 {
			best = max(best, bestAlignment(s.textPattern(), p.runes))
		}
		return best
	}
}
