package extraction

// Span is a half-open rune range [Start, End) of the normalized text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Empty reports whether the span covers no text. Spans running backwards are
// empty.
func (s Span) Empty() bool { return s.End <= s.Start }

// Segment assigns each ranked candidate the text from its own start up to the
// start of the next candidate in rank order; the last one runs to textLen.
//
// Rank order is by score, not position, so a span can end before it starts
// when a better-scoring mention sits later in the text. Such spans are kept
// as they are and read as empty.
func Segment(ranked []Candidate, textLen int) []Span {
	spans := make([]Span, len(ranked))
	for i, c := range ranked {
		end := textLen
		if i+1 < len(ranked) {
			end = ranked[i+1].Start
		}
		spans[i] = Span{Start: c.Start, End: end}
	}
	return spans
}

func (s Span) slice(text []rune) []rune {
	start := min(max(s.Start, 0), len(text))
	end := min(s.End, len(text))
	if end <= start {
		return nil
	}
	return text[start:end]
}
