package extraction

import (
	"strconv"
	"unicode"
)

const (
	unitDay    = "day"
	unitTablet = "tablet"
)

// numberWords lists the recognised count words in the order they are tried
// at each position. "to" stands in for a misheard "two".
var numberWords = []struct {
	word  string
	value int
}{
	{"one", 1},
	{"two", 2},
	{"to", 2},
	{"three", 3},
	{"four", 4},
	{"five", 5},
	{"six", 6},
	{"seven", 7},
	{"eight", 8},
	{"nine", 9},
	{"ten", 10},
}

// Quantities holds the counts recovered from one span. Both are at least 1.
type Quantities struct {
	Days   int `json:"days"`
	Dosage int `json:"dosage"`
}

// ExtractQuantities finds the first "<count> day(s)" and the first
// "<count> tablet(s)" in segment, case-insensitively. A count is a run of
// digits or a number word, optionally followed by whitespace. Missing or zero
// counts become 1.
func ExtractQuantities(segment string) Quantities {
	return extractQuantities(fold(segment))
}

func extractQuantities(seg []rune) Quantities {
	q := Quantities{Days: 1, Dosage: 1}
	if n, ok := scanCount(seg, []rune(unitDay)); ok {
		q.Days = n
	}
	if n, ok := scanCount(seg, []rune(unitTablet)); ok {
		q.Dosage = n
	}
	return q
}

// scanCount returns the count in front of the leftmost occurrence of unit
// that has one. The plural form is covered since it starts with unit.
func scanCount(seg []rune, unit []rune) (int, bool) {
	for pos := range seg {
		if n, ok := countAt(seg, pos, unit); ok {
			return n, true
		}
	}
	return 0, false
}

func countAt(seg []rune, pos int, unit []rune) (int, bool) {
	if isDigit(seg[pos]) {
		end := pos
		for end < len(seg) && isDigit(seg[end]) {
			end++
		}
		if !unitFollows(seg, end, unit) {
			return 0, false
		}
		return parseCount(string(seg[pos:end])), true
	}

	for _, w := range numberWords {
		word := []rune(w.word)
		if hasPrefixAt(seg, pos, word) && unitFollows(seg, pos+len(word), unit) {
			return w.value, true
		}
	}
	return 0, false
}

func unitFollows(seg []rune, pos int, unit []rune) bool {
	for pos < len(seg) && unicode.IsSpace(seg[pos]) {
		pos++
	}
	return hasPrefixAt(seg, pos, unit)
}

func parseCount(digits string) int {
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
