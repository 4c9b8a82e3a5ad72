package extraction

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// fold returns the NFKC form of s lowercased rune by rune. Lowering never
// changes the rune count, so offsets into the result stay valid.
func fold(s string) []rune {
	runes := []rune(norm.NFKC.String(s))
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

// cleanName normalizes and trims a reference name. An empty result means the
// name carries nothing to match.
func cleanName(name string) string {
	return strings.TrimSpace(norm.NFKC.String(name))
}

// indexRunes returns the offset of the first occurrence of needle in haystack.
func indexRunes(haystack, needle []rune) (int, bool) {
	if len(needle) == 0 {
		return 0, true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if hasPrefixAt(haystack, i, needle) {
			return i, true
		}
	}
	return 0, false
}

func hasPrefixAt(s []rune, pos int, prefix []rune) bool {
	if pos < 0 || pos+len(prefix) > len(s) {
		return false
	}
	for i, r := range prefix {
		if s[pos+i] != r {
			return false
		}
	}
	return true
}

func containsRunes(haystack []rune, needle string) bool {
	_, ok := indexRunes(haystack, []rune(needle))
	return ok
}
