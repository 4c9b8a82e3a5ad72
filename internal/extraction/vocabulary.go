package extraction

import "strings"

type entry struct {
	name  string
	first []rune
	pat   *pattern
}

// Vocabulary is the normalized, read-only form of a list of reference
// medicine names. It is safe for concurrent use.
type Vocabulary struct {
	entries []entry
}

// NewVocabulary builds a vocabulary from names in the order given. Blank names
// are skipped and a name whose normalized form was already seen is dropped,
// keeping the first spelling.
func NewVocabulary(names []string) *Vocabulary {
	v := &Vocabulary{entries: make([]entry, 0, len(names))}
	seen := make(map[string]struct{}, len(names))

	for _, name := range names {
		cleaned := cleanName(name)
		if cleaned == "" {
			continue
		}
		key := fold(cleaned)
		k := string(key)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}

		v.entries = append(v.entries, entry{
			name:  name,
			first: []rune(strings.Fields(k)[0]),
			pat:   newPattern(key),
		})
	}
	return v
}

// Len returns the number of usable entries
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.entries)
}

// Names returns the entries as supplied, in iteration order
func (v *Vocabulary) Names() []string {
	if v == nil {
		return nil
	}
	names := make([]string, len(v.entries))
	for i, e := range v.entries {
		names[i] = e.name
	}
	return names
}
