package extraction

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowPartialRatio scores with a full dynamic-programming LCS over every
// window. Used to check the bit-parallel scorer.
func slowPartialRatio(a, b []rune) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	if len(a) == 0 {
		return 0
	}
	best := slowAlignment(a, b)
	if best < 100 && len(a) == len(b) {
		best = max(best, slowAlignment(b, a))
	}
	return best
}

func slowAlignment(needle, haystack []rune) int {
	m, n := len(needle), len(haystack)
	best := 0
	for i := 1; i < m && i <= n; i++ {
		best = max(best, indelRatio(slowLCS(needle, haystack[:i]), m, i))
	}
	for i := 0; i+m <= n; i++ {
		best = max(best, indelRatio(slowLCS(needle, haystack[i:i+m]), m, m))
	}
	for i := max(n-m+1, 1); i < n; i++ {
		best = max(best, indelRatio(slowLCS(needle, haystack[i:]), m, n-i))
	}
	return best
}

func slowLCS(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func randomRunes(rng *rand.Rand, alphabet []rune, n int) []rune {
	out := make([]rune, n)
	for i := range out {
		out[i] = alphabet[rng.IntN(len(alphabet))]
	}
	return out
}

func TestLCSRow_MatchesDynamicProgramming(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	alphabet := []rune("abcd é")

	// lengths past 64 cross a word boundary in the bit vector
	for _, m := range []int{1, 5, 63, 64, 65, 130} {
		for range 20 {
			needle := randomRunes(rng, alphabet, m)
			hay := randomRunes(rng, alphabet, rng.IntN(150)+1)

			p := newPattern(needle)
			row := newLCSRow(m)
			row.reset()
			for j, r := range hay {
				row.step(p.fwd[r])
				require.Equal(t, slowLCS(needle, hay[:j+1]), row.length(),
					"needle=%q hay=%q", string(needle), string(hay[:j+1]))
			}
		}
	}
}

func TestPartialRatio_MatchesDynamicProgramming(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	alphabet := []rune("aeiorstnl ")

	for range 500 {
		a := randomRunes(rng, alphabet, rng.IntN(20))
		b := randomRunes(rng, alphabet, rng.IntN(40))
		assert.Equal(t, slowPartialRatio(a, b), PartialRatio(string(a), string(b)),
			"a=%q b=%q", string(a), string(b))
	}
}

func TestPartialRatio_TableMatchesDynamicProgramming(t *testing.T) {
	pairs := [][2]string{
		{"Paracetamol", "give paracetamol for three days"},
		{"ibuprofen", "ibuprofn for two days"},
		{"fenac", "nacl solution"},
		{"xyz", "abc"},
		{"amoxicillin", "amoxicilin five days"},
		{"cetirizine", "setirizine"},
		{"omeprazole", "omeprazol"},
	}
	for _, p := range pairs {
		assert.Equal(t, slowPartialRatio(fold(p[0]), fold(p[1])), PartialRatio(p[0], p[1]), p)
	}
}

func TestRatioBound(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 1))
	alphabet := []rune("abcdefgh ")

	for range 300 {
		text := randomRunes(rng, alphabet, rng.IntN(30)+1)
		needle := randomRunes(rng, alphabet, rng.IntN(12)+1)

		sc := newScorer(text)
		p := newPattern(needle)
		assert.GreaterOrEqual(t, sc.bound(p), sc.ratio(p), "needle=%q text=%q", string(needle), string(text))
	}

	assert.Equal(t, 0, ratioBound(0, 5))
	assert.Equal(t, 100, ratioBound(5, 5))
}

func TestMatch_LargeVocabularyAgreesWithSlowScorer(t *testing.T) {
	vocab := NewVocabulary(append(syntheticNames(500, 17), "Paracetamol", "Ibuprofen"))
	text := fold("patient needs ibuprofn two tablets and paracetamol for three days after meal")

	got := Match(text, vocab, 80)

	var want []string
	for _, name := range vocab.Names() {
		if slowPartialRatio(fold(cleanName(name)), text) >= 80 {
			want = append(want, name)
		}
	}
	assert.Equal(t, want, candidateNames(got))
	assert.Contains(t, candidateNames(got), "Paracetamol")
	assert.Contains(t, candidateNames(got), "Ibuprofen")
}

func syntheticNames(n int, seed uint64) []string {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	syllables := []string{"ra", "zo", "mel", "tin", "pra", "cil", "dox", "vir", "sta", "lol", "pam", "zep"}
	out := make([]string, n)
	for i := range out {
		var b strings.Builder
		for range rng.IntN(3) + 2 {
			b.WriteString(syllables[rng.IntN(len(syllables))])
		}
		out[i] = fmt.Sprintf("%s %dmg", b.String(), (rng.IntN(9)+1)*50)
	}
	return out
}

func candidateNames(cs []Candidate) []string {
	if len(cs) == 0 {
		return nil
	}
	return names(cs)
}

func BenchmarkExtract_LargeVocabulary(b *testing.B) {
	vocab := NewVocabulary(append(syntheticNames(20000, 42), "Paracetamol", "Ibuprofen"))
	text := "Ibuprofen for five days two tablets after meal, paracetamol three days one tablet before meal"
	cfg := DefaultConfig()

	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		if _, err := vocab.Extract(text, cfg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPartialRatio(b *testing.B) {
	for range b.N {
		PartialRatio("amoxicillin", "give the patient amoxicilin five days two tablets before meal")
	}
}
