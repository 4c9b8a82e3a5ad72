package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartialRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"contained", "Paracetamol", "give paracetamol for three days", 100},
		{"case-insensitive", "PARACETAMOL", "paracetamol", 100},
		{"argument order does not matter", "xxabcxx", "abc", 100},
		{"one letter dropped", "ibuprofen", "ibuprofn for two days", 94},
		{"empty needle", "", "paracetamol", 0},
		{"both empty", "", "", 0},
		{"nothing in common", "xyz", "abc", 0},
		{"partial overlap at the start", "fenac", "nacl solution", 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PartialRatio(tt.a, tt.b))
		})
	}
}

func TestPartialRatio_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"amoxicillin", "amoxicilin five days"},
		{"cetirizine", "setirizine"},
		{"omeprazole", "omeprazol"},
	}
	for _, p := range pairs {
		assert.Equal(t, PartialRatio(p[0], p[1]), PartialRatio(p[1], p[0]), p)
	}
}

func TestMatch(t *testing.T) {
	vocab := NewVocabulary([]string{"Ibuprofen", "Vitamin D3", "Paracetamol"})
	text := fold("ibuprofn and d3 vitamin and paracetamol")

	got := Match(text, vocab, 85)

	assert.Equal(t, []Candidate{
		{Name: "Ibuprofen", Score: 94, Start: 0, Located: false},
		{Name: "Paracetamol", Score: 100, Start: 28, Located: true},
	}, got)
}

func TestMatch_ThresholdZeroKeepsEverything(t *testing.T) {
	vocab := NewVocabulary([]string{"Zinc", "Paracetamol"})
	got := Match(fold("ibuprofen"), vocab, 0)

	assert.Len(t, got, 2)
	assert.Nil(t, Match(fold("ibuprofen"), nil, 0))
}

func TestRank(t *testing.T) {
	in := []Candidate{
		{Name: "a", Score: 85, Start: 4},
		{Name: "b", Score: 100, Start: 30},
		{Name: "c", Score: 85, Start: 2},
		{Name: "d", Score: 100, Start: 30},
		{Name: "e", Score: 90, Start: 0},
	}

	got := Rank(in, 4)

	assert.Equal(t, []string{"b", "d", "e", "c"}, names(got))
	assert.Equal(t, "a", in[0].Name, "input must not be reordered")
	assert.Empty(t, Rank(in, 0))
	assert.Len(t, Rank(in, 10), 5)
}

func TestSegment(t *testing.T) {
	ranked := []Candidate{{Start: 10}, {Start: 0}, {Start: 25}}

	got := Segment(ranked, 40)

	assert.Equal(t, []Span{{Start: 10, End: 0}, {Start: 0, End: 25}, {Start: 25, End: 40}}, got)
	assert.True(t, got[0].Empty())
	assert.False(t, got[1].Empty())
	assert.Empty(t, Segment(nil, 40))
}

func names(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}
