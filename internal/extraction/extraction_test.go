package extraction

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var basicVocabulary = []string{"Paracetamol", "Ibuprofen"}

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		vocab []string
		want  []PrescriptionRecord
	}{
		{
			name:  "single medicine with quantities after meal",
			text:  "Paracetamol for three days two tablets after meal",
			vocab: basicVocabulary,
			want: []PrescriptionRecord{
				{MedicineName: "Paracetamol", NumberOfDays: 3, DosagePerDay: 2, MealTime: AfterMeal},
			},
		},
		{
			name:  "quantities in reverse order before meal",
			text:  "Ibuprofen one tablet before meal for five days",
			vocab: basicVocabulary,
			want: []PrescriptionRecord{
				{MedicineName: "Ibuprofen", NumberOfDays: 5, DosagePerDay: 1, MealTime: BeforeMeal},
			},
		},
		{
			name:  "no medicine mentioned",
			text:  "patient feels fine, no complaints",
			vocab: basicVocabulary,
			want:  []PrescriptionRecord{},
		},
		{
			name:  "two medicines share a sentence",
			text:  "Paracetamol and Ibuprofen both for two days",
			vocab: basicVocabulary,
			want: []PrescriptionRecord{
				{MedicineName: "Paracetamol", NumberOfDays: 1, DosagePerDay: 1, MealTime: AfterMeal},
				{MedicineName: "Ibuprofen", NumberOfDays: 2, DosagePerDay: 1, MealTime: AfterMeal},
			},
		},
		{
			name:  "equal scores ordered by position not vocabulary",
			text:  "Paracetamol and Cetirizine",
			vocab: []string{"Cetirizine", "Paracetamol"},
			want: []PrescriptionRecord{
				{MedicineName: "Paracetamol", NumberOfDays: 1, DosagePerDay: 1, MealTime: AfterMeal},
				{MedicineName: "Cetirizine", NumberOfDays: 1, DosagePerDay: 1, MealTime: AfterMeal},
			},
		},
		{
			name:  "case and digits",
			text:  "PARACETAMOL 10 Days 3 Tablets Before Meal",
			vocab: basicVocabulary,
			want: []PrescriptionRecord{
				{MedicineName: "Paracetamol", NumberOfDays: 10, DosagePerDay: 3, MealTime: BeforeMeal},
			},
		},
		{
			name:  "empty text",
			text:  "",
			vocab: basicVocabulary,
			want:  []PrescriptionRecord{},
		},
		{
			name:  "empty vocabulary",
			text:  "Paracetamol for three days",
			vocab: nil,
			want:  []PrescriptionRecord{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.text, tt.vocab, DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_TopKBound(t *testing.T) {
	vocab := []string{"Aspirin", "Cetirizine", "Metformin", "Omeprazole", "Amlodipine", "Losartan", "Atorvastatin"}
	text := strings.Join(vocab, " and ")

	got, err := Extract(text, vocab, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, got, DefaultTopK)

	names := make([]string, len(got))
	for i, r := range got {
		names[i] = r.MedicineName
	}
	assert.Equal(t, vocab[:DefaultTopK], names)

	got, err = Extract(text, vocab, Config{Threshold: 80, TopK: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = Extract(text, vocab, Config{Threshold: 80, TopK: 0})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtract_InvariantsHold(t *testing.T) {
	vocab := []string{"Paracetamol", "Ibuprofen", "Amoxicillin", "Cetirizine", "Pantoprazole", "Azithromycin"}
	texts := []string{
		"Amoxicillin 0 days zero tablets",
		"ibuprofn to days and paracetamol for 3 days afternoon",
		"azithromycin azithromycin three tablets before meal then cetirizine",
		"pantoprazole 12 tablets for ten days before meal and amoxicilin after meal",
		"   ",
	}

	for _, text := range texts {
		a, err := NewVocabulary(vocab).Analyze(text, Config{Threshold: 60, TopK: 4})
		require.NoError(t, err)

		assert.LessOrEqual(t, len(a.Records), 4)
		require.Len(t, a.Candidates, len(a.Records))
		require.Len(t, a.Spans, len(a.Records))

		for i, r := range a.Records {
			assert.GreaterOrEqual(t, r.NumberOfDays, 1, text)
			assert.GreaterOrEqual(t, r.DosagePerDay, 1, text)
			assert.Contains(t, []MealTime{BeforeMeal, AfterMeal}, r.MealTime)
			assert.Equal(t, a.Candidates[i].Name, r.MedicineName)
			assert.GreaterOrEqual(t, a.Candidates[i].Score, 60)
			assert.LessOrEqual(t, a.Candidates[i].Score, 100)

			if i > 0 {
				prev, cur := a.Candidates[i-1], a.Candidates[i]
				ordered := prev.Score > cur.Score || (prev.Score == cur.Score && prev.Start <= cur.Start)
				assert.True(t, ordered, "candidates out of rank order in %q", text)
			}
		}
	}
}

func TestExtract_Deterministic(t *testing.T) {
	text := "ibuprofn to days and paracetamol for 3 days afternoon, cetirizine before meal"
	vocab := []string{"Paracetamol", "Ibuprofen", "Cetirizine"}

	first, err := Extract(text, vocab, Config{Threshold: 70, TopK: 5})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Extract(text, vocab, Config{Threshold: 70, TopK: 5})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

// A better-scoring mention later in the text is ranked first, so its span
// runs backwards and reads as empty while the earlier, weaker mention's span
// covers the whole sentence.
func TestExtract_RankOrderedSpans(t *testing.T) {
	text := "Ibuprofn for two days then Paracetamol three tablets before meal"

	a, err := NewVocabulary(basicVocabulary).Analyze(text, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []Candidate{
		{Name: "Paracetamol", Score: 100, Start: 27, Located: true},
		{Name: "Ibuprofen", Score: 94, Start: 0, Located: false},
	}, a.Candidates)
	assert.Equal(t, []Span{{Start: 27, End: 0}, {Start: 0, End: len(text)}}, a.Spans)
	assert.True(t, a.Spans[0].Empty())

	assert.Equal(t, []PrescriptionRecord{
		{MedicineName: "Paracetamol", NumberOfDays: 1, DosagePerDay: 1, MealTime: AfterMeal},
		{MedicineName: "Ibuprofen", NumberOfDays: 2, DosagePerDay: 3, MealTime: BeforeMeal},
	}, a.Records)
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		cfg  Config
		want error
	}{
		{"negative threshold", "Paracetamol", Config{Threshold: -1, TopK: 5}, ErrInvalidConfiguration},
		{"threshold above 100", "Paracetamol", Config{Threshold: 101, TopK: 5}, ErrInvalidConfiguration},
		{"negative top k", "Paracetamol", Config{Threshold: 80, TopK: -1}, ErrInvalidConfiguration},
		{"invalid config wins over empty text", "", Config{Threshold: 80, TopK: -3}, ErrInvalidConfiguration},
		{"malformed utf-8", "Paracetamol \xff\xfe two days", DefaultConfig(), ErrExtractionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.text, basicVocabulary, tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Nil(t, got)
		})
	}
}

func TestConfig_ValidateBounds(t *testing.T) {
	assert.NoError(t, Config{Threshold: 0, TopK: 0}.Validate())
	assert.NoError(t, Config{Threshold: 100, TopK: 1000}.Validate())
	assert.NoError(t, DefaultConfig().Validate())
}

func TestVocabulary(t *testing.T) {
	v := NewVocabulary([]string{"Paracetamol", "  ", "", "PARACETAMOL ", "Vitamin D3", "Ibuprofen"})

	assert.Equal(t, 3, v.Len())
	assert.Equal(t, []string{"Paracetamol", "Vitamin D3", "Ibuprofen"}, v.Names())

	var empty *Vocabulary
	assert.Equal(t, 0, empty.Len())
	assert.Nil(t, empty.Names())
}
