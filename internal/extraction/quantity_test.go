package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractQuantities(t *testing.T) {
	tests := []struct {
		segment string
		want    Quantities
	}{
		{"paracetamol for three days two tablets", Quantities{Days: 3, Dosage: 2}},
		{"10 days 2 tablets", Quantities{Days: 10, Dosage: 2}},
		{"Ten Days, Four Tablets", Quantities{Days: 10, Dosage: 4}},
		{"one tablet a day for seven days", Quantities{Days: 7, Dosage: 1}},
		{"fivedays", Quantities{Days: 5, Dosage: 1}},
		{"to tablets", Quantities{Days: 1, Dosage: 2}},
		{"two\ttablets\nsix  days", Quantities{Days: 6, Dosage: 2}},
		{"x12 days", Quantities{Days: 12, Dosage: 1}},
		{"0 days 0 tablets", Quantities{Days: 1, Dosage: 1}},
		{"eleven days", Quantities{Days: 1, Dosage: 1}},
		{"99999999999999999999 days", Quantities{Days: 1, Dosage: 1}},
		{"twice a day", Quantities{Days: 1, Dosage: 1}},
		{"", Quantities{Days: 1, Dosage: 1}},
		// "to" is a number word and no word boundary is required.
		{"start today", Quantities{Days: 2, Dosage: 1}},
		{"3 days then 5 days", Quantities{Days: 3, Dosage: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.segment, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractQuantities(tt.segment))
		})
	}
}

func TestExtractQuantities_FullWidthDigits(t *testing.T) {
	// NFKC folds full-width digits to ASCII before scanning.
	assert.Equal(t, Quantities{Days: 3, Dosage: 1}, ExtractQuantities("３ days"))
}
