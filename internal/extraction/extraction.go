// Package extraction turns a dictated, possibly misheard sentence into
// structured prescription lines.
//
// The pipeline is a straight-line transform: every vocabulary entry is
// scored against the text with a partial-match ratio, the qualifying
// candidates are ranked and truncated, the text is cut into one span per
// candidate, and each span is scanned for a day count, a tablet count and a
// meal-time keyword. Nothing is cached between calls, so all functions here
// are safe for concurrent use.
package extraction

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	DefaultThreshold = 80
	DefaultTopK      = 5
)

var (
	// ErrInvalidConfiguration is returned for a threshold outside [0,100] or
	// a negative topK.
	ErrInvalidConfiguration = errors.New("invalid extraction configuration")
	// ErrExtractionFailed is returned when the input cannot be processed.
	// No records are returned with it.
	ErrExtractionFailed = errors.New("extraction failed")
)

// Config holds the matching parameters
type Config struct {
	// Threshold is the minimum similarity score (0-100) a vocabulary entry
	// needs to become a candidate.
	Threshold int `json:"threshold" mapstructure:"threshold"`
	// TopK bounds the number of records returned.
	TopK int `json:"top_k" mapstructure:"top_k"`
}

// DefaultConfig returns threshold 80 and top 5
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, TopK: DefaultTopK}
}

// Validate checks the configuration without clamping it
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 100 {
		return fmt.Errorf("%w: threshold %d not in [0,100]", ErrInvalidConfiguration, c.Threshold)
	}
	if c.TopK < 0 {
		return fmt.Errorf("%w: top_k %d is negative", ErrInvalidConfiguration, c.TopK)
	}
	return nil
}

// PrescriptionRecord is one extracted prescription line
type PrescriptionRecord struct {
	MedicineName string   `json:"medicine_name"`
	NumberOfDays int      `json:"number_of_days"`
	DosagePerDay int      `json:"dosage_per_day"`
	MealTime     MealTime `json:"meal_time"`
}

// Analysis exposes the intermediate steps of one extraction. Candidates and
// Spans are index-aligned with Records.
type Analysis struct {
	Candidates []Candidate          `json:"candidates"`
	Spans      []Span               `json:"spans"`
	Records    []PrescriptionRecord `json:"records"`
}

// Extract runs the pipeline over text using vocabulary as the reference
// names. Empty text, an empty vocabulary or no qualifying match give an empty
// result, not an error.
func Extract(text string, vocabulary []string, cfg Config) ([]PrescriptionRecord, error) {
	return NewVocabulary(vocabulary).Extract(text, cfg)
}

// Extract runs the pipeline against a prepared vocabulary
func (v *Vocabulary) Extract(text string, cfg Config) ([]PrescriptionRecord, error) {
	a, err := v.Analyze(text, cfg)
	if err != nil {
		return nil, err
	}
	return a.Records, nil
}

// Analyze runs the pipeline and keeps the ranked candidates and their spans
func (v *Vocabulary) Analyze(text string, cfg Config) (*Analysis, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrExtractionFailed)
	}

	a := &Analysis{
		Candidates: []Candidate{},
		Spans:      []Span{},
		Records:    []PrescriptionRecord{},
	}
	if text == "" || v.Len() == 0 || cfg.TopK == 0 {
		return a, nil
	}

	normalized := fold(text)
	ranked := Rank(Match(normalized, v, cfg.Threshold), cfg.TopK)
	spans := Segment(ranked, len(normalized))

	a.Candidates = ranked
	a.Spans = spans
	a.Records = make([]PrescriptionRecord, len(ranked))
	for i, c := range ranked {
		seg := spans[i].slice(normalized)
		q := extractQuantities(seg)
		a.Records[i] = PrescriptionRecord{
			MedicineName: c.Name,
			NumberOfDays: q.Days,
			DosagePerDay: q.Dosage,
			MealTime:     classifyMealTime(seg),
		}
	}
	return a, nil
}
