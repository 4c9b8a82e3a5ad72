// Package suggest asks a language model which catalog medicines fit a
// patient's symptoms.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/rx-dictation/internal/extraction"
	"github.com/drfirst/rx-dictation/internal/medicine"
	"github.com/drfirst/rx-dictation/pkg/circuitbreaker"
)

var (
	// ErrNoSymptoms is returned for blank symptoms
	ErrNoSymptoms = errors.New("symptoms are required")
	// ErrSuggestionsUnavailable is returned when the model cannot be reached
	// or its circuit is open
	ErrSuggestionsUnavailable = errors.New("medicine suggestions unavailable")
)

const systemPrompt = "You are a clinical assistant. Answer with medicine names only."

// Config holds the model endpoint settings
type Config struct {
	// BaseURL is an OpenAI-compatible API root, such as a local Ollama
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	// CatalogSample is how many catalog rows are listed in the prompt
	CatalogSample int `mapstructure:"catalog_sample"`
}

// DefaultConfig targets a local Ollama serving llama3
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:11434/v1",
		Model:         "llama3",
		Timeout:       60 * time.Second,
		CatalogSample: 32,
	}
}

// Completer sends one prompt to a model and returns its text reply
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Catalog supplies the medicines offered to the model
type Catalog interface {
	Head(n int) []medicine.Medicine
}

// Outcome labels for the suggestion counter
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
)

// Service builds prompts, calls the model through a breaker and parses the reply
type Service struct {
	completer Completer
	catalog   Catalog
	breaker   *circuitbreaker.CircuitBreaker
	config    Config
	observe   func(outcome string)
	logger    *zap.Logger
}

// NewService creates a suggestion service. observe may be nil.
func NewService(completer Completer, catalog Catalog, breaker *circuitbreaker.CircuitBreaker, cfg Config, observe func(string), logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observe == nil {
		observe = func(string) {}
	}
	return &Service{
		completer: completer,
		catalog:   catalog,
		breaker:   breaker,
		config:    cfg,
		observe:   observe,
		logger:    logger,
	}
}

// Suggest returns medicine names proposed for symptoms, in the model's order
func (s *Service) Suggest(ctx context.Context, symptoms string) ([]string, error) {
	symptoms = strings.TrimSpace(symptoms)
	if symptoms == "" {
		return nil, ErrNoSymptoms
	}

	prompt := BuildPrompt(symptoms, s.catalog.Head(s.config.CatalogSample))

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	reply, err := circuitbreaker.Execute(ctx, s.breaker, func(ctx context.Context) (string, error) {
		return s.completer.Complete(ctx, systemPrompt, prompt)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			s.observe(OutcomeUnavailable)
		} else {
			s.observe(OutcomeError)
		}
		s.logger.Warn("medicine suggestion failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSuggestionsUnavailable, err)
	}

	names := ParseSuggestions(reply)
	s.observe(OutcomeOK)
	s.logger.Info("medicines suggested", zap.Int("count", len(names)))
	return names, nil
}

// BuildPrompt lists symptoms and the medicines with their compositions
func BuildPrompt(symptoms string, medicines []medicine.Medicine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given the following patient symptoms: %s\n", symptoms)
	b.WriteString("Suggest the most relevant medicines from this list, based on their compositions:\n")
	for _, m := range medicines {
		fmt.Fprintf(&b, "\n- %s: %s", m.Name, m.Composition())
	}
	b.WriteString("\nReturn only the medicine names, comma separated.")
	return b.String()
}

// ParseSuggestions splits a comma-separated reply into trimmed, non-empty names
func ParseSuggestions(reply string) []string {
	names := []string{}
	for _, part := range strings.Split(reply, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Record turns an accepted suggestion into a prescription line with the
// default quantities
func Record(name string) extraction.PrescriptionRecord {
	return extraction.PrescriptionRecord{
		MedicineName: name,
		NumberOfDays: 1,
		DosagePerDay: 1,
		MealTime:     extraction.AfterMeal,
	}
}
