package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/rx-dictation/internal/extraction"
	"github.com/drfirst/rx-dictation/internal/medicine"
	"github.com/drfirst/rx-dictation/pkg/circuitbreaker"
)

type fakeCompleter struct {
	reply  string
	err    error
	calls  int
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.reply, f.err
}

func testCatalog(n int) *medicine.Catalog {
	rows := make([]medicine.Medicine, n)
	for i := range rows {
		rows[i] = medicine.Medicine{Name: "Med" + string(rune('A'+i%26)) + strings.Repeat("x", i/26), Composition1: "C"}
	}
	return medicine.NewCatalog(rows)
}

func newBreaker(t *testing.T) *circuitbreaker.CircuitBreaker {
	cfg := circuitbreaker.DefaultConfig("suggest-test")
	cfg.Timeout = time.Hour
	cb, err := circuitbreaker.New(cfg, nil, nil)
	require.NoError(t, err)
	return cb
}

func TestSuggest(t *testing.T) {
	fc := &fakeCompleter{reply: " Paracetamol , Cetirizine,, \n"}
	var outcomes []string
	s := NewService(fc, testCatalog(40), newBreaker(t), DefaultConfig(), func(o string) { outcomes = append(outcomes, o) }, nil)

	got, err := s.Suggest(context.Background(), "fever and sneezing")
	require.NoError(t, err)
	assert.Equal(t, []string{"Paracetamol", "Cetirizine"}, got)
	assert.Equal(t, []string{OutcomeOK}, outcomes)

	assert.Contains(t, fc.prompt, "Given the following patient symptoms: fever and sneezing")
	assert.Equal(t, 32, strings.Count(fc.prompt, "\n- "))
}

func TestSuggest_NoSymptoms(t *testing.T) {
	fc := &fakeCompleter{}
	s := NewService(fc, testCatalog(1), newBreaker(t), DefaultConfig(), nil, nil)

	_, err := s.Suggest(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNoSymptoms)
	assert.Zero(t, fc.calls)
}

func TestSuggest_BreakerOpens(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("connection refused")}
	var outcomes []string
	s := NewService(fc, testCatalog(3), newBreaker(t), DefaultConfig(), func(o string) { outcomes = append(outcomes, o) }, nil)

	for i := 0; i < 3; i++ {
		_, err := s.Suggest(context.Background(), "cough")
		assert.ErrorIs(t, err, ErrSuggestionsUnavailable)
	}
	_, err := s.Suggest(context.Background(), "cough")
	assert.ErrorIs(t, err, ErrSuggestionsUnavailable)

	assert.Equal(t, 3, fc.calls)
	assert.Equal(t, []string{OutcomeError, OutcomeError, OutcomeError, OutcomeUnavailable}, outcomes)
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("headache", []medicine.Medicine{
		{Name: "Augmentin 625 Duo Tablet", Composition1: "Amoxycillin (500mg)", Composition2: "Clavulanic Acid (125mg)"},
		{Name: "Dolo 650"},
	})

	assert.Equal(t, "Given the following patient symptoms: headache\n"+
		"Suggest the most relevant medicines from this list, based on their compositions:\n"+
		"\n- Augmentin 625 Duo Tablet: Amoxycillin (500mg) + Clavulanic Acid (125mg)"+
		"\n- Dolo 650: "+
		"\nReturn only the medicine names, comma separated.", prompt)
}

func TestParseSuggestions(t *testing.T) {
	assert.Equal(t, []string{}, ParseSuggestions(""))
	assert.Equal(t, []string{"A"}, ParseSuggestions(" ,A, "))
}

func TestRecord(t *testing.T) {
	assert.Equal(t, extraction.PrescriptionRecord{
		MedicineName: "Cetirizine", NumberOfDays: 1, DosagePerDay: 1, MealTime: extraction.AfterMeal,
	}, Record("Cetirizine"))
}

func TestOpenAICompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "user", req.Messages[1].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Paracetamol, Ibuprofen"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/v1"
	got, err := NewOpenAICompleter(cfg).Complete(context.Background(), "sys", "fever")
	require.NoError(t, err)
	assert.Equal(t, "Paracetamol, Ibuprofen", got)
}
