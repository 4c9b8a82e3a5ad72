// Package handlers provides HTTP handlers for the prescriptor API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/drfirst/rx-dictation/internal/domain/prescription"
	"github.com/drfirst/rx-dictation/internal/extraction"
	"github.com/drfirst/rx-dictation/internal/medicine"
	"github.com/drfirst/rx-dictation/internal/suggest"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	encodeBody(w, v)
}

func encodeBody(w http.ResponseWriter, v any) {
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, extraction.ErrInvalidConfiguration),
		errors.Is(err, suggest.ErrNoSymptoms),
		errors.Is(err, prescription.ErrInvalidPatient),
		errors.Is(err, prescription.ErrInvalidLine):
		return http.StatusBadRequest
	case errors.Is(err, extraction.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, medicine.ErrNotFound),
		errors.Is(err, prescription.ErrNotFound),
		errors.Is(err, prescription.ErrLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, prescription.ErrFinalized),
		errors.Is(err, prescription.ErrNoMedications),
		errors.Is(err, prescription.ErrAlreadyCreated),
		errors.Is(err, prescription.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, suggest.ErrSuggestionsUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
