package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/drfirst/rx-dictation/internal/api/middleware"
	"github.com/drfirst/rx-dictation/internal/extraction"
	"github.com/drfirst/rx-dictation/internal/medicine"
	"github.com/drfirst/rx-dictation/internal/observability/metrics"
)

// Extractor turns dictated text into prescription records. source labels
// the caller in metrics.
type Extractor interface {
	ExtractFrom(ctx context.Context, source, text string) ([]extraction.PrescriptionRecord, error)
}

// Suggester proposes medicines for symptoms
type Suggester interface {
	Suggest(ctx context.Context, symptoms string) ([]string, error)
}

// Catalog looks up medicine details
type Catalog interface {
	Lookup(name string) (medicine.Medicine, error)
}

// ExtractionHandler serves the stateless extraction, suggestion and
// catalog endpoints
type ExtractionHandler struct {
	extractor Extractor
	suggester Suggester
	catalog   Catalog
	logger    *zap.Logger
}

// NewExtractionHandler creates a new handler. suggester may be nil, in
// which case suggestions answer 503.
func NewExtractionHandler(extractor Extractor, suggester Suggester, catalog Catalog, logger *zap.Logger) *ExtractionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractionHandler{extractor: extractor, suggester: suggester, catalog: catalog, logger: logger}
}

// Mount registers the routes on r
func (h *ExtractionHandler) Mount(r chi.Router) {
	r.Post("/extractions", h.Extract)
	r.Post("/suggestions", h.Suggest)
	r.Get("/medicines/{name}", h.Medicine)
}

// ExtractRequest is the body of POST /extractions
type ExtractRequest struct {
	Text string `json:"text"`
}

// ExtractResponse lists the records found in the text
type ExtractResponse struct {
	Records []extraction.PrescriptionRecord `json:"records"`
}

// Extract handles POST /extractions
func (h *ExtractionHandler) Extract(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("extraction-handler").Start(r.Context(), "extract_text")
	defer span.End()

	var req ExtractRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	records, err := h.extractor.ExtractFrom(ctx, metrics.SourceAPI, req.Text)
	if err != nil {
		h.logger.Warn("extraction failed",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(ctx)),
		)
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	span.SetAttributes(attribute.Int("records", len(records)))

	writeJSON(w, http.StatusOK, ExtractResponse{Records: records})
}

// SuggestRequest is the body of POST /suggestions
type SuggestRequest struct {
	Symptoms string `json:"symptoms"`
}

// SuggestResponse lists the proposed medicine names
type SuggestResponse struct {
	Medicines []string `json:"medicines"`
}

// Suggest handles POST /suggestions
func (h *ExtractionHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	if h.suggester == nil {
		jsonError(w, "medicine suggestions are not configured", http.StatusServiceUnavailable)
		return
	}

	var req SuggestRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	names, err := h.suggester.Suggest(r.Context(), req.Symptoms)
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, SuggestResponse{Medicines: names})
}

// MedicineResponse is the catalog entry for one medicine
type MedicineResponse struct {
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Type         string `json:"type,omitempty"`
	Composition  string `json:"composition,omitempty"`
}

// Medicine handles GET /medicines/{name}
func (h *ExtractionHandler) Medicine(w http.ResponseWriter, r *http.Request) {
	m, err := h.catalog.Lookup(chi.URLParam(r, "name"))
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, MedicineResponse{
		Name:         m.Name,
		Manufacturer: m.Manufacturer,
		Type:         m.Type,
		Composition:  m.Composition(),
	})
}
