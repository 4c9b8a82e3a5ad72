package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/drfirst/rx-dictation/internal/api/middleware"
	"github.com/drfirst/rx-dictation/internal/domain/prescription"
	"github.com/drfirst/rx-dictation/internal/extraction"
	fhir "github.com/drfirst/rx-dictation/internal/fhir/r5"
	"github.com/drfirst/rx-dictation/internal/observability/metrics"
	"github.com/drfirst/rx-dictation/internal/suggest"
)

// Store persists prescription aggregates
type Store interface {
	Save(ctx context.Context, agg *prescription.Aggregate) error
	Load(ctx context.Context, id string) (*prescription.Aggregate, error)
	Events(ctx context.Context, id string) ([]*prescription.Event, error)
}

// PrescriptionHandler handles prescription endpoints
type PrescriptionHandler struct {
	repo      Store
	extractor Extractor
	catalog   Catalog
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewPrescriptionHandler creates a new handler. m may be nil.
func NewPrescriptionHandler(repo Store, extractor Extractor, catalog Catalog, m *metrics.Metrics, logger *zap.Logger) *PrescriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionHandler{
		repo:      repo,
		extractor: extractor,
		catalog:   catalog,
		metrics:   m,
		logger:    logger,
	}
}

// Routes returns the handler routes
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/events", h.GetEvents)
		r.Get("/fhir", h.FHIR)
		r.Post("/medications", h.AddMedication)
		r.Put("/medications/{index}", h.UpdateMedication)
		r.Delete("/medications", h.ClearMedications)
		r.Post("/dictations", h.Dictate)
		r.Post("/finalize", h.Finalize)
	})
	return r
}

// CreateRequest is the request body for creating a prescription
type CreateRequest struct {
	Patient  prescription.Patient `json:"patient"`
	Symptoms string               `json:"symptoms"`
}

// Create handles POST /prescriptions
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("prescription-handler").Start(r.Context(), "create_prescription")
	defer span.End()

	var req CreateRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	prescriptionID := uuid.New().String()
	span.SetAttributes(attribute.String("prescription_id", prescriptionID))

	agg := prescription.NewAggregate(prescriptionID)
	if err := agg.Create(middleware.GetDoctorID(ctx), req.Patient, req.Symptoms); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	if !h.save(ctx, w, agg) {
		return
	}
	if h.metrics != nil {
		h.metrics.PrescriptionsCreated.Inc()
	}

	h.logger.Info("prescription created",
		zap.String("id", prescriptionID),
		zap.String("request_id", middleware.GetRequestID(ctx)),
		zap.String("doctor_id", agg.DoctorID()),
	)
	writeJSON(w, http.StatusCreated, agg.Snapshot())
}

// Get handles GET /prescriptions/{id}
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	agg, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, agg.Snapshot())
}

// GetEvents handles GET /prescriptions/{id}/events
func (h *PrescriptionHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	agg, ok := h.load(w, r)
	if !ok {
		return
	}
	events, err := h.repo.Events(r.Context(), agg.ID())
	if err != nil {
		h.logger.Error("failed to get events", zap.Error(err))
		jsonError(w, "failed to get events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// FHIR handles GET /prescriptions/{id}/fhir
func (h *PrescriptionHandler) FHIR(w http.ResponseWriter, r *http.Request) {
	agg, ok := h.load(w, r)
	if !ok {
		return
	}
	bundle := fhir.BuildBundle(Order(agg))
	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(http.StatusOK)
	encodeBody(w, bundle)
}

// Order converts an aggregate into its FHIR rendering input
func Order(agg *prescription.Aggregate) *fhir.Order {
	p := agg.Patient()
	snap := agg.Snapshot()
	return &fhir.Order{
		ID:         agg.ID(),
		DoctorID:   agg.DoctorID(),
		Patient:    fhir.PatientInfo{Name: p.Name, Age: p.Age, Gender: p.Gender},
		Symptoms:   agg.Symptoms(),
		Final:      agg.Status() == prescription.StatusFinal,
		Version:    agg.Version(),
		AuthoredOn: snap.UpdatedAt,
		Lines:      agg.Records(),
	}
}

// MedicationRequest is the body of POST /prescriptions/{id}/medications.
// Source defaults to manual. Dictated and suggested lines fill a zero
// quantity with one tablet a day for one day.
type MedicationRequest struct {
	MedicineName string              `json:"medicine_name"`
	NumberOfDays int                 `json:"number_of_days"`
	DosagePerDay int                 `json:"dosage_per_day"`
	MealTime     extraction.MealTime `json:"meal_time,omitempty"`
	Source       prescription.Source `json:"source,omitempty"`
}

// AddMedication handles POST /prescriptions/{id}/medications
func (h *PrescriptionHandler) AddMedication(w http.ResponseWriter, r *http.Request) {
	var req MedicationRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		req.Source = prescription.SourceManual
	}
	if req.NumberOfDays < 0 || req.DosagePerDay < 0 {
		jsonError(w, "number_of_days and dosage_per_day must not be negative", http.StatusBadRequest)
		return
	}

	rec := extraction.PrescriptionRecord{
		MedicineName: req.MedicineName,
		NumberOfDays: req.NumberOfDays,
		DosagePerDay: req.DosagePerDay,
		MealTime:     req.MealTime,
	}
	switch req.Source {
	case prescription.SourceManual:
		m, err := h.catalog.Lookup(req.MedicineName)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec.MedicineName = m.Name
	default:
		def := suggest.Record(req.MedicineName)
		if rec.NumberOfDays == 0 {
			rec.NumberOfDays = def.NumberOfDays
		}
		if rec.DosagePerDay == 0 {
			rec.DosagePerDay = def.DosagePerDay
		}
	}

	agg, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := agg.AddMedication(rec, req.Source); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	if !h.save(r.Context(), w, agg) {
		return
	}
	writeJSON(w, http.StatusCreated, agg.Snapshot())
}

// UpdateRequest is the body of PUT /prescriptions/{id}/medications/{index}
type UpdateRequest struct {
	NumberOfDays int                 `json:"number_of_days"`
	DosagePerDay int                 `json:"dosage_per_day"`
	MealTime     extraction.MealTime `json:"meal_time,omitempty"`
}

// UpdateMedication handles PUT /prescriptions/{id}/medications/{index}
func (h *PrescriptionHandler) UpdateMedication(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		jsonError(w, "index must be an integer", http.StatusBadRequest)
		return
	}
	var req UpdateRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	agg, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := agg.UpdateMedication(index, req.NumberOfDays, req.DosagePerDay, req.MealTime); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	if !h.save(r.Context(), w, agg) {
		return
	}
	writeJSON(w, http.StatusOK, agg.Snapshot())
}

// ClearMedications handles DELETE /prescriptions/{id}/medications
func (h *PrescriptionHandler) ClearMedications(w http.ResponseWriter, r *http.Request) {
	agg, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := agg.ClearMedications(); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	if !h.save(r.Context(), w, agg) {
		return
	}
	writeJSON(w, http.StatusOK, agg.Snapshot())
}

// DictationRequest is the body of POST /prescriptions/{id}/dictations
type DictationRequest struct {
	Text string `json:"text"`
}

// DictationResponse carries the extracted records and the updated prescription
type DictationResponse struct {
	Records      []extraction.PrescriptionRecord `json:"records"`
	Prescription prescription.Snapshot           `json:"prescription"`
}

// Dictate handles POST /prescriptions/{id}/dictations. Every extracted
// record is appended; a failed extraction adds nothing.
func (h *PrescriptionHandler) Dictate(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("prescription-handler").Start(r.Context(), "dictate_prescription")
	defer span.End()

	var req DictationRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	agg, ok := h.load(w, r.WithContext(ctx))
	if !ok {
		return
	}
	if agg.Status() == prescription.StatusFinal {
		jsonError(w, prescription.ErrFinalized.Error(), http.StatusConflict)
		return
	}

	records, err := h.extractor.ExtractFrom(ctx, metrics.SourceDictation, req.Text)
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	for _, rec := range records {
		if err := agg.AddMedication(rec, prescription.SourceDictation); err != nil {
			jsonError(w, err.Error(), statusFor(err))
			return
		}
	}
	if !h.save(ctx, w, agg) {
		return
	}

	span.SetAttributes(
		attribute.String("prescription_id", agg.ID()),
		attribute.Int("records", len(records)),
	)
	writeJSON(w, http.StatusOK, DictationResponse{Records: records, Prescription: agg.Snapshot()})
}

// Finalize handles POST /prescriptions/{id}/finalize
func (h *PrescriptionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	agg, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := agg.Finalize(); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	if !h.save(r.Context(), w, agg) {
		return
	}
	if h.metrics != nil {
		h.metrics.PrescriptionsFinalized.Inc()
	}
	h.logger.Info("prescription finalized",
		zap.String("id", agg.ID()),
		zap.Int("lines", len(agg.Lines())),
	)
	writeJSON(w, http.StatusOK, agg.Snapshot())
}

// load fetches the prescription named in the URL. Prescriptions of other
// doctors are reported as not found.
func (h *PrescriptionHandler) load(w http.ResponseWriter, r *http.Request) (*prescription.Aggregate, bool) {
	id := chi.URLParam(r, "id")
	agg, err := h.repo.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, prescription.ErrNotFound) {
			jsonError(w, "prescription not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.Error("load failed", zap.String("id", id), zap.Error(err))
		jsonError(w, "failed to load prescription", http.StatusInternalServerError)
		return nil, false
	}
	if doctor := middleware.GetDoctorID(r.Context()); doctor != "" && agg.DoctorID() != doctor {
		jsonError(w, "prescription not found", http.StatusNotFound)
		return nil, false
	}
	return agg, true
}

func (h *PrescriptionHandler) save(ctx context.Context, w http.ResponseWriter, agg *prescription.Aggregate) bool {
	if err := h.repo.Save(ctx, agg); err != nil {
		if errors.Is(err, prescription.ErrConcurrentModification) {
			jsonError(w, err.Error(), http.StatusConflict)
			return false
		}
		h.logger.Error("save failed", zap.String("id", agg.ID()), zap.Error(err))
		jsonError(w, "failed to save prescription", http.StatusInternalServerError)
		return false
	}
	return true
}
