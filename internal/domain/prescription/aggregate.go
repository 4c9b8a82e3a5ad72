// Package prescription implements the prescription session aggregate, its
// domain events and the Postgres event store.
package prescription

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drfirst/rx-dictation/internal/extraction"
)

var (
	ErrNotFound               = errors.New("prescription not found")
	ErrAlreadyCreated         = errors.New("prescription already created")
	ErrInvalidPatient         = errors.New("invalid patient")
	ErrInvalidLine            = errors.New("invalid medication line")
	ErrLineNotFound           = errors.New("medication line not found")
	ErrFinalized              = errors.New("prescription is finalized")
	ErrNoMedications          = errors.New("prescription has no medications")
	ErrConcurrentModification = errors.New("prescription was modified concurrently")
)

// Bounds for hand-entered and edited lines
const (
	MinDays   = 1
	MaxDays   = 30
	MinDosage = 1
	MaxDosage = 10
	MinAge    = 1
	MaxAge    = 120
)

// Status represents prescription status
type Status string

const (
	StatusNew   Status = ""
	StatusDraft Status = "draft"
	StatusFinal Status = "final"
)

// Source says where a line came from
type Source string

const (
	SourceDictation  Source = "dictation"
	SourceManual     Source = "manual"
	SourceSuggestion Source = "suggestion"
)

func (s Source) valid() bool {
	switch s {
	case SourceDictation, SourceManual, SourceSuggestion:
		return true
	}
	return false
}

// Patient is the patient as captured at the visit
type Patient struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

// Validate checks the patient fields
func (p Patient) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPatient)
	}
	if p.Age < MinAge || p.Age > MaxAge {
		return fmt.Errorf("%w: age %d outside %d..%d", ErrInvalidPatient, p.Age, MinAge, MaxAge)
	}
	switch strings.ToLower(p.Gender) {
	case "male", "female", "other":
	default:
		return fmt.Errorf("%w: gender %q", ErrInvalidPatient, p.Gender)
	}
	return nil
}

// Line is one medicine on the prescription
type Line struct {
	extraction.PrescriptionRecord
	Source Source `json:"source"`
}

// Aggregate represents the prescription aggregate root
type Aggregate struct {
	id          string
	version     int
	status      Status
	doctorID    string
	patient     Patient
	symptoms    string
	lines       []Line
	createdAt   time.Time
	updatedAt   time.Time
	finalizedAt time.Time
	changes     []*Event
}

// NewAggregate creates a new prescription aggregate
func NewAggregate(id string) *Aggregate {
	return &Aggregate{id: id}
}

// ID returns the aggregate ID
func (a *Aggregate) ID() string { return a.id }

// Version returns the current version
func (a *Aggregate) Version() int { return a.version }

// Status returns the current status
func (a *Aggregate) Status() Status { return a.status }

// DoctorID returns the prescribing doctor
func (a *Aggregate) DoctorID() string { return a.doctorID }

// Patient returns the patient details
func (a *Aggregate) Patient() Patient { return a.patient }

// Symptoms returns the recorded symptoms
func (a *Aggregate) Symptoms() string { return a.symptoms }

// CreatedAt returns when the session was opened
func (a *Aggregate) CreatedAt() time.Time { return a.createdAt }

// Changes returns uncommitted events
func (a *Aggregate) Changes() []*Event { return a.changes }

// ClearChanges clears uncommitted events
func (a *Aggregate) ClearChanges() { a.changes = nil }

// Lines returns a copy of the medication lines
func (a *Aggregate) Lines() []Line {
	out := make([]Line, len(a.lines))
	copy(out, a.lines)
	return out
}

// Records returns the lines without their source
func (a *Aggregate) Records() []extraction.PrescriptionRecord {
	out := make([]extraction.PrescriptionRecord, len(a.lines))
	for i, l := range a.lines {
		out[i] = l.PrescriptionRecord
	}
	return out
}

// Create opens the session for a doctor and patient
func (a *Aggregate) Create(doctorID string, patient Patient, symptoms string) error {
	if a.status != StatusNew {
		return ErrAlreadyCreated
	}
	if err := patient.Validate(); err != nil {
		return err
	}
	patient.Name = strings.TrimSpace(patient.Name)
	return a.raise(EventPrescriptionCreated, doctorID, &PrescriptionCreatedData{
		PrescriptionID: a.id,
		DoctorID:       doctorID,
		Patient:        patient,
		Symptoms:       strings.TrimSpace(symptoms),
	})
}

// AddMedication appends a line. Every line needs at least one day and one
// dose per day; the upper bounds only apply to manual lines.
func (a *Aggregate) AddMedication(rec extraction.PrescriptionRecord, source Source) error {
	if err := a.editable(); err != nil {
		return err
	}
	if !source.valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidLine, source)
	}
	rec.MedicineName = strings.TrimSpace(rec.MedicineName)
	if rec.MedicineName == "" {
		return fmt.Errorf("%w: medicine name is required", ErrInvalidLine)
	}
	if rec.MealTime == "" {
		rec.MealTime = extraction.AfterMeal
	}
	check := checkMinimums
	if source == SourceManual {
		check = checkBounds
	}
	if err := check(rec.NumberOfDays, rec.DosagePerDay, rec.MealTime); err != nil {
		return err
	}
	return a.raise(EventMedicationAdded, a.doctorID, &MedicationAddedData{
		Line: Line{PrescriptionRecord: rec, Source: source},
	})
}

// UpdateMedication edits the quantities and meal time of one line
func (a *Aggregate) UpdateMedication(index, days, dosage int, meal extraction.MealTime) error {
	if err := a.editable(); err != nil {
		return err
	}
	if index < 0 || index >= len(a.lines) {
		return fmt.Errorf("%w: index %d", ErrLineNotFound, index)
	}
	if err := checkBounds(days, dosage, meal); err != nil {
		return err
	}
	return a.raise(EventMedicationUpdated, a.doctorID, &MedicationUpdatedData{
		Index:        index,
		NumberOfDays: days,
		DosagePerDay: dosage,
		MealTime:     meal,
	})
}

// ClearMedications removes every line. Clearing an empty list is a no-op.
func (a *Aggregate) ClearMedications() error {
	if err := a.editable(); err != nil {
		return err
	}
	if len(a.lines) == 0 {
		return nil
	}
	return a.raise(EventMedicationsCleared, a.doctorID, &MedicationsClearedData{Removed: len(a.lines)})
}

// Finalize closes the session; no further edits are accepted
func (a *Aggregate) Finalize() error {
	if err := a.editable(); err != nil {
		return err
	}
	if len(a.lines) == 0 {
		return ErrNoMedications
	}
	return a.raise(EventPrescriptionFinalized, a.doctorID, &PrescriptionFinalizedData{
		Lines:       len(a.lines),
		FinalizedAt: time.Now().UTC(),
	})
}

func (a *Aggregate) editable() error {
	switch a.status {
	case StatusNew:
		return ErrNotFound
	case StatusFinal:
		return ErrFinalized
	}
	return nil
}

func checkMinimums(days, dosage int, meal extraction.MealTime) error {
	if days < MinDays {
		return fmt.Errorf("%w: days %d below %d", ErrInvalidLine, days, MinDays)
	}
	if dosage < MinDosage {
		return fmt.Errorf("%w: dosage %d below %d", ErrInvalidLine, dosage, MinDosage)
	}
	return checkMealTime(meal)
}

func checkMealTime(meal extraction.MealTime) error {
	if meal != extraction.BeforeMeal && meal != extraction.AfterMeal {
		return fmt.Errorf("%w: meal time %q", ErrInvalidLine, meal)
	}
	return nil
}

func checkBounds(days, dosage int, meal extraction.MealTime) error {
	if days < MinDays || days > MaxDays {
		return fmt.Errorf("%w: days %d outside %d..%d", ErrInvalidLine, days, MinDays, MaxDays)
	}
	if dosage < MinDosage || dosage > MaxDosage {
		return fmt.Errorf("%w: dosage %d outside %d..%d", ErrInvalidLine, dosage, MinDosage, MaxDosage)
	}
	return checkMealTime(meal)
}

func (a *Aggregate) raise(eventType EventType, doctorID string, data any) error {
	event, err := NewEvent(a.id, eventType, data)
	if err != nil {
		return fmt.Errorf("new event: %w", err)
	}
	event.DoctorID = doctorID
	if err := a.apply(event); err != nil {
		return err
	}
	event.Version = a.version
	a.changes = append(a.changes, event)
	return nil
}

// apply applies an event to update state
func (a *Aggregate) apply(event *Event) error {
	switch event.EventType {
	case EventPrescriptionCreated:
		var data PrescriptionCreatedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		a.status = StatusDraft
		a.doctorID = data.DoctorID
		a.patient = data.Patient
		a.symptoms = data.Symptoms
		a.createdAt = event.Timestamp
	case EventMedicationAdded:
		var data MedicationAddedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		a.lines = append(a.lines, data.Line)
	case EventMedicationUpdated:
		var data MedicationUpdatedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		if data.Index < 0 || data.Index >= len(a.lines) {
			return fmt.Errorf("%w: index %d", ErrLineNotFound, data.Index)
		}
		l := &a.lines[data.Index]
		l.NumberOfDays = data.NumberOfDays
		l.DosagePerDay = data.DosagePerDay
		l.MealTime = data.MealTime
	case EventMedicationsCleared:
		a.lines = nil
	case EventPrescriptionFinalized:
		var data PrescriptionFinalizedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		a.status = StatusFinal
		a.finalizedAt = data.FinalizedAt
	default:
		return fmt.Errorf("unknown event type %q", event.EventType)
	}
	a.version++
	a.updatedAt = event.Timestamp
	return nil
}

// LoadFromHistory rebuilds state from events
func (a *Aggregate) LoadFromHistory(events []*Event) error {
	for _, event := range events {
		if err := a.apply(event); err != nil {
			return fmt.Errorf("replay version %d: %w", event.Version, err)
		}
	}
	return nil
}

// Snapshot is the read view of a prescription
type Snapshot struct {
	ID          string     `json:"id"`
	Version     int        `json:"version"`
	Status      Status     `json:"status"`
	DoctorID    string     `json:"doctor_id"`
	Patient     Patient    `json:"patient"`
	Symptoms    string     `json:"symptoms,omitempty"`
	Medications []Line     `json:"medications"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// Snapshot returns the current read view
func (a *Aggregate) Snapshot() Snapshot {
	s := Snapshot{
		ID:          a.id,
		Version:     a.version,
		Status:      a.status,
		DoctorID:    a.doctorID,
		Patient:     a.patient,
		Symptoms:    a.symptoms,
		Medications: a.Lines(),
		CreatedAt:   a.createdAt,
		UpdatedAt:   a.updatedAt,
	}
	if !a.finalizedAt.IsZero() {
		t := a.finalizedAt
		s.FinalizedAt = &t
	}
	return s
}
