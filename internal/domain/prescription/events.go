package prescription

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/drfirst/rx-dictation/internal/extraction"
)

// EventType represents the type of domain event
type EventType string

const (
	EventPrescriptionCreated   EventType = "PrescriptionCreated"
	EventMedicationAdded       EventType = "MedicationAdded"
	EventMedicationUpdated     EventType = "MedicationUpdated"
	EventMedicationsCleared    EventType = "MedicationsCleared"
	EventPrescriptionFinalized EventType = "PrescriptionFinalized"
)

// AggregateType is recorded on every event and outbox entry
const AggregateType = "Prescription"

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	DoctorID      string          `json:"doctor_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEvent creates a new event
func NewEvent(aggregateID string, eventType EventType, data any) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: AggregateType,
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// PrescriptionCreatedData opens a session for a patient
type PrescriptionCreatedData struct {
	PrescriptionID string  `json:"prescription_id"`
	DoctorID       string  `json:"doctor_id"`
	Patient        Patient `json:"patient"`
	Symptoms       string  `json:"symptoms,omitempty"`
}

// MedicationAddedData appends one line
type MedicationAddedData struct {
	Line Line `json:"line"`
}

// MedicationUpdatedData edits the line at Index
type MedicationUpdatedData struct {
	Index        int                 `json:"index"`
	NumberOfDays int                 `json:"number_of_days"`
	DosagePerDay int                 `json:"dosage_per_day"`
	MealTime     extraction.MealTime `json:"meal_time"`
}

// MedicationsClearedData empties the line list
type MedicationsClearedData struct {
	Removed int `json:"removed"`
}

// PrescriptionFinalizedData closes the session
type PrescriptionFinalizedData struct {
	Lines       int       `json:"lines"`
	FinalizedAt time.Time `json:"finalized_at"`
}
