package r5

import "time"

// MedicationRequest represents a FHIR R5 MedicationRequest resource.
type MedicationRequest struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Meta         *Meta        `json:"meta,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`

	Status   string            `json:"status"` // active | on-hold | cancelled | completed | entered-in-error | stopped | draft | unknown
	Intent   string            `json:"intent"` // proposal | plan | order | ...
	Category []CodeableConcept `json:"category,omitempty"`

	// R5 uses CodeableReference for the medication
	Medication CodeableReference   `json:"medication"`
	Subject    Reference           `json:"subject"`
	AuthoredOn time.Time           `json:"authoredOn"`
	Requester  *Reference          `json:"requester,omitempty"`
	Reason     []CodeableReference `json:"reason,omitempty"`
	Note       []Annotation        `json:"note,omitempty"`

	RenderedDosageInstruction string           `json:"renderedDosageInstruction,omitempty"`
	DosageInstruction         []Dosage         `json:"dosageInstruction,omitempty"`
	DispenseRequest           *DispenseRequest `json:"dispenseRequest,omitempty"`
}

// DispenseRequest contains information about the requested dispensing.
type DispenseRequest struct {
	Quantity               *Quantity `json:"quantity,omitempty"`
	ExpectedSupplyDuration *Duration `json:"expectedSupplyDuration,omitempty"`
}

// Dosage contains dosage instructions for the medication.
type Dosage struct {
	Sequence    int               `json:"sequence,omitempty"`
	Text        string            `json:"text,omitempty"`
	Timing      *Timing           `json:"timing,omitempty"`
	DoseAndRate []DoseAndRate     `json:"doseAndRate,omitempty"`
	Additional  []CodeableConcept `json:"additionalInstruction,omitempty"`
}

// DoseAndRate contains dose information.
type DoseAndRate struct {
	DoseQuantity *Quantity `json:"doseQuantity,omitempty"`
}

// Timing contains timing information for dosage.
type Timing struct {
	Repeat *TimingRepeat    `json:"repeat,omitempty"`
	Code   *CodeableConcept `json:"code,omitempty"`
}

// TimingRepeat contains repeat details for timing.
type TimingRepeat struct {
	BoundsDuration *Duration `json:"boundsDuration,omitempty"`
	Frequency      int       `json:"frequency,omitempty"`
	Period         float64   `json:"period,omitempty"`
	PeriodUnit     string    `json:"periodUnit,omitempty"` // s | min | h | d | wk | mo | a
	When           []string  `json:"when,omitempty"`
}

// Event timing codes used for meal-relative dosing
const (
	WhenBeforeMeal = "AC"
	WhenAfterMeal  = "PC"
)

// DaysSupply returns the expected supply duration in days
func (m *MedicationRequest) DaysSupply() int {
	if m.DispenseRequest == nil || m.DispenseRequest.ExpectedSupplyDuration == nil {
		return 0
	}
	return int(m.DispenseRequest.ExpectedSupplyDuration.Value)
}

// MedicationDisplay returns the medication text
func (m *MedicationRequest) MedicationDisplay() string {
	if m.Medication.Concept == nil {
		return ""
	}
	if m.Medication.Concept.Text != "" {
		return m.Medication.Concept.Text
	}
	if len(m.Medication.Concept.Coding) > 0 {
		return m.Medication.Concept.Coding[0].Display
	}
	return ""
}
