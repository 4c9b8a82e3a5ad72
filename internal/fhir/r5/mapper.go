package r5

import (
	"fmt"
	"strings"
	"time"

	"github.com/drfirst/rx-dictation/internal/extraction"
)

// Order is the prescription view rendered into a bundle.
type Order struct {
	ID         string
	DoctorID   string
	Patient    PatientInfo
	Symptoms   string
	Final      bool
	Version    int
	AuthoredOn time.Time
	Lines      []extraction.PrescriptionRecord
}

// PatientInfo is the patient as captured at the visit.
type PatientInfo struct {
	Name   string
	Age    int
	Gender string
}

// MedicationRequestFrom maps a single prescription line. seq is 1-based.
func MedicationRequestFrom(o *Order, seq int, rec extraction.PrescriptionRecord) *MedicationRequest {
	status, intent := StatusDraft, IntentProposal
	if o.Final {
		status, intent = StatusActive, IntentOrder
	}

	when := WhenAfterMeal
	if rec.MealTime == extraction.BeforeMeal {
		when = WhenBeforeMeal
	}

	instruction := RenderDosage(rec)
	mr := &MedicationRequest{
		ResourceType: "MedicationRequest",
		ID:           fmt.Sprintf("%s-%d", o.ID, seq),
		Identifier: []Identifier{{
			Use:    "official",
			System: "urn:rx-dictation:prescription:" + o.ID,
			Value:  fmt.Sprintf("%d", seq),
		}},
		Status: status,
		Intent: intent,
		Category: []CodeableConcept{{
			Coding: []Coding{{System: SystemCategory, Code: "outpatient", Display: "Outpatient"}},
		}},
		Medication: CodeableReference{
			Concept: &CodeableConcept{
				Coding: []Coding{{System: SystemMedicine, Code: strings.ToLower(rec.MedicineName), Display: rec.MedicineName}},
				Text:   rec.MedicineName,
			},
		},
		Subject:                   Reference{Reference: "Patient/" + o.ID, Display: o.Patient.Name},
		AuthoredOn:                o.AuthoredOn,
		RenderedDosageInstruction: instruction,
		DosageInstruction: []Dosage{{
			Sequence: 1,
			Text:     instruction,
			Timing: &Timing{
				Repeat: &TimingRepeat{
					BoundsDuration: days(rec.NumberOfDays),
					Frequency:      rec.DosagePerDay,
					Period:         1,
					PeriodUnit:     "d",
					When:           []string{when},
				},
			},
			DoseAndRate: []DoseAndRate{{DoseQuantity: tablets(1)}},
		}},
		DispenseRequest: &DispenseRequest{
			Quantity:               tablets(rec.NumberOfDays * rec.DosagePerDay),
			ExpectedSupplyDuration: days(rec.NumberOfDays),
		},
	}
	if o.DoctorID != "" {
		mr.Requester = &Reference{
			Reference:  "Practitioner/" + o.DoctorID,
			Identifier: &Identifier{System: SystemDoctor, Value: o.DoctorID},
		}
	}
	if o.Symptoms != "" {
		mr.Reason = []CodeableReference{{Concept: &CodeableConcept{Text: o.Symptoms}}}
	}
	return mr
}

// RenderDosage returns the human readable instruction for a line.
func RenderDosage(rec extraction.PrescriptionRecord) string {
	return fmt.Sprintf("%d %s per day for %d %s, %s",
		rec.DosagePerDay, plural(rec.DosagePerDay, "tablet"),
		rec.NumberOfDays, plural(rec.NumberOfDays, "day"),
		strings.ToLower(string(rec.MealTime)))
}

// BuildBundle renders the order as a collection bundle: the patient first,
// then the practitioner when known, then one MedicationRequest per line.
func BuildBundle(o *Order) *Bundle {
	patient := &Patient{
		ResourceType: "Patient",
		ID:           o.ID,
		Name:         []HumanName{{Use: "official", Text: o.Patient.Name}},
		Gender:       gender(o.Patient.Gender),
	}
	if o.Patient.Age > 0 {
		age := o.Patient.Age
		patient.Extension = []Extension{{URL: ExtensionPatientAge, ValueInteger: &age}}
	}

	b := &Bundle{
		ResourceType: "Bundle",
		ID:           o.ID,
		Meta:         &Meta{VersionID: fmt.Sprintf("%d", o.Version), LastUpdated: timePtr(o.AuthoredOn)},
		Identifier:   &Identifier{System: "urn:rx-dictation:prescription", Value: o.ID},
		Type:         "collection",
	}
	b.Entry = append(b.Entry, BundleEntry{FullURL: "urn:uuid:" + o.ID, Resource: patient})
	if o.DoctorID != "" {
		b.Entry = append(b.Entry, BundleEntry{
			FullURL: "Practitioner/" + o.DoctorID,
			Resource: &Practitioner{
				ResourceType: "Practitioner",
				ID:           o.DoctorID,
				Identifier:   []Identifier{{System: SystemDoctor, Value: o.DoctorID}},
			},
		})
	}
	for i, rec := range o.Lines {
		mr := MedicationRequestFrom(o, i+1, rec)
		b.Entry = append(b.Entry, BundleEntry{FullURL: "MedicationRequest/" + mr.ID, Resource: mr})
	}
	total := len(b.Entry)
	b.Total = &total
	return b
}

func days(n int) *Duration {
	return &Duration{Value: float64(n), Unit: plural(n, "day"), System: SystemUCUM, Code: "d"}
}

func tablets(n int) *Quantity {
	return &Quantity{Value: float64(n), Unit: plural(n, "tablet"), System: SystemUCUM, Code: "{tbl}"}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func gender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "male", "m":
		return "male"
	case "female", "f":
		return "female"
	case "other":
		return "other"
	default:
		return "unknown"
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
