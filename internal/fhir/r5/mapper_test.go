package r5

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/rx-dictation/internal/extraction"
)

func testOrder() *Order {
	return &Order{
		ID:         "3f1c8a52-6a0e-4b0e-9a44-1c2d3e4f5a6b",
		DoctorID:   "dr-001",
		Patient:    PatientInfo{Name: "Asha Rao", Age: 34, Gender: "Female"},
		Symptoms:   "fever, headache",
		Version:    3,
		AuthoredOn: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Lines: []extraction.PrescriptionRecord{
			{MedicineName: "Paracetamol", NumberOfDays: 3, DosagePerDay: 2, MealTime: extraction.AfterMeal},
			{MedicineName: "Omeprazole", NumberOfDays: 1, DosagePerDay: 1, MealTime: extraction.BeforeMeal},
		},
	}
}

func TestMedicationRequestFrom(t *testing.T) {
	o := testOrder()
	mr := MedicationRequestFrom(o, 1, o.Lines[0])

	assert.Equal(t, "MedicationRequest", mr.ResourceType)
	assert.Equal(t, StatusDraft, mr.Status)
	assert.Equal(t, IntentProposal, mr.Intent)
	assert.Equal(t, "Paracetamol", mr.MedicationDisplay())
	assert.Equal(t, 3, mr.DaysSupply())

	require.Len(t, mr.DosageInstruction, 1)
	rep := mr.DosageInstruction[0].Timing.Repeat
	assert.Equal(t, 2, rep.Frequency)
	assert.Equal(t, float64(1), rep.Period)
	assert.Equal(t, "d", rep.PeriodUnit)
	assert.Equal(t, []string{WhenAfterMeal}, rep.When)
	assert.Equal(t, float64(3), rep.BoundsDuration.Value)

	assert.Equal(t, float64(6), mr.DispenseRequest.Quantity.Value)
	assert.Equal(t, "tablets", mr.DispenseRequest.Quantity.Unit)
	assert.Equal(t, "2 tablets per day for 3 days, after meal", mr.RenderedDosageInstruction)

	require.NotNil(t, mr.Requester)
	assert.Equal(t, "Practitioner/dr-001", mr.Requester.Reference)
	require.Len(t, mr.Reason, 1)
	assert.Equal(t, "fever, headache", mr.Reason[0].Concept.Text)
}

func TestMedicationRequestFrom_BeforeMealFinal(t *testing.T) {
	o := testOrder()
	o.Final = true
	mr := MedicationRequestFrom(o, 2, o.Lines[1])

	assert.Equal(t, StatusActive, mr.Status)
	assert.Equal(t, IntentOrder, mr.Intent)
	assert.Equal(t, []string{WhenBeforeMeal}, mr.DosageInstruction[0].Timing.Repeat.When)
	assert.Equal(t, "1 tablet per day for 1 day, before meal", mr.RenderedDosageInstruction)
	assert.Equal(t, o.ID+"-2", mr.ID)
}

func TestBuildBundle(t *testing.T) {
	b := BuildBundle(testOrder())

	assert.Equal(t, "collection", b.Type)
	require.NotNil(t, b.Total)
	assert.Equal(t, 4, *b.Total)
	assert.Equal(t, "3", b.Meta.VersionID)

	p, ok := b.Entry[0].Resource.(*Patient)
	require.True(t, ok)
	assert.Equal(t, "female", p.Gender)
	require.Len(t, p.Extension, 1)
	assert.Equal(t, 34, *p.Extension[0].ValueInteger)

	mrs := b.MedicationRequests()
	require.Len(t, mrs, 2)
	assert.Equal(t, "Paracetamol", mrs[0].MedicationDisplay())
	assert.Equal(t, "Omeprazole", mrs[1].MedicationDisplay())
}

func TestBuildBundle_NoDoctorNoLines(t *testing.T) {
	o := testOrder()
	o.DoctorID = ""
	o.Lines = nil
	o.AuthoredOn = time.Time{}
	b := BuildBundle(o)

	require.Len(t, b.Entry, 1)
	assert.Nil(t, b.Meta.LastUpdated)
	assert.Empty(t, b.MedicationRequests())
}

func TestBundleJSON(t *testing.T) {
	data, err := json.Marshal(BuildBundle(testOrder()))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Bundle", doc["resourceType"])

	entries := doc["entry"].([]any)
	last := entries[len(entries)-1].(map[string]any)["resource"].(map[string]any)
	assert.Equal(t, "MedicationRequest", last["resourceType"])
	assert.Contains(t, string(data), `"when":["AC"]`)
	assert.Contains(t, string(data), `"when":["PC"]`)
}

func TestGender(t *testing.T) {
	assert.Equal(t, "male", gender(" M "))
	assert.Equal(t, "other", gender("Other"))
	assert.Equal(t, "unknown", gender(""))
}
