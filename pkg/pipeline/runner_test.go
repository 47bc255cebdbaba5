package pipeline

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/icustudies/ecmo-cohort/pkg/codeset"
	"github.com/icustudies/ecmo-cohort/pkg/common/models"
)

// fakeStore serves immutable source facts from memory, filtering the same
// way the gorm repository does.
type fakeStore struct {
	conditions   []models.ConditionEvent
	procedures   []models.ProcedureEvent
	measurements []models.MeasurementEvent
	drugs        []models.DrugEvent
	patients     []models.Patient
	visits       []models.Visit
	deaths       []models.DeathRecord
}

func codeSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}

func personSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (s *fakeStore) ConditionPersonIDs(_ context.Context, codes []string) ([]int64, error) {
	wanted := codeSet(codes)
	seen := map[int64]bool{}
	var ids []int64
	for _, ev := range s.conditions {
		if wanted[ev.ConceptCode] && !seen[ev.PersonID] {
			seen[ev.PersonID] = true
			ids = append(ids, ev.PersonID)
		}
	}
	return ids, nil
}

func (s *fakeStore) ProcedurePersonIDs(_ context.Context, codes []string) ([]int64, error) {
	wanted := codeSet(codes)
	seen := map[int64]bool{}
	var ids []int64
	for _, ev := range s.procedures {
		if wanted[ev.ConceptCode] && !seen[ev.PersonID] {
			seen[ev.PersonID] = true
			ids = append(ids, ev.PersonID)
		}
	}
	return ids, nil
}

func (s *fakeStore) ProcedureEvents(_ context.Context, codes []string, personIDs []int64) ([]models.ProcedureEvent, error) {
	wanted, persons := codeSet(codes), personSet(personIDs)
	var out []models.ProcedureEvent
	for _, ev := range s.procedures {
		if wanted[ev.ConceptCode] && persons[ev.PersonID] {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) MeasurementEvents(_ context.Context, codes []string, personIDs []int64) ([]models.MeasurementEvent, error) {
	wanted, persons := codeSet(codes), personSet(personIDs)
	var out []models.MeasurementEvent
	for _, ev := range s.measurements {
		if wanted[ev.ConceptCode] && persons[ev.PersonID] {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) DrugEvents(_ context.Context, codes []string, personIDs []int64) ([]models.DrugEvent, error) {
	wanted, persons := codeSet(codes), personSet(personIDs)
	var out []models.DrugEvent
	for _, ev := range s.drugs {
		if wanted[ev.ConceptCode] && persons[ev.PersonID] {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) Patients(_ context.Context, personIDs []int64) ([]models.Patient, error) {
	persons := personSet(personIDs)
	var out []models.Patient
	for _, p := range s.patients {
		if persons[p.PersonID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) Visits(_ context.Context, personIDs []int64) ([]models.Visit, error) {
	persons := personSet(personIDs)
	var out []models.Visit
	for _, v := range s.visits {
		if persons[v.PersonID] {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *fakeStore) DeathRecords(_ context.Context, personIDs []int64) ([]models.DeathRecord, error) {
	persons := personSet(personIDs)
	var out []models.DeathRecord
	for _, d := range s.deaths {
		if persons[d.PersonID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func day(d int) time.Time {
	return time.Date(2021, 7, d, 0, 0, 0, 0, time.UTC)
}

func instant(d, h int) time.Time {
	return time.Date(2021, 7, d, h, 0, 0, 0, time.UTC)
}

func i64(v int64) *int64    { return &v }
func fp(v float64) *float64 { return &v }

// testStore builds a small but complete source universe:
//   - person 1: diagnosis + ECMO on visit 101, labs, norepinephrine, CRRT,
//     death inside the 30-day window;
//   - person 2: diagnosis + ECMO but only null-visit procedure events, so
//     it joins the cohort yet yields no output row;
//   - person 3: diagnosis only; person 4: procedure only.
func testStore(sets codeset.CodeSets) *fakeStore {
	dx := sets.Diagnoses[0]
	ecmo := sets.EcmoProcedures[0]
	crrt := sets.CRRTProcedures[0]
	norepi := sets.Class(codeset.ClassNorepinephrine)[0]

	return &fakeStore{
		conditions: []models.ConditionEvent{
			{PersonID: 1, VisitID: i64(101), ConceptCode: dx, EventDate: day(1)},
			{PersonID: 2, VisitID: nil, ConceptCode: dx, EventDate: day(1)},
			{PersonID: 3, VisitID: i64(301), ConceptCode: dx, EventDate: day(1)},
		},
		procedures: []models.ProcedureEvent{
			{PersonID: 1, VisitID: i64(101), ConceptCode: ecmo, EventDate: day(2), EventDateTime: instant(2, 9)},
			{PersonID: 1, VisitID: i64(101), ConceptCode: ecmo, EventDate: day(6), EventDateTime: instant(6, 9)},
			{PersonID: 1, VisitID: i64(101), ConceptCode: crrt, EventDate: day(3), EventDateTime: instant(3, 12)},
			{PersonID: 2, VisitID: nil, ConceptCode: ecmo, EventDate: day(2), EventDateTime: instant(2, 9)},
			{PersonID: 4, VisitID: i64(401), ConceptCode: ecmo, EventDate: day(2), EventDateTime: instant(2, 9)},
		},
		measurements: []models.MeasurementEvent{
			{PersonID: 1, VisitID: i64(101), ConceptCode: sets.Labs[codeset.LabPlatelets].Primary[0], Value: fp(100), EventDate: day(3)},
			{PersonID: 1, VisitID: i64(101), ConceptCode: sets.Labs[codeset.LabBilirubin].Primary[0], Value: fp(1.5), EventDate: day(3)},
			{PersonID: 1, VisitID: i64(101), ConceptCode: sets.Labs[codeset.LabPaO2].Primary[0], Value: fp(300), EventDate: day(3)},
			{PersonID: 1, VisitID: i64(101), ConceptCode: sets.Labs[codeset.LabFiO2].Primary[0], Value: fp(75), EventDate: day(3)},
			{PersonID: 1, VisitID: i64(101), ConceptCode: sets.Labs[codeset.LabSystolic].Primary[0], Value: fp(120), EventDate: day(3)},
			{PersonID: 1, VisitID: i64(101), ConceptCode: sets.Labs[codeset.LabDiastolic].Primary[0], Value: fp(60), EventDate: day(3)},
		},
		drugs: []models.DrugEvent{
			{PersonID: 1, VisitID: i64(101), ConceptCode: norepi, EventDate: day(4)},
		},
		patients: []models.Patient{
			{PersonID: 1, Gender: "8507", Race: "8527", Ethnicity: "38003564", BirthYear: 1980, Site: "10"},
			{PersonID: 2, Gender: "8532", Race: "8527", Ethnicity: "38003564", BirthYear: 1990, Site: "20"},
		},
		visits: []models.Visit{
			{PersonID: 1, VisitID: 101, AdmissionDate: day(1)},
		},
		deaths: []models.DeathRecord{
			{PersonID: 1, DeathDate: timePtr(day(20))},
		},
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestExecuteEndToEnd(t *testing.T) {
	sets := codeset.DefaultCodeSets()
	result, err := Execute(context.Background(), testStore(sets), sets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Persons 1 and 2 satisfy the person-level cohort; only person 1 has a
	// non-null visit, so the visit count is strictly smaller.
	if len(result.Persons) != 2 {
		t.Fatalf("expected cohort of 2 persons, got %v", result.Persons)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 output row, got %d", len(result.Records))
	}

	row := result.Records[0]
	if row.PersonID != 1 || row.VisitID != 101 {
		t.Fatalf("unexpected key: %d/%d", row.PersonID, row.VisitID)
	}
	if row.AgeAtAdmission == nil || *row.AgeAtAdmission != 41 || row.AgeGroup != "40-59" {
		t.Fatalf("unexpected age: %v (%s)", row.AgeAtAdmission, row.AgeGroup)
	}
	if !row.EcmoStartDate.Equal(day(2)) || !row.EcmoEndDate.Equal(day(6)) {
		t.Fatalf("unexpected episode bounds: %v .. %v", row.EcmoStartDate, row.EcmoEndDate)
	}
	if row.EcmoHours != 96.0 {
		t.Fatalf("expected 96 ECMO hours, got %v", row.EcmoHours)
	}

	// 300 / (75/100) = 400 exactly at the boundary: respiratory 0.
	if row.Labs.PFRatio == nil || *row.Labs.PFRatio != 400.0 {
		t.Fatalf("unexpected P/F ratio: %v", row.Labs.PFRatio)
	}
	if row.Labs.MAP == nil || *row.Labs.MAP != 80.0 {
		t.Fatalf("unexpected MAP: %v", row.Labs.MAP)
	}
	if row.SOFA.Respiratory == nil || *row.SOFA.Respiratory != 0 {
		t.Fatalf("unexpected respiratory score: %v", row.SOFA.Respiratory)
	}
	// Platelets 100 -> 1, bilirubin 1.5 -> 1, MAP>=70 on vasopressor -> 2.
	if row.SOFA.Total != 4 || row.SOFA.ComponentsAvailable != 4 {
		t.Fatalf("unexpected SOFA: total=%d available=%d", row.SOFA.Total, row.SOFA.ComponentsAvailable)
	}

	if row.Exposures.Norepinephrine != 1 || row.Exposures.AnyVasopressor != 1 {
		t.Fatalf("unexpected exposures: %+v", row.Exposures)
	}
	if row.CRRT != 1 {
		t.Fatal("expected CRRT flag from procedure log")
	}

	// Death on day 20, window [day 2, day 6 + 30]: inside.
	if row.Mortality.Died != 1 {
		t.Fatalf("expected died=1, got %d", row.Mortality.Died)
	}
	if row.Mortality.DiedWithin30Days == nil || *row.Mortality.DiedWithin30Days != 1 {
		t.Fatalf("unexpected 30-day flag: %v", row.Mortality.DiedWithin30Days)
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	sets := codeset.DefaultCodeSets()
	store := testStore(sets)

	first, err := Execute(context.Background(), store, sets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Execute(context.Background(), store, sets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("re-running against unchanged source facts must reproduce the table exactly")
	}
}

func TestExecuteEmptyCohort(t *testing.T) {
	sets := codeset.DefaultCodeSets()
	result, err := Execute(context.Background(), &fakeStore{}, sets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Persons) != 0 || len(result.Records) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}
