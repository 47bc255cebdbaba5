package measure

import (
	"testing"
	"time"

	"github.com/icustudies/ecmo-cohort/pkg/codeset"
	"github.com/icustudies/ecmo-cohort/pkg/common/models"
)

var day = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

func event(code string, value *float64) models.MeasurementEvent {
	visitID := int64(1)
	return models.MeasurementEvent{
		PersonID:    1,
		VisitID:     &visitID,
		ConceptCode: code,
		Value:       value,
		EventDate:   day,
	}
}

func f(v float64) *float64 { return &v }

func TestMeanFiltersNullAndNonPositive(t *testing.T) {
	events := []models.MeasurementEvent{
		event("100", f(2.0)),
		event("100", f(4.0)),
		event("100", nil),     // null value dropped
		event("100", f(0)),    // non-positive dropped
		event("100", f(-1.5)), // non-positive dropped
		event("999", f(100)),  // different code ignored
	}
	m := Mean(events, []string{"100"}, 2)
	if m == nil || *m != 3.0 {
		t.Fatalf("expected mean 3.0, got %v", m)
	}
}

func TestMeanNilWhenNoQualifyingEvents(t *testing.T) {
	events := []models.MeasurementEvent{event("100", nil), event("100", f(0))}
	if m := Mean(events, []string{"100"}, 1); m != nil {
		t.Fatalf("expected nil mean, got %v", *m)
	}
}

func TestMeanRounding(t *testing.T) {
	events := []models.MeasurementEvent{
		event("100", f(1.0)),
		event("100", f(2.0)),
		event("100", f(2.0)),
	}
	m := Mean(events, []string{"100"}, 2)
	if m == nil || *m != 1.67 {
		t.Fatalf("expected mean 1.67, got %v", m)
	}
}

func TestFallbackIgnoredWhenPrimaryHasAnyData(t *testing.T) {
	v := codeset.LabVariable{Primary: []string{"fio2"}, Fallback: []string{"fio2_alt"}, Decimals: 1}
	// One low-confidence primary sample against many fallback samples: the
	// substitution happens at the aggregate level, so the fallback mean of
	// 80.0 must never be consulted.
	events := []models.MeasurementEvent{
		event("fio2", f(60.0)),
		event("fio2_alt", f(80.0)),
		event("fio2_alt", f(80.0)),
		event("fio2_alt", f(80.0)),
		event("fio2_alt", f(80.0)),
	}
	m := VariableMean(events, v)
	if m == nil || *m != 60.0 {
		t.Fatalf("expected primary mean 60.0, got %v", m)
	}
}

func TestFallbackUsedWhenPrimaryEmpty(t *testing.T) {
	v := codeset.LabVariable{Primary: []string{"fio2"}, Fallback: []string{"fio2_alt"}, Decimals: 1}
	events := []models.MeasurementEvent{
		event("fio2", nil), // filtered out, so primary aggregate is null
		event("fio2_alt", f(80.0)),
	}
	m := VariableMean(events, v)
	if m == nil || *m != 80.0 {
		t.Fatalf("expected fallback mean 80.0, got %v", m)
	}
}

func TestMAP(t *testing.T) {
	m := MAP(f(60.0), f(120.0))
	if m == nil || *m != 80.0 {
		t.Fatalf("expected MAP 80.0, got %v", m)
	}
	if MAP(nil, f(120.0)) != nil || MAP(f(60.0), nil) != nil {
		t.Fatal("expected nil MAP when either pressure is missing")
	}
}

func TestPFRatioBoundary(t *testing.T) {
	// 300 / (75/100) = 400.0, exactly at the respiratory >=400 boundary.
	r := PFRatio(f(300.0), f(75.0))
	if r == nil || *r != 400.0 {
		t.Fatalf("expected P/F ratio 400.0, got %v", r)
	}
}

func TestPFRatioGuards(t *testing.T) {
	if PFRatio(f(300.0), nil) != nil {
		t.Fatal("expected nil ratio without FiO2")
	}
	if PFRatio(nil, f(75.0)) != nil {
		t.Fatal("expected nil ratio without PaO2")
	}
	if PFRatio(f(300.0), f(0)) != nil {
		t.Fatal("expected nil ratio for zero FiO2 denominator")
	}
}
