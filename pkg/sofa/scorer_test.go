package sofa

import (
	"testing"

	"github.com/icustudies/ecmo-cohort/pkg/common/models"
)

func f(v float64) *float64 { return &v }

func checkScore(t *testing.T, got *int, want int, label string) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s: expected score %d, got nil", label, want)
	}
	if *got != want {
		t.Fatalf("%s: expected score %d, got %d", label, want, *got)
	}
}

func TestRespiratoryBoundaries(t *testing.T) {
	cases := []struct {
		value float64
		want  int
	}{
		{500, 0}, {400, 0}, {399.9, 1}, {300, 1}, {299.9, 2},
		{200, 2}, {199.9, 3}, {100, 3}, {99.9, 4}, {1, 4},
	}
	for _, c := range cases {
		checkScore(t, Respiratory(f(c.value)), c.want, "respiratory")
	}
	if Respiratory(nil) != nil {
		t.Fatal("respiratory: expected nil for missing P/F ratio")
	}
}

func TestCoagulationBoundaries(t *testing.T) {
	cases := []struct {
		value float64
		want  int
	}{
		{200, 0}, {150, 0}, {149.9, 1}, {100, 1}, {99.9, 2},
		{50, 2}, {49.9, 3}, {20, 3}, {19.9, 4},
	}
	for _, c := range cases {
		checkScore(t, Coagulation(f(c.value)), c.want, "coagulation")
	}
	if Coagulation(nil) != nil {
		t.Fatal("coagulation: expected nil for missing platelets")
	}
}

func TestLiverBoundaries(t *testing.T) {
	cases := []struct {
		value float64
		want  int
	}{
		{0.5, 0}, {1.1, 0}, {1.2, 1}, {1.9, 1}, {2.0, 2},
		{5.9, 2}, {6.0, 3}, {11.9, 3}, {12.0, 4}, {20, 4},
	}
	for _, c := range cases {
		checkScore(t, Liver(f(c.value)), c.want, "liver")
	}
	if Liver(nil) != nil {
		t.Fatal("liver: expected nil for missing bilirubin")
	}
}

func TestCardiovascularMatrix(t *testing.T) {
	checkScore(t, Cardiovascular(f(75), 0), 0, "MAP>=70 no vasopressor")
	checkScore(t, Cardiovascular(f(70), 1), 2, "MAP>=70 with vasopressor")
	checkScore(t, Cardiovascular(f(69.9), 0), 1, "MAP<70 no vasopressor")
	checkScore(t, Cardiovascular(f(60), 1), 3, "MAP<70 with vasopressor")
	checkScore(t, Cardiovascular(nil, 1), 2, "no MAP with vasopressor")
	if Cardiovascular(nil, 0) != nil {
		t.Fatal("cardiovascular: expected nil when neither input is available")
	}
}

func TestTotalTreatsMissingComponentsAsZero(t *testing.T) {
	// Only coagulation (=2) and liver (=1) computable; respiratory and
	// cardiovascular stay null. Total must be 2+1+0+0, not scaled by
	// availability.
	labs := models.LabAggregates{
		Platelets: f(75),  // coagulation 2
		Bilirubin: f(1.5), // liver 1
	}
	score := Score(labs, 0)

	if score.Respiratory != nil || score.Cardiovascular != nil {
		t.Fatal("expected respiratory and cardiovascular to be nil")
	}
	if score.Total != 3 {
		t.Fatalf("expected total 3, got %d", score.Total)
	}
	if score.ComponentsAvailable != 2 {
		t.Fatalf("expected 2 components available, got %d", score.ComponentsAvailable)
	}
}

func TestNeurologicalAlwaysNull(t *testing.T) {
	labs := models.LabAggregates{
		PFRatio:   f(450),
		Platelets: f(200),
		Bilirubin: f(0.8),
		MAP:       f(80),
	}
	score := Score(labs, 1)
	if score.Neurological != nil {
		t.Fatal("expected neurological component to stay null")
	}
	if score.ComponentsAvailable != 4 {
		t.Fatalf("expected 4 components available, got %d", score.ComponentsAvailable)
	}
	// 0 + 0 + 0 + 2 (MAP>=70 on vasopressor)
	if score.Total != 2 {
		t.Fatalf("expected total 2, got %d", score.Total)
	}
}

func TestScoreWithNoInputs(t *testing.T) {
	score := Score(models.LabAggregates{}, 0)
	if score.Total != 0 || score.ComponentsAvailable != 0 {
		t.Fatalf("expected empty score, got total=%d available=%d", score.Total, score.ComponentsAvailable)
	}
}
