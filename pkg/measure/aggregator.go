package measure

import (
	"context"
	"math"

	"github.com/icustudies/ecmo-cohort/pkg/codeset"
	"github.com/icustudies/ecmo-cohort/pkg/common/models"
	"github.com/icustudies/ecmo-cohort/pkg/source"
)

// Aggregate computes the per-visit lab means plus derived vitals for every
// resolved visit. Raw events with null or non-positive values are silently
// discarded as a data-quality filter; a variable with no surviving event
// stays nil and propagates as null downstream.
func Aggregate(ctx context.Context, store source.EventStore, sets codeset.CodeSets, episodes map[models.VisitKey]models.EcmoEpisode, persons []int64) (map[models.VisitKey]models.LabAggregates, error) {
	if len(episodes) == 0 {
		return map[models.VisitKey]models.LabAggregates{}, nil
	}

	var codes []string
	for _, v := range sets.Labs {
		codes = append(codes, v.Primary...)
		codes = append(codes, v.Fallback...)
	}
	events, err := store.MeasurementEvents(ctx, codes, persons)
	if err != nil {
		return nil, err
	}

	byVisit := groupByVisit(events)
	out := make(map[models.VisitKey]models.LabAggregates, len(episodes))
	for key := range episodes {
		out[key] = aggregateVisit(byVisit[key], sets)
	}
	return out, nil
}

func groupByVisit(events []models.MeasurementEvent) map[models.VisitKey][]models.MeasurementEvent {
	grouped := make(map[models.VisitKey][]models.MeasurementEvent)
	for _, ev := range events {
		if ev.VisitID == nil {
			continue
		}
		key := models.VisitKey{PersonID: ev.PersonID, VisitID: *ev.VisitID}
		grouped[key] = append(grouped[key], ev)
	}
	return grouped
}

func aggregateVisit(events []models.MeasurementEvent, sets codeset.CodeSets) models.LabAggregates {
	labs := models.LabAggregates{
		Creatinine: VariableMean(events, sets.Labs[codeset.LabCreatinine]),
		Platelets:  VariableMean(events, sets.Labs[codeset.LabPlatelets]),
		Bilirubin:  VariableMean(events, sets.Labs[codeset.LabBilirubin]),
		PaO2:       VariableMean(events, sets.Labs[codeset.LabPaO2]),
		FiO2:       VariableMean(events, sets.Labs[codeset.LabFiO2]),
		Systolic:   VariableMean(events, sets.Labs[codeset.LabSystolic]),
		Diastolic:  VariableMean(events, sets.Labs[codeset.LabDiastolic]),
	}
	labs.MAP = MAP(labs.Diastolic, labs.Systolic)
	labs.PFRatio = PFRatio(labs.PaO2, labs.FiO2)
	return labs
}

// VariableMean is the fallback-aware two-step aggregate: the primary codes'
// mean when any qualifying primary data exists, otherwise the fallback
// codes' mean. The substitution happens at the aggregate level: a single
// primary sample suppresses the fallback regardless of relative sample
// sizes, and the fallback aggregate is never computed eagerly.
func VariableMean(events []models.MeasurementEvent, v codeset.LabVariable) *float64 {
	if m := Mean(events, v.Primary, v.Decimals); m != nil {
		return m
	}
	if len(v.Fallback) == 0 {
		return nil
	}
	return Mean(events, v.Fallback, v.Decimals)
}

// Mean averages every matching event anywhere in the visit span whose value
// is non-null and strictly positive, rounded to the variable's precision.
func Mean(events []models.MeasurementEvent, codes []string, decimals int) *float64 {
	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		wanted[c] = true
	}
	sum := 0.0
	n := 0
	for _, ev := range events {
		if !wanted[ev.ConceptCode] || ev.Value == nil || *ev.Value <= 0 {
			continue
		}
		sum += *ev.Value
		n++
	}
	if n == 0 {
		return nil
	}
	m := Round(sum/float64(n), decimals)
	return &m
}

// MAP is round((2*diastolic + systolic) / 3, 1), defined only when both
// averages are present.
func MAP(diastolic, systolic *float64) *float64 {
	if diastolic == nil || systolic == nil {
		return nil
	}
	m := Round((2**diastolic+*systolic)/3, 1)
	return &m
}

// PFRatio is round(pao2 / (fio2/100), 1), defined only when both averages
// are present and fio2 is strictly positive. The zero-denominator guard is
// mandatory; a degenerate FiO2 yields null, never a fault.
func PFRatio(pao2, fio2 *float64) *float64 {
	if pao2 == nil || fio2 == nil || *fio2 <= 0 {
		return nil
	}
	r := Round(*pao2/(*fio2/100), 1)
	return &r
}

func Round(value float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(value*p) / p
}
