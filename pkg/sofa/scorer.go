package sofa

import (
	"math"

	"github.com/icustudies/ecmo-cohort/pkg/common/models"
)

// Each component is an ordered table of (lower bound, score) pairs,
// evaluated in order with first match winning. Tables must be sorted by
// descending lower bound so every boundary can be tested directly.
type band struct {
	min   float64
	score int
}

// P/F ratio: higher is better.
var respiratoryBands = []band{
	{min: 400, score: 0},
	{min: 300, score: 1},
	{min: 200, score: 2},
	{min: 100, score: 3},
	{min: math.Inf(-1), score: 4},
}

// Platelet count: higher is better.
var coagulationBands = []band{
	{min: 150, score: 0},
	{min: 100, score: 1},
	{min: 50, score: 2},
	{min: 20, score: 3},
	{min: math.Inf(-1), score: 4},
}

// Total bilirubin: higher is worse.
var liverBands = []band{
	{min: 12.0, score: 4},
	{min: 6.0, score: 3},
	{min: 2.0, score: 2},
	{min: 1.2, score: 1},
	{min: math.Inf(-1), score: 0},
}

func scoreBands(value *float64, bands []band) *int {
	if value == nil {
		return nil
	}
	for _, b := range bands {
		if *value >= b.min {
			score := b.score
			return &score
		}
	}
	return nil
}

func Respiratory(pfRatio *float64) *int { return scoreBands(pfRatio, respiratoryBands) }

func Coagulation(platelets *float64) *int { return scoreBands(platelets, coagulationBands) }

func Liver(bilirubin *float64) *int { return scoreBands(bilirubin, liverBands) }

// Cardiovascular combines MAP availability with the vasopressor flag:
// MAP>=70 scores 0 (no vasopressor) or 2 (vasopressor); MAP<70 scores 1 or
// 3. With no usable MAP, a vasopressor alone still scores 2; with neither
// available the component is null.
func Cardiovascular(mapValue *float64, anyVasopressor int) *int {
	onVasopressor := anyVasopressor == 1
	if mapValue == nil {
		if onVasopressor {
			return intPtr(2)
		}
		return nil
	}
	if *mapValue >= 70 {
		if onVasopressor {
			return intPtr(2)
		}
		return intPtr(0)
	}
	if onVasopressor {
		return intPtr(3)
	}
	return intPtr(1)
}

// Score computes the modified SOFA score from the visit's lab aggregates
// and vasopressor exposure. The neurological component has no usable input
// variable in this dataset and stays null for schema stability.
//
// Total sums the four computed components with each null treated as 0,
// while ComponentsAvailable counts the non-null ones separately. The total
// is deliberately not normalized by availability, so totals are not
// comparable across different missing-data patterns; callers needing
// comparability must consult ComponentsAvailable.
func Score(labs models.LabAggregates, anyVasopressor int) models.SOFAScore {
	score := models.SOFAScore{
		Respiratory:    Respiratory(labs.PFRatio),
		Coagulation:    Coagulation(labs.Platelets),
		Liver:          Liver(labs.Bilirubin),
		Cardiovascular: Cardiovascular(labs.MAP, anyVasopressor),
		Neurological:   nil,
	}
	for _, component := range []*int{score.Respiratory, score.Coagulation, score.Liver, score.Cardiovascular} {
		if component != nil {
			score.Total += *component
			score.ComponentsAvailable++
		}
	}
	return score
}

func intPtr(v int) *int {
	return &v
}
