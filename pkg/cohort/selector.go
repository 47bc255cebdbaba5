package cohort

import (
	"context"
	"sort"

	"github.com/icustudies/ecmo-cohort/pkg/codeset"
	"github.com/icustudies/ecmo-cohort/pkg/common/logger"
	"github.com/icustudies/ecmo-cohort/pkg/source"
)

// Select returns the person IDs carrying at least one qualifying diagnosis
// event and at least one qualifying procedure event. The two conditions are
// evaluated independently at the person level with no temporal correlation:
// a diagnosis recorded years before the procedure still qualifies. That is a
// known over-inclusion risk accepted by the cohort definition, not a defect.
func Select(ctx context.Context, store source.EventStore, sets codeset.CodeSets) ([]int64, error) {
	diagnosed, err := store.ConditionPersonIDs(ctx, sets.Diagnoses)
	if err != nil {
		return nil, err
	}
	treated, err := store.ProcedurePersonIDs(ctx, sets.EcmoProcedures)
	if err != nil {
		return nil, err
	}

	persons := intersect(diagnosed, treated)
	logger.Log.WithFields(map[string]interface{}{
		"diagnosed": len(diagnosed),
		"treated":   len(treated),
		"cohort":    len(persons),
	}).Info("Cohort selected")
	return persons, nil
}

func intersect(a, b []int64) []int64 {
	seen := make(map[int64]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	var out []int64
	picked := make(map[int64]bool)
	for _, id := range b {
		if seen[id] && !picked[id] {
			out = append(out, id)
			picked[id] = true
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
