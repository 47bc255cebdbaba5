package exposure

import (
	"context"

	"github.com/icustudies/ecmo-cohort/pkg/common/models"
	"github.com/icustudies/ecmo-cohort/pkg/source"
)

// ProcedureFlag is the procedure-log counterpart of the drug exposure
// check, used for the CRRT flag: 1 if any matching procedure event exists
// anywhere in the visit span, else 0.
func ProcedureFlag(ctx context.Context, store source.EventStore, codes []string, episodes map[models.VisitKey]models.EcmoEpisode, persons []int64) (map[models.VisitKey]int, error) {
	if len(episodes) == 0 {
		return map[models.VisitKey]int{}, nil
	}
	events, err := store.ProcedureEvents(ctx, codes, persons)
	if err != nil {
		return nil, err
	}

	present := make(map[models.VisitKey]bool)
	for _, ev := range events {
		if ev.VisitID == nil {
			continue
		}
		present[models.VisitKey{PersonID: ev.PersonID, VisitID: *ev.VisitID}] = true
	}

	out := make(map[models.VisitKey]int, len(episodes))
	for key := range episodes {
		if present[key] {
			out[key] = 1
		} else {
			out[key] = 0
		}
	}
	return out, nil
}
