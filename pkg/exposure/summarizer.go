package exposure

import (
	"context"

	"github.com/icustudies/ecmo-cohort/pkg/codeset"
	"github.com/icustudies/ecmo-cohort/pkg/common/models"
	"github.com/icustudies/ecmo-cohort/pkg/source"
)

// Summarize derives the per-visit binary exposure flags. Every flag is a
// pure existence check over the visit span with no temporal windowing
// against the ECMO episode; a visit with no matching events at all gets 0,
// never null.
func Summarize(ctx context.Context, store source.EventStore, sets codeset.CodeSets, episodes map[models.VisitKey]models.EcmoEpisode, persons []int64) (map[models.VisitKey]models.ExposureFlags, error) {
	if len(episodes) == 0 {
		return map[models.VisitKey]models.ExposureFlags{}, nil
	}

	var codes []string
	for _, classCodes := range sets.DrugClasses {
		codes = append(codes, classCodes...)
	}
	events, err := store.DrugEvents(ctx, codes, persons)
	if err != nil {
		return nil, err
	}

	visitCodes := codesByVisit(events)
	out := make(map[models.VisitKey]models.ExposureFlags, len(episodes))
	for key := range episodes {
		out[key] = flagsFor(visitCodes[key], sets)
	}
	return out, nil
}

func codesByVisit(events []models.DrugEvent) map[models.VisitKey]map[string]bool {
	grouped := make(map[models.VisitKey]map[string]bool)
	for _, ev := range events {
		if ev.VisitID == nil {
			continue
		}
		key := models.VisitKey{PersonID: ev.PersonID, VisitID: *ev.VisitID}
		if grouped[key] == nil {
			grouped[key] = make(map[string]bool)
		}
		grouped[key][ev.ConceptCode] = true
	}
	return grouped
}

func flagsFor(present map[string]bool, sets codeset.CodeSets) models.ExposureFlags {
	flags := models.ExposureFlags{
		Norepinephrine: HasAny(present, sets.Class(codeset.ClassNorepinephrine)),
		Epinephrine:    HasAny(present, sets.Class(codeset.ClassEpinephrine)),
		Vasopressin:    HasAny(present, sets.Class(codeset.ClassVasopressin)),
		Dopamine:       HasAny(present, sets.Class(codeset.ClassDopamine)),
		Paralytics:     HasAny(present, sets.Class(codeset.ClassParalytics)),
		InhaledNO:      HasAny(present, sets.Class(codeset.ClassInhaledNO)),
	}
	if flags.Norepinephrine == 1 || flags.Epinephrine == 1 || flags.Vasopressin == 1 || flags.Dopamine == 1 {
		flags.AnyVasopressor = 1
	}
	return flags
}

// HasAny is the generic (visit, code-set) existence check behind every
// exposure class.
func HasAny(present map[string]bool, codes []string) int {
	for _, c := range codes {
		if present[c] {
			return 1
		}
	}
	return 0
}
