package cohort

import (
	"context"

	"github.com/icustudies/ecmo-cohort/pkg/codeset"
	"github.com/icustudies/ecmo-cohort/pkg/common/logger"
	"github.com/icustudies/ecmo-cohort/pkg/common/models"
	"github.com/icustudies/ecmo-cohort/pkg/source"
)

// ResolveVisits maps cohort persons to the visits carrying their qualifying
// ECMO procedure events and computes per-visit episode bounds.
func ResolveVisits(ctx context.Context, store source.EventStore, sets codeset.CodeSets, persons []int64) (map[models.VisitKey]models.EcmoEpisode, error) {
	if len(persons) == 0 {
		return map[models.VisitKey]models.EcmoEpisode{}, nil
	}
	events, err := store.ProcedureEvents(ctx, sets.EcmoProcedures, persons)
	if err != nil {
		return nil, err
	}
	episodes := EpisodesFromEvents(events)
	logger.Log.WithFields(map[string]interface{}{
		"persons": len(persons),
		"events":  len(events),
		"visits":  len(episodes),
	}).Info("ECMO visits resolved")
	return episodes, nil
}

// EpisodesFromEvents groups qualifying procedure events by visit identifier
// and bounds each episode as min/max event date plus min/max event instant.
// Events without a visit identifier are dropped entirely: a person whose
// only qualifying events lack a visit ID satisfies the person-level cohort
// yet contributes no output row, so the person-level cohort count can
// legitimately exceed the visit-level output count.
func EpisodesFromEvents(events []models.ProcedureEvent) map[models.VisitKey]models.EcmoEpisode {
	episodes := make(map[models.VisitKey]models.EcmoEpisode)
	for _, ev := range events {
		if ev.VisitID == nil {
			continue
		}
		key := models.VisitKey{PersonID: ev.PersonID, VisitID: *ev.VisitID}
		ep, ok := episodes[key]
		if !ok {
			episodes[key] = models.EcmoEpisode{
				PersonID:      ev.PersonID,
				VisitID:       *ev.VisitID,
				StartDate:     ev.EventDate,
				EndDate:       ev.EventDate,
				StartDateTime: ev.EventDateTime,
				EndDateTime:   ev.EventDateTime,
			}
			continue
		}
		if ev.EventDate.Before(ep.StartDate) {
			ep.StartDate = ev.EventDate
		}
		if ev.EventDate.After(ep.EndDate) {
			ep.EndDate = ev.EventDate
		}
		if ev.EventDateTime.Before(ep.StartDateTime) {
			ep.StartDateTime = ev.EventDateTime
		}
		if ev.EventDateTime.After(ep.EndDateTime) {
			ep.EndDateTime = ev.EventDateTime
		}
		episodes[key] = ep
	}
	return episodes
}
