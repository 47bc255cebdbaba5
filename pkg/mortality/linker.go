package mortality

import (
	"context"
	"time"

	"github.com/icustudies/ecmo-cohort/pkg/common/models"
	"github.com/icustudies/ecmo-cohort/pkg/source"
)

const windowDays = 30

// Link joins the person-level death record onto every visit of that person
// and evaluates the 30-day window against each visit's ECMO episode. A
// person with multiple visits carries the same died flag on each, but the
// windowed flag is per episode.
func Link(ctx context.Context, store source.EventStore, episodes map[models.VisitKey]models.EcmoEpisode, persons []int64) (map[models.VisitKey]models.MortalityOutcome, error) {
	if len(episodes) == 0 {
		return map[models.VisitKey]models.MortalityOutcome{}, nil
	}
	records, err := store.DeathRecords(ctx, persons)
	if err != nil {
		return nil, err
	}

	deaths := make(map[int64]*time.Time, len(records))
	for _, rec := range records {
		deaths[rec.PersonID] = rec.DeathDate
	}

	out := make(map[models.VisitKey]models.MortalityOutcome, len(episodes))
	for key, episode := range episodes {
		death, hasRecord := deaths[key.PersonID]
		out[key] = Outcome(episode, hasRecord, death)
	}
	return out, nil
}

// Outcome computes the two mortality fields for one episode. Died is 1
// whenever any death record exists. The windowed flag is 1 when the death
// date falls within [start_date, end_date + 30 days] inclusive, 0 when a
// record exists outside that window, and null when no record exists at all.
func Outcome(episode models.EcmoEpisode, hasRecord bool, deathDate *time.Time) models.MortalityOutcome {
	if !hasRecord {
		return models.MortalityOutcome{Died: 0, DiedWithin30Days: nil}
	}
	outcome := models.MortalityOutcome{Died: 1}
	if deathDate == nil {
		// Record with no usable date: counted as died, window unknowable.
		return outcome
	}
	within := 0
	windowEnd := episode.EndDate.AddDate(0, 0, windowDays)
	if !deathDate.Before(episode.StartDate) && !deathDate.After(windowEnd) {
		within = 1
	}
	outcome.DiedWithin30Days = &within
	return outcome
}
