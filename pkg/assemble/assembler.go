package assemble

import (
	"sort"

	"github.com/icustudies/ecmo-cohort/pkg/codeset"
	"github.com/icustudies/ecmo-cohort/pkg/common/models"
	"github.com/icustudies/ecmo-cohort/pkg/measure"
	"github.com/icustudies/ecmo-cohort/pkg/sofa"
)

// Inputs are the per-visit derived tables, each keyed by (person_id,
// visit_id). Episodes drives the join: every episode key yields exactly one
// output row, and the other tables join in left-outer fashion with typed
// defaults when a key is absent.
type Inputs struct {
	Episodes     map[models.VisitKey]models.EcmoEpisode
	Demographics map[models.VisitKey]models.VisitDemographics
	Labs         map[models.VisitKey]models.LabAggregates
	Exposures    map[models.VisitKey]models.ExposureFlags
	CRRT         map[models.VisitKey]int
	Mortality    map[models.VisitKey]models.MortalityOutcome
}

// Assemble joins the derived tables, computes the SOFA score per row,
// applies the display-label tables, and emits rows sorted ascending by
// (person_id, visit_id) so re-runs against unchanged source facts are
// byte-identical.
func Assemble(in Inputs, labels codeset.Labels) []models.VisitRecord {
	records := make([]models.VisitRecord, 0, len(in.Episodes))
	for key, episode := range in.Episodes {
		demo := in.Demographics[key]
		labs := in.Labs[key]
		exposures := in.Exposures[key]
		score := sofa.Score(labs, exposures.AnyVasopressor)
		hours := measure.Round(episode.Hours(), 1)

		record := models.VisitRecord{
			PersonID: key.PersonID,
			VisitID:  key.VisitID,

			Site:           demo.Site,
			SiteName:       labels.Site(demo.Site),
			Gender:         demo.Gender,
			GenderLabel:    labels.Gender(demo.Gender),
			Race:           demo.Race,
			RaceLabel:      labels.Race(demo.Race),
			Ethnicity:      demo.Ethnicity,
			EthnicityLabel: labels.Ethnicity(demo.Ethnicity),
			BirthYear:      demo.BirthYear,
			AgeAtAdmission: demo.AgeAtAdmission,
			AgeGroup:       labels.AgeGroup(demo.AgeAtAdmission),

			AdmissionDate:     demo.AdmissionDate,
			EcmoStartDate:     episode.StartDate,
			EcmoEndDate:       episode.EndDate,
			EcmoStartDateTime: episode.StartDateTime,
			EcmoEndDateTime:   episode.EndDateTime,
			EcmoHours:         hours,
			EcmoDurationGroup: labels.DurationGroup(hours),

			Labs: labs,

			SOFA:              score,
			SOFASeverityGroup: labels.SeverityGroup(score.Total, score.ComponentsAvailable),

			Exposures: exposures,
			CRRT:      in.CRRT[key],

			Mortality: in.Mortality[key],
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Key().Less(records[j].Key())
	})
	return records
}
