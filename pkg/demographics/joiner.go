package demographics

import (
	"context"

	"github.com/icustudies/ecmo-cohort/pkg/common/models"
	"github.com/icustudies/ecmo-cohort/pkg/source"
)

// Join attaches patient reference attributes to each resolved visit and
// computes age at admission. Visits with no row in the visit reference
// table keep a zero admission date; they still appear in the output because
// cohort membership is decided by the ECMO episode, not by the reference
// join.
func Join(ctx context.Context, store source.EventStore, episodes map[models.VisitKey]models.EcmoEpisode, persons []int64) (map[models.VisitKey]models.VisitDemographics, error) {
	if len(episodes) == 0 {
		return map[models.VisitKey]models.VisitDemographics{}, nil
	}

	patients, err := store.Patients(ctx, persons)
	if err != nil {
		return nil, err
	}
	visits, err := store.Visits(ctx, persons)
	if err != nil {
		return nil, err
	}

	byPerson := make(map[int64]models.Patient, len(patients))
	for _, p := range patients {
		byPerson[p.PersonID] = p
	}
	byKey := make(map[models.VisitKey]models.Visit, len(visits))
	for _, v := range visits {
		byKey[models.VisitKey{PersonID: v.PersonID, VisitID: v.VisitID}] = v
	}

	joined := make(map[models.VisitKey]models.VisitDemographics, len(episodes))
	for key := range episodes {
		demo := models.VisitDemographics{
			Patient: byPerson[key.PersonID],
			VisitID: key.VisitID,
		}
		demo.PersonID = key.PersonID
		if visit, ok := byKey[key]; ok {
			demo.AdmissionDate = visit.AdmissionDate
			demo.AgeAtAdmission = AgeAtAdmission(visit.AdmissionDate.Year(), demo.BirthYear)
		}
		joined[key] = demo
	}
	return joined, nil
}

// AgeAtAdmission uses calendar-year arithmetic against the specific
// admission, not day-of-birth precision and not a fixed reference year.
// Nil when either year is missing; the age is then uncomputable and must
// not be mistaken for a real age downstream.
func AgeAtAdmission(admissionYear, birthYear int) *int {
	if birthYear == 0 || admissionYear == 0 {
		return nil
	}
	age := admissionYear - birthYear
	return &age
}
