package source

import (
	"context"
	"time"

	"github.com/icustudies/ecmo-cohort/pkg/common/models"
	"gorm.io/gorm"
)

// EventStore is the read-only view of the collaborator event logs. The
// pipeline depends on this interface; tests supply an in-memory fake.
type EventStore interface {
	// Distinct person IDs carrying at least one event with a matching code.
	ConditionPersonIDs(ctx context.Context, codes []string) ([]int64, error)
	ProcedurePersonIDs(ctx context.Context, codes []string) ([]int64, error)

	ProcedureEvents(ctx context.Context, codes []string, personIDs []int64) ([]models.ProcedureEvent, error)
	MeasurementEvents(ctx context.Context, codes []string, personIDs []int64) ([]models.MeasurementEvent, error)
	DrugEvents(ctx context.Context, codes []string, personIDs []int64) ([]models.DrugEvent, error)

	Patients(ctx context.Context, personIDs []int64) ([]models.Patient, error)
	Visits(ctx context.Context, personIDs []int64) ([]models.Visit, error)
	DeathRecords(ctx context.Context, personIDs []int64) ([]models.DeathRecord, error)
}

// Repository reads the collaborator schema over gorm. All methods are
// pure reads; nothing here ever writes.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ConditionPersonIDs(ctx context.Context, codes []string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Table("condition_events").
		Distinct("person_id").
		Where("concept_code IN ?", codes).
		Pluck("person_id", &ids).Error
	return ids, err
}

func (r *Repository) ProcedurePersonIDs(ctx context.Context, codes []string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Table("procedure_events").
		Distinct("person_id").
		Where("concept_code IN ?", codes).
		Pluck("person_id", &ids).Error
	return ids, err
}

func (r *Repository) ProcedureEvents(ctx context.Context, codes []string, personIDs []int64) ([]models.ProcedureEvent, error) {
	var rows []struct {
		PersonID      int64     `gorm:"column:person_id"`
		VisitID       *int64    `gorm:"column:visit_id"`
		ConceptCode   string    `gorm:"column:concept_code"`
		EventDate     time.Time `gorm:"column:event_date"`
		EventDateTime time.Time `gorm:"column:event_datetime"`
	}
	err := r.db.WithContext(ctx).
		Table("procedure_events").
		Where("concept_code IN ? AND person_id IN ?", codes, personIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	events := make([]models.ProcedureEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, models.ProcedureEvent{
			PersonID:      row.PersonID,
			VisitID:       row.VisitID,
			ConceptCode:   row.ConceptCode,
			EventDate:     row.EventDate,
			EventDateTime: row.EventDateTime,
		})
	}
	return events, nil
}

func (r *Repository) MeasurementEvents(ctx context.Context, codes []string, personIDs []int64) ([]models.MeasurementEvent, error) {
	var rows []struct {
		PersonID    int64     `gorm:"column:person_id"`
		VisitID     *int64    `gorm:"column:visit_id"`
		ConceptCode string    `gorm:"column:concept_code"`
		Value       *float64  `gorm:"column:value_as_number"`
		EventDate   time.Time `gorm:"column:event_date"`
	}
	err := r.db.WithContext(ctx).
		Table("measurement_events").
		Where("concept_code IN ? AND person_id IN ?", codes, personIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	events := make([]models.MeasurementEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, models.MeasurementEvent{
			PersonID:    row.PersonID,
			VisitID:     row.VisitID,
			ConceptCode: row.ConceptCode,
			Value:       row.Value,
			EventDate:   row.EventDate,
		})
	}
	return events, nil
}

func (r *Repository) DrugEvents(ctx context.Context, codes []string, personIDs []int64) ([]models.DrugEvent, error) {
	var rows []struct {
		PersonID    int64     `gorm:"column:person_id"`
		VisitID     *int64    `gorm:"column:visit_id"`
		ConceptCode string    `gorm:"column:concept_code"`
		EventDate   time.Time `gorm:"column:event_date"`
	}
	err := r.db.WithContext(ctx).
		Table("drug_events").
		Where("concept_code IN ? AND person_id IN ?", codes, personIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	events := make([]models.DrugEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, models.DrugEvent{
			PersonID:    row.PersonID,
			VisitID:     row.VisitID,
			ConceptCode: row.ConceptCode,
			EventDate:   row.EventDate,
		})
	}
	return events, nil
}

func (r *Repository) Patients(ctx context.Context, personIDs []int64) ([]models.Patient, error) {
	var rows []struct {
		PersonID  int64  `gorm:"column:person_id"`
		Gender    string `gorm:"column:gender_code"`
		Race      string `gorm:"column:race_code"`
		Ethnicity string `gorm:"column:ethnicity_code"`
		BirthYear int    `gorm:"column:birth_year"`
		Site      string `gorm:"column:site_code"`
	}
	err := r.db.WithContext(ctx).
		Table("patients").
		Where("person_id IN ?", personIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	patients := make([]models.Patient, 0, len(rows))
	for _, row := range rows {
		patients = append(patients, models.Patient{
			PersonID:  row.PersonID,
			Gender:    row.Gender,
			Race:      row.Race,
			Ethnicity: row.Ethnicity,
			BirthYear: row.BirthYear,
			Site:      row.Site,
		})
	}
	return patients, nil
}

func (r *Repository) Visits(ctx context.Context, personIDs []int64) ([]models.Visit, error) {
	var rows []struct {
		PersonID      int64     `gorm:"column:person_id"`
		VisitID       int64     `gorm:"column:visit_id"`
		AdmissionDate time.Time `gorm:"column:admission_date"`
	}
	err := r.db.WithContext(ctx).
		Table("visits").
		Where("person_id IN ?", personIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	visits := make([]models.Visit, 0, len(rows))
	for _, row := range rows {
		visits = append(visits, models.Visit{
			PersonID:      row.PersonID,
			VisitID:       row.VisitID,
			AdmissionDate: row.AdmissionDate,
		})
	}
	return visits, nil
}

func (r *Repository) DeathRecords(ctx context.Context, personIDs []int64) ([]models.DeathRecord, error) {
	var rows []struct {
		PersonID  int64      `gorm:"column:person_id"`
		DeathDate *time.Time `gorm:"column:death_date"`
	}
	err := r.db.WithContext(ctx).
		Table("death_records").
		Where("person_id IN ?", personIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	records := make([]models.DeathRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.DeathRecord{PersonID: row.PersonID, DeathDate: row.DeathDate})
	}
	return records, nil
}
