package output

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/icustudies/ecmo-cohort/pkg/common/models"
	"gorm.io/gorm"
)

type visitRecordModel struct {
	PersonID int64     `gorm:"primaryKey;column:person_id"`
	VisitID  int64     `gorm:"primaryKey;column:visit_id"`
	RunID    uuid.UUID `gorm:"column:run_id"`

	Site           string `gorm:"column:site"`
	SiteName       string `gorm:"column:site_name"`
	Gender         string `gorm:"column:gender"`
	GenderLabel    string `gorm:"column:gender_label"`
	Race           string `gorm:"column:race"`
	RaceLabel      string `gorm:"column:race_label"`
	Ethnicity      string `gorm:"column:ethnicity"`
	EthnicityLabel string `gorm:"column:ethnicity_label"`
	BirthYear      int    `gorm:"column:birth_year"`
	AgeAtAdmission *int   `gorm:"column:age_at_admission"`
	AgeGroup       string `gorm:"column:age_group"`

	AdmissionDate     time.Time `gorm:"column:admission_date"`
	EcmoStartDate     time.Time `gorm:"column:ecmo_start_date"`
	EcmoEndDate       time.Time `gorm:"column:ecmo_end_date"`
	EcmoStartDateTime time.Time `gorm:"column:ecmo_start_datetime"`
	EcmoEndDateTime   time.Time `gorm:"column:ecmo_end_datetime"`
	EcmoHours         float64   `gorm:"column:ecmo_hours"`
	EcmoDurationGroup string    `gorm:"column:ecmo_duration_group"`

	CreatinineAvg *float64 `gorm:"column:creatinine_avg"`
	PlateletsAvg  *float64 `gorm:"column:platelets_avg"`
	BilirubinAvg  *float64 `gorm:"column:bilirubin_avg"`
	PaO2Avg       *float64 `gorm:"column:pao2_avg"`
	FiO2Avg       *float64 `gorm:"column:fio2_avg"`
	SystolicAvg   *float64 `gorm:"column:systolic_avg"`
	DiastolicAvg  *float64 `gorm:"column:diastolic_avg"`
	MAP           *float64 `gorm:"column:map"`
	PFRatio       *float64 `gorm:"column:pf_ratio"`

	SOFARespiratory         *int   `gorm:"column:sofa_respiratory"`
	SOFACoagulation         *int   `gorm:"column:sofa_coagulation"`
	SOFALiver               *int   `gorm:"column:sofa_liver"`
	SOFACardiovascular      *int   `gorm:"column:sofa_cardiovascular"`
	SOFANeurological        *int   `gorm:"column:sofa_neurological"`
	SOFATotal               int    `gorm:"column:sofa_total"`
	SOFAComponentsAvailable int    `gorm:"column:sofa_components_available"`
	SOFASeverityGroup       string `gorm:"column:sofa_severity_group"`

	Norepinephrine int `gorm:"column:norepinephrine"`
	Epinephrine    int `gorm:"column:epinephrine"`
	Vasopressin    int `gorm:"column:vasopressin"`
	Dopamine       int `gorm:"column:dopamine"`
	AnyVasopressor int `gorm:"column:any_vasopressor"`
	Paralytics     int `gorm:"column:paralytics"`
	InhaledNO      int `gorm:"column:inhaled_no"`
	CRRT           int `gorm:"column:crrt"`

	Died             int  `gorm:"column:died"`
	DiedWithin30Days *int `gorm:"column:died_within_30_days_of_ecmo"`
}

func (visitRecordModel) TableName() string {
	return "cohort_visit_records"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&visitRecordModel{})
}

// Replace swaps the whole table for the new run's rows in one transaction.
// The table is always a full recomputation from source facts; there is no
// update-in-place.
func (r *Repository) Replace(ctx context.Context, runID uuid.UUID, records []models.VisitRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&visitRecordModel{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		rows := make([]visitRecordModel, 0, len(records))
		for _, rec := range records {
			rows = append(rows, toModel(runID, rec))
		}
		return tx.CreateInBatches(rows, 200).Error
	})
}

// List returns the persisted table sorted ascending by (person_id,
// visit_id), matching the assembler's emit order.
func (r *Repository) List(ctx context.Context) ([]models.VisitRecord, error) {
	var rows []visitRecordModel
	err := r.db.WithContext(ctx).
		Order("person_id ASC, visit_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	records := make([]models.VisitRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toDomain(row))
	}
	return records, nil
}

func toModel(runID uuid.UUID, rec models.VisitRecord) visitRecordModel {
	return visitRecordModel{
		PersonID: rec.PersonID,
		VisitID:  rec.VisitID,
		RunID:    runID,

		Site:           rec.Site,
		SiteName:       rec.SiteName,
		Gender:         rec.Gender,
		GenderLabel:    rec.GenderLabel,
		Race:           rec.Race,
		RaceLabel:      rec.RaceLabel,
		Ethnicity:      rec.Ethnicity,
		EthnicityLabel: rec.EthnicityLabel,
		BirthYear:      rec.BirthYear,
		AgeAtAdmission: rec.AgeAtAdmission,
		AgeGroup:       rec.AgeGroup,

		AdmissionDate:     rec.AdmissionDate,
		EcmoStartDate:     rec.EcmoStartDate,
		EcmoEndDate:       rec.EcmoEndDate,
		EcmoStartDateTime: rec.EcmoStartDateTime,
		EcmoEndDateTime:   rec.EcmoEndDateTime,
		EcmoHours:         rec.EcmoHours,
		EcmoDurationGroup: rec.EcmoDurationGroup,

		CreatinineAvg: rec.Labs.Creatinine,
		PlateletsAvg:  rec.Labs.Platelets,
		BilirubinAvg:  rec.Labs.Bilirubin,
		PaO2Avg:       rec.Labs.PaO2,
		FiO2Avg:       rec.Labs.FiO2,
		SystolicAvg:   rec.Labs.Systolic,
		DiastolicAvg:  rec.Labs.Diastolic,
		MAP:           rec.Labs.MAP,
		PFRatio:       rec.Labs.PFRatio,

		SOFARespiratory:         rec.SOFA.Respiratory,
		SOFACoagulation:         rec.SOFA.Coagulation,
		SOFALiver:               rec.SOFA.Liver,
		SOFACardiovascular:      rec.SOFA.Cardiovascular,
		SOFANeurological:        rec.SOFA.Neurological,
		SOFATotal:               rec.SOFA.Total,
		SOFAComponentsAvailable: rec.SOFA.ComponentsAvailable,
		SOFASeverityGroup:       rec.SOFASeverityGroup,

		Norepinephrine: rec.Exposures.Norepinephrine,
		Epinephrine:    rec.Exposures.Epinephrine,
		Vasopressin:    rec.Exposures.Vasopressin,
		Dopamine:       rec.Exposures.Dopamine,
		AnyVasopressor: rec.Exposures.AnyVasopressor,
		Paralytics:     rec.Exposures.Paralytics,
		InhaledNO:      rec.Exposures.InhaledNO,
		CRRT:           rec.CRRT,

		Died:             rec.Mortality.Died,
		DiedWithin30Days: rec.Mortality.DiedWithin30Days,
	}
}

func toDomain(row visitRecordModel) models.VisitRecord {
	return models.VisitRecord{
		PersonID: row.PersonID,
		VisitID:  row.VisitID,

		Site:           row.Site,
		SiteName:       row.SiteName,
		Gender:         row.Gender,
		GenderLabel:    row.GenderLabel,
		Race:           row.Race,
		RaceLabel:      row.RaceLabel,
		Ethnicity:      row.Ethnicity,
		EthnicityLabel: row.EthnicityLabel,
		BirthYear:      row.BirthYear,
		AgeAtAdmission: row.AgeAtAdmission,
		AgeGroup:       row.AgeGroup,

		AdmissionDate:     row.AdmissionDate,
		EcmoStartDate:     row.EcmoStartDate,
		EcmoEndDate:       row.EcmoEndDate,
		EcmoStartDateTime: row.EcmoStartDateTime,
		EcmoEndDateTime:   row.EcmoEndDateTime,
		EcmoHours:         row.EcmoHours,
		EcmoDurationGroup: row.EcmoDurationGroup,

		Labs: models.LabAggregates{
			Creatinine: row.CreatinineAvg,
			Platelets:  row.PlateletsAvg,
			Bilirubin:  row.BilirubinAvg,
			PaO2:       row.PaO2Avg,
			FiO2:       row.FiO2Avg,
			Systolic:   row.SystolicAvg,
			Diastolic:  row.DiastolicAvg,
			MAP:        row.MAP,
			PFRatio:    row.PFRatio,
		},

		SOFA: models.SOFAScore{
			Respiratory:         row.SOFARespiratory,
			Coagulation:         row.SOFACoagulation,
			Liver:               row.SOFALiver,
			Cardiovascular:      row.SOFACardiovascular,
			Neurological:        row.SOFANeurological,
			Total:               row.SOFATotal,
			ComponentsAvailable: row.SOFAComponentsAvailable,
		},
		SOFASeverityGroup: row.SOFASeverityGroup,

		Exposures: models.ExposureFlags{
			Norepinephrine: row.Norepinephrine,
			Epinephrine:    row.Epinephrine,
			Vasopressin:    row.Vasopressin,
			Dopamine:       row.Dopamine,
			AnyVasopressor: row.AnyVasopressor,
			Paralytics:     row.Paralytics,
			InhaledNO:      row.InhaledNO,
		},
		CRRT: row.CRRT,

		Mortality: models.MortalityOutcome{
			Died:             row.Died,
			DiedWithin30Days: row.DiedWithin30Days,
		},
	}
}
