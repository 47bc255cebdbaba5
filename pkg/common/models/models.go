package models

import (
	"time"

	"github.com/google/uuid"
)

// Source facts. These mirror the collaborator event-log schemas and are
// read-only: the pipeline never writes to them.

type Patient struct {
	PersonID  int64  `json:"person_id"`
	Gender    string `json:"gender"`
	Race      string `json:"race"`
	Ethnicity string `json:"ethnicity"`
	BirthYear int    `json:"birth_year"`
	Site      string `json:"site"`
}

type Visit struct {
	PersonID      int64     `json:"person_id"`
	VisitID       int64     `json:"visit_id"`
	AdmissionDate time.Time `json:"admission_date"`
}

type ConditionEvent struct {
	PersonID    int64     `json:"person_id"`
	VisitID     *int64    `json:"visit_id,omitempty"`
	ConceptCode string    `json:"concept_code"`
	EventDate   time.Time `json:"event_date"`
}

type ProcedureEvent struct {
	PersonID      int64     `json:"person_id"`
	VisitID       *int64    `json:"visit_id,omitempty"`
	ConceptCode   string    `json:"concept_code"`
	EventDate     time.Time `json:"event_date"`
	EventDateTime time.Time `json:"event_datetime"`
}

type MeasurementEvent struct {
	PersonID    int64     `json:"person_id"`
	VisitID     *int64    `json:"visit_id,omitempty"`
	ConceptCode string    `json:"concept_code"`
	Value       *float64  `json:"value,omitempty"`
	EventDate   time.Time `json:"event_date"`
}

type DrugEvent struct {
	PersonID    int64     `json:"person_id"`
	VisitID     *int64    `json:"visit_id,omitempty"`
	ConceptCode string    `json:"concept_code"`
	EventDate   time.Time `json:"event_date"`
}

// DeathRecord is a person-level fact; at most one per person.
type DeathRecord struct {
	PersonID  int64      `json:"person_id"`
	DeathDate *time.Time `json:"death_date,omitempty"`
}

// VisitKey is the composite join key used by every per-visit table except
// death, which joins on person_id alone.
type VisitKey struct {
	PersonID int64 `json:"person_id"`
	VisitID  int64 `json:"visit_id"`
}

// Less orders keys ascending by (person_id, visit_id) for reproducible output.
func (k VisitKey) Less(other VisitKey) bool {
	if k.PersonID != other.PersonID {
		return k.PersonID < other.PersonID
	}
	return k.VisitID < other.VisitID
}

// EcmoEpisode bounds one visit's qualifying ECMO procedure events.
// StartDate <= EndDate always holds; the datetime pair carries instant
// precision for duration-in-hours.
type EcmoEpisode struct {
	PersonID      int64     `json:"person_id"`
	VisitID       int64     `json:"visit_id"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	StartDateTime time.Time `json:"start_datetime"`
	EndDateTime   time.Time `json:"end_datetime"`
}

func (e EcmoEpisode) Hours() float64 {
	return e.EndDateTime.Sub(e.StartDateTime).Hours()
}

// VisitDemographics is the patient reference joined onto one resolved
// visit. AgeAtAdmission is nil when the birth year or the visit reference
// row is missing.
type VisitDemographics struct {
	Patient
	VisitID        int64     `json:"visit_id"`
	AdmissionDate  time.Time `json:"admission_date"`
	AgeAtAdmission *int      `json:"age_at_admission,omitempty"`
}

// LabAggregates holds the per-visit measurement means plus derived vitals.
// A nil field means no qualifying event survived the data-quality filter.
type LabAggregates struct {
	Creatinine *float64 `json:"creatinine_avg,omitempty"`
	Platelets  *float64 `json:"platelets_avg,omitempty"`
	Bilirubin  *float64 `json:"bilirubin_avg,omitempty"`
	PaO2       *float64 `json:"pao2_avg,omitempty"`
	FiO2       *float64 `json:"fio2_avg,omitempty"`
	Systolic   *float64 `json:"systolic_avg,omitempty"`
	Diastolic  *float64 `json:"diastolic_avg,omitempty"`
	MAP        *float64 `json:"map,omitempty"`
	PFRatio    *float64 `json:"pf_ratio,omitempty"`
}

// ExposureFlags are pure existence checks over the visit span; always 0 or 1,
// never null.
type ExposureFlags struct {
	Norepinephrine int `json:"norepinephrine"`
	Epinephrine    int `json:"epinephrine"`
	Vasopressin    int `json:"vasopressin"`
	Dopamine       int `json:"dopamine"`
	AnyVasopressor int `json:"any_vasopressor"`
	Paralytics     int `json:"paralytics"`
	InhaledNO      int `json:"inhaled_no"`
}

// SOFAScore carries the four computed components, the always-null
// neurological placeholder, and the total/availability pair. Total sums
// nulls as zero while ComponentsAvailable counts coverage; the two are
// deliberately not combined.
type SOFAScore struct {
	Respiratory         *int `json:"sofa_respiratory,omitempty"`
	Coagulation         *int `json:"sofa_coagulation,omitempty"`
	Liver               *int `json:"sofa_liver,omitempty"`
	Cardiovascular      *int `json:"sofa_cardiovascular,omitempty"`
	Neurological        *int `json:"sofa_neurological,omitempty"`
	Total               int  `json:"sofa_total"`
	ComponentsAvailable int  `json:"sofa_components_available"`
}

type MortalityOutcome struct {
	Died             int  `json:"died"`
	DiedWithin30Days *int `json:"died_within_30_days_of_ecmo,omitempty"`
}

// VisitRecord is the output unit: one row per valid (person_id, visit_id).
type VisitRecord struct {
	PersonID int64 `json:"person_id"`
	VisitID  int64 `json:"visit_id"`

	Site           string `json:"site"`
	SiteName       string `json:"site_name"`
	Gender         string `json:"gender"`
	GenderLabel    string `json:"gender_label"`
	Race           string `json:"race"`
	RaceLabel      string `json:"race_label"`
	Ethnicity      string `json:"ethnicity"`
	EthnicityLabel string `json:"ethnicity_label"`
	BirthYear      int    `json:"birth_year"`
	AgeAtAdmission *int   `json:"age_at_admission,omitempty"`
	AgeGroup       string `json:"age_group"`

	AdmissionDate     time.Time `json:"admission_date"`
	EcmoStartDate     time.Time `json:"ecmo_start_date"`
	EcmoEndDate       time.Time `json:"ecmo_end_date"`
	EcmoStartDateTime time.Time `json:"ecmo_start_datetime"`
	EcmoEndDateTime   time.Time `json:"ecmo_end_datetime"`
	EcmoHours         float64   `json:"ecmo_hours"`
	EcmoDurationGroup string    `json:"ecmo_duration_group"`

	Labs LabAggregates `json:"labs"`

	SOFA              SOFAScore `json:"sofa"`
	SOFASeverityGroup string    `json:"sofa_severity_group"`

	Exposures ExposureFlags `json:"exposures"`
	CRRT      int           `json:"crrt"`

	Mortality MortalityOutcome `json:"mortality"`
}

func (r VisitRecord) Key() VisitKey {
	return VisitKey{PersonID: r.PersonID, VisitID: r.VisitID}
}

// Run lifecycle, mirrored by the cohort_runs audit table.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// CohortRun is the audit record for one batch execution.
type CohortRun struct {
	ID              uuid.UUID              `json:"id"`
	Status          string                 `json:"status"`
	RequestedBy     string                 `json:"requested_by,omitempty"`
	PersonCount     int                    `json:"person_count"`
	VisitCount      int                    `json:"visit_count"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	CodeSetSnapshot map[string]interface{} `json:"code_set_snapshot,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
}

type RunRequest struct {
	RequestedBy string `json:"requested_by,omitempty"`
}
