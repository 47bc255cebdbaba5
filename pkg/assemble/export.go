package assemble

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/icustudies/ecmo-cohort/pkg/common/models"
)

// CSVHeader is the fixed export column order.
var CSVHeader = []string{
	"person_id", "visit_id",
	"site", "site_name", "gender", "gender_label", "race", "race_label",
	"ethnicity", "ethnicity_label", "birth_year", "age_at_admission", "age_group",
	"admission_date", "ecmo_start_date", "ecmo_end_date",
	"ecmo_start_datetime", "ecmo_end_datetime", "ecmo_hours", "ecmo_duration_group",
	"creatinine_avg", "platelets_avg", "bilirubin_avg", "pao2_avg", "fio2_avg",
	"systolic_avg", "diastolic_avg", "map", "pf_ratio",
	"sofa_respiratory", "sofa_coagulation", "sofa_liver", "sofa_cardiovascular",
	"sofa_neurological", "sofa_total", "sofa_components_available", "sofa_severity_group",
	"norepinephrine", "epinephrine", "vasopressin", "dopamine", "any_vasopressor",
	"paralytics", "inhaled_no", "crrt",
	"died", "died_within_30_days_of_ecmo",
}

// WriteCSV streams the assembled table in the fixed column order. Null
// aggregates, null subscores, and the null mortality window render as
// empty cells.
func WriteCSV(w io.Writer, records []models.VisitRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.PersonID, 10),
			strconv.FormatInt(r.VisitID, 10),
			r.Site, r.SiteName, r.Gender, r.GenderLabel, r.Race, r.RaceLabel,
			r.Ethnicity, r.EthnicityLabel,
			strconv.Itoa(r.BirthYear), intPtrString(r.AgeAtAdmission), r.AgeGroup,
			dateString(r.AdmissionDate), dateString(r.EcmoStartDate), dateString(r.EcmoEndDate),
			datetimeString(r.EcmoStartDateTime), datetimeString(r.EcmoEndDateTime),
			floatString(r.EcmoHours), r.EcmoDurationGroup,
			floatPtrString(r.Labs.Creatinine), floatPtrString(r.Labs.Platelets),
			floatPtrString(r.Labs.Bilirubin), floatPtrString(r.Labs.PaO2),
			floatPtrString(r.Labs.FiO2), floatPtrString(r.Labs.Systolic),
			floatPtrString(r.Labs.Diastolic), floatPtrString(r.Labs.MAP),
			floatPtrString(r.Labs.PFRatio),
			intPtrString(r.SOFA.Respiratory), intPtrString(r.SOFA.Coagulation),
			intPtrString(r.SOFA.Liver), intPtrString(r.SOFA.Cardiovascular),
			intPtrString(r.SOFA.Neurological),
			strconv.Itoa(r.SOFA.Total), strconv.Itoa(r.SOFA.ComponentsAvailable),
			r.SOFASeverityGroup,
			strconv.Itoa(r.Exposures.Norepinephrine), strconv.Itoa(r.Exposures.Epinephrine),
			strconv.Itoa(r.Exposures.Vasopressin), strconv.Itoa(r.Exposures.Dopamine),
			strconv.Itoa(r.Exposures.AnyVasopressor), strconv.Itoa(r.Exposures.Paralytics),
			strconv.Itoa(r.Exposures.InhaledNO), strconv.Itoa(r.CRRT),
			strconv.Itoa(r.Mortality.Died), intPtrString(r.Mortality.DiedWithin30Days),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func datetimeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func floatString(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func floatPtrString(v *float64) string {
	if v == nil {
		return ""
	}
	return floatString(*v)
}

func intPtrString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
