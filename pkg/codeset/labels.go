package codeset

// Fallback labels for unmapped or null inputs.
const (
	OtherUnknown    = "Other/Unknown"
	CannotCalculate = "Cannot Calculate"
)

// Labels holds every display-label lookup table applied by the output
// assembler. Unmapped codes fall back to Other/Unknown; buckets of
// uncomputable quantities fall back to Cannot Calculate.
type Labels struct {
	Sites       map[string]string `yaml:"sites" json:"sites"`
	Genders     map[string]string `yaml:"genders" json:"genders"`
	Races       map[string]string `yaml:"races" json:"races"`
	Ethnicities map[string]string `yaml:"ethnicities" json:"ethnicities"`

	AgeGroups      []Bucket `yaml:"age_groups" json:"age_groups"`
	DurationGroups []Bucket `yaml:"duration_groups" json:"duration_groups"`
	SeverityGroups []Bucket `yaml:"severity_groups" json:"severity_groups"`
}

// Bucket labels all values at or above Min; tables are evaluated in order
// and the first match wins, so they must be sorted by descending Min.
type Bucket struct {
	Min   float64 `yaml:"min" json:"min"`
	Label string  `yaml:"label" json:"label"`
}

func lookup(table map[string]string, code string) string {
	if label, ok := table[code]; ok {
		return label
	}
	return OtherUnknown
}

func (l Labels) Site(code string) string      { return lookup(l.Sites, code) }
func (l Labels) Gender(code string) string    { return lookup(l.Genders, code) }
func (l Labels) Race(code string) string      { return lookup(l.Races, code) }
func (l Labels) Ethnicity(code string) string { return lookup(l.Ethnicities, code) }

func bucketize(table []Bucket, value float64) string {
	for _, b := range table {
		if value >= b.Min {
			return b.Label
		}
	}
	return CannotCalculate
}

// AgeGroup labels an age at admission. A nil age (missing birth year or
// admission date) cannot be bucketed, and negative ages (birth year after
// admission, a source data defect) fall through the table the same way.
func (l Labels) AgeGroup(age *int) string {
	if age == nil {
		return CannotCalculate
	}
	return bucketize(l.AgeGroups, float64(*age))
}

// DurationGroup labels an ECMO episode length in hours. A single-event
// episode has exactly zero hours and still buckets; only negative
// durations are uncomputable.
func (l Labels) DurationGroup(hours float64) string {
	if hours < 0 {
		return CannotCalculate
	}
	return bucketize(l.DurationGroups, hours)
}

// SeverityGroup labels a total SOFA score. A total with zero available
// components is not a score at all.
func (l Labels) SeverityGroup(total, componentsAvailable int) string {
	if componentsAvailable == 0 {
		return CannotCalculate
	}
	return bucketize(l.SeverityGroups, float64(total))
}

func DefaultLabels() Labels {
	return Labels{
		Sites: map[string]string{
			"10": "University Hospital",
			"20": "Memorial Medical Center",
			"30": "Regional Children's Hospital",
		},
		Genders: map[string]string{
			"8507": "Male",
			"8532": "Female",
		},
		Races: map[string]string{
			"8527": "White",
			"8516": "Black or African American",
			"8515": "Asian",
			"8557": "Native Hawaiian or Other Pacific Islander",
			"8657": "American Indian or Alaska Native",
		},
		Ethnicities: map[string]string{
			"38003563": "Hispanic or Latino",
			"38003564": "Not Hispanic or Latino",
		},
		AgeGroups: []Bucket{
			{Min: 80, Label: "80+"},
			{Min: 60, Label: "60-79"},
			{Min: 40, Label: "40-59"},
			{Min: 18, Label: "18-39"},
			{Min: 0, Label: "Pediatric (<18)"},
		},
		DurationGroups: []Bucket{
			{Min: 336, Label: "More than 14 days"},
			{Min: 168, Label: "7 to 14 days"},
			{Min: 72, Label: "3 to 7 days"},
			{Min: 0, Label: "Less than 3 days"},
		},
		SeverityGroups: []Bucket{
			{Min: 13, Label: "Critical (13+)"},
			{Min: 10, Label: "Severe (10-12)"},
			{Min: 7, Label: "Moderate (7-9)"},
			{Min: 0, Label: "Mild (0-6)"},
		},
	}
}
