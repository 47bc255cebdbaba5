package codeset

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Logical lab variable names used throughout the pipeline.
const (
	LabCreatinine = "creatinine"
	LabPlatelets  = "platelets"
	LabBilirubin  = "bilirubin"
	LabPaO2       = "pao2"
	LabFiO2       = "fio2"
	LabSystolic   = "systolic_bp"
	LabDiastolic  = "diastolic_bp"
)

// Drug/procedure exposure class names.
const (
	ClassNorepinephrine = "norepinephrine"
	ClassEpinephrine    = "epinephrine"
	ClassVasopressin    = "vasopressin"
	ClassDopamine       = "dopamine"
	ClassParalytics     = "paralytics"
	ClassInhaledNO      = "inhaled_no"
)

// LabVariable names the concept codes carrying one logical measurement.
// Fallback codes are consulted only when the primary codes yield no
// aggregate at all; Decimals is the rounding precision of the mean.
type LabVariable struct {
	Primary  []string `yaml:"primary" json:"primary"`
	Fallback []string `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	Decimals int      `yaml:"decimals" json:"decimals"`
}

// CodeSets is the full swappable configuration surface: every qualifying
// code enumeration plus the display-label tables. Swapping the file never
// touches pipeline logic.
type CodeSets struct {
	Diagnoses      []string               `yaml:"diagnoses" json:"diagnoses"`
	EcmoProcedures []string               `yaml:"ecmo_procedures" json:"ecmo_procedures"`
	CRRTProcedures []string               `yaml:"crrt_procedures" json:"crrt_procedures"`
	Labs           map[string]LabVariable `yaml:"labs" json:"labs"`
	DrugClasses    map[string][]string    `yaml:"drug_classes" json:"drug_classes"`
	Labels         Labels                 `yaml:"labels" json:"labels"`
}

func Load(path string) (CodeSets, error) {
	if path == "" {
		return DefaultCodeSets(), nil
	}
	content, err := ioutil.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCodeSets(), err
	}
	var sets CodeSets
	if err := yaml.Unmarshal(content, &sets); err != nil {
		return CodeSets{}, err
	}
	if len(sets.Diagnoses) == 0 || len(sets.EcmoProcedures) == 0 {
		return CodeSets{}, fmt.Errorf("code set file missing diagnosis or ECMO procedure codes")
	}
	return sets, nil
}

// Lab returns the variable definition for a logical name.
func (c CodeSets) Lab(name string) (LabVariable, bool) {
	v, ok := c.Labs[name]
	return v, ok
}

// Class returns the enumerated code set for an exposure class.
func (c CodeSets) Class(name string) []string {
	return c.DrugClasses[name]
}

// Snapshot flattens the configuration for the run audit record.
func (c CodeSets) Snapshot() map[string]interface{} {
	labs := make(map[string]interface{}, len(c.Labs))
	for name, v := range c.Labs {
		labs[name] = map[string]interface{}{
			"primary":  v.Primary,
			"fallback": v.Fallback,
			"decimals": v.Decimals,
		}
	}
	classes := make(map[string]interface{}, len(c.DrugClasses))
	for name, codes := range c.DrugClasses {
		classes[name] = codes
	}
	return map[string]interface{}{
		"diagnoses":       c.Diagnoses,
		"ecmo_procedures": c.EcmoProcedures,
		"crrt_procedures": c.CRRTProcedures,
		"labs":            labs,
		"drug_classes":    classes,
	}
}

// DefaultCodeSets is the compiled-in VV-ECMO configuration used when no
// file is supplied.
func DefaultCodeSets() CodeSets {
	return CodeSets{
		// Severe respiratory failure / ARDS diagnoses.
		Diagnoses: []string{"4195694", "4191650", "255348"},
		// VV-ECMO cannulation and maintenance procedures.
		EcmoProcedures: []string{"4052536", "4338595", "2314035"},
		CRRTProcedures: []string{"37018292", "4146536"},
		Labs: map[string]LabVariable{
			LabCreatinine: {Primary: []string{"3016723"}, Decimals: 2},
			LabPlatelets:  {Primary: []string{"3024929"}, Decimals: 1},
			LabBilirubin:  {Primary: []string{"3024128"}, Decimals: 2},
			LabPaO2:       {Primary: []string{"3027801"}, Decimals: 1},
			LabFiO2:       {Primary: []string{"3020716"}, Fallback: []string{"3022875"}, Decimals: 1},
			LabSystolic:   {Primary: []string{"3004249"}, Decimals: 1},
			LabDiastolic:  {Primary: []string{"3012888"}, Decimals: 1},
		},
		DrugClasses: map[string][]string{
			ClassNorepinephrine: {"1321341", "19076867"},
			ClassEpinephrine:    {"1343916", "19076899"},
			ClassVasopressin:    {"1507835"},
			ClassDopamine:       {"1337720"},
			ClassParalytics:     {"19003953", "836208"},
			ClassInhaledNO:      {"19018253"},
		},
		Labels: DefaultLabels(),
	}
}
