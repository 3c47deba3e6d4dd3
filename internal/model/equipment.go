package model

import (
	"sort"
	"strings"
)

// FieldName identifies one technical field carried on a component.
type FieldName string

// Field vocabulary shared by policies, prompts, the parser and the merger.
const (
	FieldFluid             FieldName = "fluid"
	FieldMaterialSpec      FieldName = "material_spec"
	FieldMaterialGrade     FieldName = "material_grade"
	FieldInsulation        FieldName = "insulation"
	FieldDesignTemp        FieldName = "design_temp"
	FieldDesignPressure    FieldName = "design_pressure"
	FieldOperatingTemp     FieldName = "operating_temp"
	FieldOperatingPressure FieldName = "operating_pressure"
)

// AllFields lists the vocabulary in the order used for prompts and reports.
var AllFields = []FieldName{
	FieldFluid,
	FieldMaterialSpec,
	FieldMaterialGrade,
	FieldInsulation,
	FieldDesignTemp,
	FieldDesignPressure,
	FieldOperatingTemp,
	FieldOperatingPressure,
}

var responseKeys = map[FieldName]string{
	FieldFluid:             "FLUID",
	FieldMaterialSpec:      "MATERIAL_SPEC",
	FieldMaterialGrade:     "MATERIAL_GRADE",
	FieldInsulation:        "INSULATION",
	FieldDesignTemp:        "DESIGN_TEMP",
	FieldDesignPressure:    "DESIGN_PRESS",
	FieldOperatingTemp:     "OPERATING_TEMP",
	FieldOperatingPressure: "OPERATING_PRESS",
}

// keyAliases maps spellings models commonly drift to back onto the vocabulary.
var keyAliases = map[string]FieldName{
	"DESIGN_PRESSURE":        FieldDesignPressure,
	"OPERATING_PRESSURE":     FieldOperatingPressure,
	"DESIGN_TEMPERATURE":     FieldDesignTemp,
	"OPERATING_TEMPERATURE":  FieldOperatingTemp,
	"MATERIAL_SPECIFICATION": FieldMaterialSpec,
}

var labels = map[FieldName]string{
	FieldFluid:             "Fluid",
	FieldMaterialSpec:      "Material Specification",
	FieldMaterialGrade:     "Material Grade",
	FieldInsulation:        "Insulation",
	FieldDesignTemp:        "Design Temperature",
	FieldDesignPressure:    "Design Pressure",
	FieldOperatingTemp:     "Operating Temperature",
	FieldOperatingPressure: "Operating Pressure",
}

// ResponseKey returns the upper-case key the model must use in its answer.
func (f FieldName) ResponseKey() string {
	return responseKeys[f]
}

// Label returns a human-readable name for prompts and logs.
func (f FieldName) Label() string {
	if l, ok := labels[f]; ok {
		return l
	}
	return string(f)
}

// IsNumeric reports whether the field holds a temperature or pressure.
func (f FieldName) IsNumeric() bool {
	switch f {
	case FieldDesignTemp, FieldDesignPressure, FieldOperatingTemp, FieldOperatingPressure:
		return true
	default:
		return false
	}
}

// IsMaterial reports whether the field is read from material tables.
func (f FieldName) IsMaterial() bool {
	return f == FieldMaterialSpec || f == FieldMaterialGrade
}

// Valid reports whether f belongs to the vocabulary.
func (f FieldName) Valid() bool {
	_, ok := responseKeys[f]
	return ok
}

// FieldByResponseKey resolves a response key (or a known alias) to a field.
// Keys are matched case-insensitively with spaces treated as underscores.
func FieldByResponseKey(key string) (FieldName, bool) {
	k := strings.ToUpper(strings.TrimSpace(key))
	k = strings.Join(strings.Fields(k), "_")
	for f, rk := range responseKeys {
		if rk == k {
			return f, true
		}
	}
	f, ok := keyAliases[k]
	return f, ok
}

// Component is a named sub-part of an equipment carrying extracted fields.
type Component struct {
	Name         string               `json:"component_name" yaml:"component_name"`
	Phase        string               `json:"phase,omitempty" yaml:"phase,omitempty"`
	ExistingData map[FieldName]string `json:"existing_data" yaml:"existing_data"`
}

// Get returns the trimmed value of a field, or "" when unknown.
func (c *Component) Get(f FieldName) string {
	if c.ExistingData == nil {
		return ""
	}
	return strings.TrimSpace(c.ExistingData[f])
}

// Has reports whether the field holds a non-empty value.
func (c *Component) Has(f FieldName) bool {
	return c.Get(f) != ""
}

// Set stores a field value.
func (c *Component) Set(f FieldName, v string) {
	if c.ExistingData == nil {
		c.ExistingData = make(map[FieldName]string, len(AllFields))
	}
	c.ExistingData[f] = v
}

// Equipment is a vessel or exchanger with its ordered components.
type Equipment struct {
	EquipmentNumber string       `json:"equipment_number" yaml:"equipment_number"`
	PMTNumber       string       `json:"pmt_number" yaml:"pmt_number"`
	Description     string       `json:"description,omitempty" yaml:"description,omitempty"`
	Components      []*Component `json:"components" yaml:"components"`
}

// Component returns the component with exactly the given name, or nil.
func (e *Equipment) Component(name string) *Component {
	for _, c := range e.Components {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ComponentNames returns component names in their stored order.
func (e *Equipment) ComponentNames() []string {
	names := make([]string, 0, len(e.Components))
	for _, c := range e.Components {
		names = append(names, c.Name)
	}
	return names
}

// EquipmentMap indexes equipment by equipment number.
type EquipmentMap map[string]*Equipment

// Numbers returns the equipment numbers in sorted order.
func (m EquipmentMap) Numbers() []string {
	out := make([]string, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// MissingSet holds equipment numbers that still lack required data.
type MissingSet map[string]struct{}

// NewMissingSet builds a set from the given numbers.
func NewMissingSet(numbers ...string) MissingSet {
	s := make(MissingSet, len(numbers))
	for _, n := range numbers {
		s[n] = struct{}{}
	}
	return s
}

// Add inserts n.
func (s MissingSet) Add(n string) { s[n] = struct{}{} }

// Remove deletes n.
func (s MissingSet) Remove(n string) { delete(s, n) }

// Has reports membership.
func (s MissingSet) Has(n string) bool {
	_, ok := s[n]
	return ok
}

// Clone returns an independent copy.
func (s MissingSet) Clone() MissingSet {
	out := make(MissingSet, len(s))
	for n := range s {
		out[n] = struct{}{}
	}
	return out
}

// Restrict returns the members of s that also appear in numbers, in the
// order given by numbers.
func (s MissingSet) Restrict(numbers []string) []string {
	var out []string
	for _, n := range numbers {
		if s.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// Sorted returns members in sorted order.
func (s MissingSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
