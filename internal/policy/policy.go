// Package policy holds the per-equipment extraction rules: which fields must
// be read off a drawing and where on the drawing to look for them.
package policy

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/masterfile-cli/internal/model"
)

// Class is one of the three mutually exclusive policy classes.
type Class int

const (
	// ClassFull requires every field in the vocabulary.
	ClassFull Class = iota
	// ClassInsulationOnly requires only the insulation callout.
	ClassInsulationOnly
	// ClassSkipOperating requires everything except operating temperature
	// and pressure, which are pre-filled from another source.
	ClassSkipOperating
)

func (c Class) String() string {
	switch c {
	case ClassFull:
		return "full"
	case ClassInsulationOnly:
		return "insulation_only"
	case ClassSkipOperating:
		return "skip_operating"
	default:
		return "unknown"
	}
}

// ParseClass converts a class name (as written in policy files) to a Class.
// An empty name means ClassFull.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return ClassFull, nil
	case "insulation_only", "insulation-only", "insulation":
		return ClassInsulationOnly, nil
	case "skip_operating", "skip-operating":
		return ClassSkipOperating, nil
	default:
		return ClassFull, eris.Errorf("policy: unknown class %q", s)
	}
}

// RequiredFor returns the required field set of a class in vocabulary order.
func RequiredFor(c Class) []model.FieldName {
	switch c {
	case ClassInsulationOnly:
		return []model.FieldName{model.FieldInsulation}
	case ClassSkipOperating:
		return []model.FieldName{
			model.FieldFluid,
			model.FieldMaterialSpec,
			model.FieldMaterialGrade,
			model.FieldInsulation,
			model.FieldDesignTemp,
			model.FieldDesignPressure,
		}
	default:
		out := make([]model.FieldName, len(model.AllFields))
		copy(out, model.AllFields)
		return out
	}
}

// Instruction tells the model where a field lives on the drawing. It is
// either uniform (one text for every component) or per-component.
type Instruction struct {
	text         string
	perComponent map[string]string
}

// Uniform returns an instruction that applies to every component.
func Uniform(text string) Instruction {
	return Instruction{text: strings.TrimSpace(text)}
}

// PerComponent returns an instruction keyed by component name.
func PerComponent(byComponent map[string]string) Instruction {
	m := make(map[string]string, len(byComponent))
	for name, text := range byComponent {
		m[name] = strings.TrimSpace(text)
	}
	return Instruction{perComponent: m}
}

// IsPerComponent reports whether the instruction varies by component.
func (i Instruction) IsPerComponent() bool { return i.perComponent != nil }

// IsZero reports whether the instruction carries no text at all.
func (i Instruction) IsZero() bool { return i.text == "" && len(i.perComponent) == 0 }

// Text returns the uniform text ("" for per-component instructions).
func (i Instruction) Text() string { return i.text }

// For returns the instruction text for a component. Per-component lookups
// match the exact name first and fall back to a case-insensitive match.
func (i Instruction) For(component string) (string, bool) {
	if !i.IsPerComponent() {
		return i.text, i.text != ""
	}
	if t, ok := i.perComponent[component]; ok {
		return t, t != ""
	}
	for name, t := range i.perComponent {
		if strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(component)) {
			return t, t != ""
		}
	}
	return "", false
}

// Components returns the component names of a per-component instruction, sorted.
func (i Instruction) Components() []string {
	out := make([]string, 0, len(i.perComponent))
	for name := range i.perComponent {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// InsulationHint names the drawing label that carries the insulation callout
// and, optionally, the value it is expected to show.
type InsulationHint struct {
	Label    string `yaml:"label" json:"label"`
	Expected string `yaml:"expected,omitempty" json:"expected,omitempty"`
}

// Policy is the immutable extraction policy for one equipment number.
type Policy struct {
	EquipmentNumber string
	Class           Class
	Required        []model.FieldName
	Instructions    map[model.FieldName]Instruction
	Insulation      InsulationHint
}

// New builds a policy whose required fields are derived from its class.
func New(equipmentNumber string, class Class, instructions map[model.FieldName]Instruction, hint InsulationHint) Policy {
	if instructions == nil {
		instructions = map[model.FieldName]Instruction{}
	}
	return Policy{
		EquipmentNumber: equipmentNumber,
		Class:           class,
		Required:        RequiredFor(class),
		Instructions:    instructions,
		Insulation:      hint,
	}
}

// Requires reports whether f is in the required field set.
func (p Policy) Requires(f model.FieldName) bool {
	for _, r := range p.Required {
		if r == f {
			return true
		}
	}
	return false
}

// InsulationOnly reports whether only the insulation field is extracted.
func (p Policy) InsulationOnly() bool { return p.Class == ClassInsulationOnly }

// SkipOperating reports whether operating temperature/pressure are excluded.
func (p Policy) SkipOperating() bool { return p.Class == ClassSkipOperating }

// MaterialBearing reports whether the drawing is expected to carry material
// tables worth searching, which is the case whenever a material field is required.
func (p Policy) MaterialBearing() bool {
	return p.Requires(model.FieldMaterialSpec) || p.Requires(model.FieldMaterialGrade)
}

// Instruction returns the instruction for a field, if one is configured.
func (p Policy) Instruction(f model.FieldName) (Instruction, bool) {
	i, ok := p.Instructions[f]
	if !ok || i.IsZero() {
		return Instruction{}, false
	}
	return i, true
}

// Allows reports whether a parsed value for f may be kept under this policy.
// Insulation-only equipment keeps nothing but insulation; skip-operating
// equipment never keeps operating temperature or pressure.
func (p Policy) Allows(f model.FieldName) bool {
	switch p.Class {
	case ClassInsulationOnly:
		return f == model.FieldInsulation
	case ClassSkipOperating:
		return f != model.FieldOperatingTemp && f != model.FieldOperatingPressure
	default:
		return f.Valid()
	}
}
