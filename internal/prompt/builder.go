// Package prompt builds the vision-model prompt for one equipment drawing.
//
// The prompt ends with a fixed RETURN FORMAT that the parse package reads
// back, so component names are echoed verbatim and only the fields required
// by the equipment's policy are requested.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sells-group/masterfile-cli/internal/model"
	"github.com/sells-group/masterfile-cli/internal/policy"
)

// NotFound is the placeholder the model is told to write for unreadable values.
const NotFound = "NOT_FOUND"

// valuePlaceholder is bracketed so an echoed template line is rejected by the
// parser's uncertainty-marker rule.
const valuePlaceholder = "[value]"

var defaultHints = map[model.FieldName]string{
	model.FieldFluid:             "the SERVICE / FLUID entry of the design data table",
	model.FieldMaterialSpec:      "the material specification of this part (e.g. SA-516, SA-240), usually in the bill of materials",
	model.FieldMaterialGrade:     "the grade that follows the specification (e.g. 70, 304L, B)",
	model.FieldDesignTemp:        "DESIGN TEMP in the design data table, keep the unit",
	model.FieldDesignPressure:    "DESIGN PRESS in the design data table, keep the unit",
	model.FieldOperatingTemp:     "OPERATING TEMP in the design or operating data table, keep the unit",
	model.FieldOperatingPressure: "OPERATING PRESS in the design or operating data table, keep the unit",
}

const rules = `RULES:
- Read values only from the drawing. Never guess or infer from typical designs.
- If a value is not shown for a component, write ` + NotFound + `.
- Keep ranges exactly as drawn (e.g. "35 ~ 40", "0.5 - 2").
- Do not add explanations, notes or markdown outside the return format.`

// Build returns the prompt for an equipment drawing and its target components.
func Build(equipmentNumber string, components []string, p policy.Policy) string {
	if p.InsulationOnly() {
		return buildInsulationOnly(equipmentNumber, components, p)
	}

	var b strings.Builder
	writeHeader(&b, equipmentNumber, components)

	b.WriteString("FIELDS TO EXTRACT:\n")
	n := 0
	for _, f := range p.Required {
		if f == model.FieldInsulation {
			continue
		}
		n++
		writeField(&b, n, f, components, p)
	}
	b.WriteString("\n")

	if p.MaterialBearing() {
		b.WriteString("MATERIALS: For every component, also search the BILL OF MATERIALS, PARTS LIST and any ")
		b.WriteString("\"Material Specification\" table, even when a field above does not point there. ")
		b.WriteString("Split a combined callout such as \"SA-516 GR.70\" into MATERIAL_SPEC \"SA-516\" and MATERIAL_GRADE \"70\".\n\n")
	}

	writeInsulation(&b, p.Insulation)
	b.WriteString("\n")
	b.WriteString(rules)
	b.WriteString("\n\n")
	writeReturnFormat(&b, components, returnFields(p))
	return b.String()
}

func buildInsulationOnly(equipmentNumber string, components []string, p policy.Policy) string {
	var b strings.Builder
	writeHeader(&b, equipmentNumber, components)
	b.WriteString("Only the insulation callout is needed for this equipment. Do not report any other field.\n")
	writeInsulation(&b, p.Insulation)
	b.WriteString("\n")
	writeReturnFormat(&b, components, []model.FieldName{model.FieldInsulation})
	return b.String()
}

func writeHeader(b *strings.Builder, equipmentNumber string, components []string) {
	fmt.Fprintf(b, "You are reading a scanned engineering drawing of equipment %s.\n", equipmentNumber)
	b.WriteString("Extract data for each component below. Use the component names EXACTLY as written:\n")
	for _, c := range components {
		b.WriteString("- " + c + "\n")
	}
	b.WriteString("\n")
}

func writeField(b *strings.Builder, n int, f model.FieldName, components []string, p policy.Policy) {
	inst, ok := p.Instruction(f)
	switch {
	case !ok:
		fmt.Fprintf(b, "%d. %s (%s): %s.\n", n, f.Label(), f.ResponseKey(), defaultHints[f])
	case inst.IsPerComponent():
		fmt.Fprintf(b, "%d. %s (%s), location differs per component:\n", n, f.Label(), f.ResponseKey())
		for _, c := range components {
			text, found := inst.For(c)
			if !found {
				text = defaultHints[f]
			}
			fmt.Fprintf(b, "   - %s: %s\n", c, text)
		}
	default:
		fmt.Fprintf(b, "%d. %s (%s): %s.\n", n, f.Label(), f.ResponseKey(), strings.TrimSuffix(inst.Text(), "."))
	}
}

func writeInsulation(b *strings.Builder, hint policy.InsulationHint) {
	label := hint.Label
	if label == "" {
		label = "INSULATION"
	}
	fmt.Fprintf(b, "INSULATION: Find the %q callout. Answer \"yes\" when insulation is specified ", label)
	b.WriteString("(a thickness, class or material), \"no\" when the drawing states none or nil.")
	if hint.Expected != "" {
		fmt.Fprintf(b, " This drawing usually shows %q; report what is actually drawn.", hint.Expected)
	}
	b.WriteString("\n")
}

// returnFields lists the keys requested in the RETURN FORMAT: the required
// fields, with insulation always present.
func returnFields(p policy.Policy) []model.FieldName {
	out := make([]model.FieldName, 0, len(model.AllFields))
	for _, f := range model.AllFields {
		if f == model.FieldInsulation || p.Requires(f) {
			out = append(out, f)
		}
	}
	return out
}

func writeReturnFormat(b *strings.Builder, components []string, fields []model.FieldName) {
	b.WriteString("RETURN FORMAT (one block per component, blank line between blocks):\n\n")
	for i, c := range components {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("COMPONENT: " + c + "\n")
		for _, f := range fields {
			b.WriteString(f.ResponseKey() + ": " + valuePlaceholder + "\n")
		}
	}
}
