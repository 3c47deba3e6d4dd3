package policy

import "github.com/sells-group/masterfile-cli/internal/model"

// Shared drawing locations.
const (
	nameplateDesignData = "DESIGN DATA table near the title block (design conditions row)"
	operatingDataTable  = "OPERATING DATA / PROCESS DATA table next to the design data"
	billOfMaterials     = "BILL OF MATERIALS / PARTS LIST, 'MATERIAL' column on the row for this part"
	serviceNote         = "SERVICE or FLUID line in the design data table"
)

// Default returns the built-in policy table.
func Default() *Registry {
	return NewRegistry(builtin()...)
}

func builtin() []Policy {
	return []Policy{
		// Small utility vessels: only the insulation note is legible on the
		// general-arrangement drawing.
		New("V-001", ClassInsulationOnly, nil, InsulationHint{Label: "INSULATION"}),
		New("V-014", ClassInsulationOnly, nil, InsulationHint{Label: "INSUL. THK", Expected: "no"}),
		New("V-015", ClassInsulationOnly, nil, InsulationHint{Label: "INSUL. THK", Expected: "no"}),
		New("T-101", ClassInsulationOnly, nil, InsulationHint{Label: "INSULATION / PAINTING NOTE"}),

		// Exchangers whose operating conditions come from the process datasheet.
		New("H-002", ClassSkipOperating, map[model.FieldName]Instruction{
			model.FieldFluid: PerComponent(map[string]string{
				"Shell":   "SHELL SIDE column of the design data table, FLUID row",
				"Channel": "TUBE SIDE column of the design data table, FLUID row",
				"Tube":    "TUBE SIDE column of the design data table, FLUID row",
			}),
			model.FieldDesignTemp: PerComponent(map[string]string{
				"Shell":   "SHELL SIDE column, DESIGN TEMP row",
				"Channel": "TUBE SIDE column, DESIGN TEMP row",
				"Tube":    "TUBE SIDE column, DESIGN TEMP row",
			}),
			model.FieldDesignPressure: PerComponent(map[string]string{
				"Shell":   "SHELL SIDE column, DESIGN PRESS row",
				"Channel": "TUBE SIDE column, DESIGN PRESS row",
				"Tube":    "TUBE SIDE column, DESIGN PRESS row",
			}),
			model.FieldMaterialSpec: Uniform(billOfMaterials),
		}, InsulationHint{Label: "INSULATION"}),
		New("H-003", ClassSkipOperating, map[model.FieldName]Instruction{
			model.FieldFluid:          Uniform(serviceNote),
			model.FieldDesignTemp:     Uniform(nameplateDesignData),
			model.FieldDesignPressure: Uniform(nameplateDesignData),
		}, InsulationHint{Label: "INSULATION"}),
		New("E-210", ClassSkipOperating, map[model.FieldName]Instruction{
			model.FieldMaterialGrade: Uniform("MATERIAL column of the parts list; grade follows the spec, e.g. 'GR.70'"),
		}, InsulationHint{Label: "INSUL."}),

		// Pressure vessels with full design and operating data on the drawing.
		New("V-020", ClassFull, map[model.FieldName]Instruction{
			model.FieldFluid:             Uniform(serviceNote),
			model.FieldDesignTemp:        Uniform(nameplateDesignData),
			model.FieldDesignPressure:    Uniform(nameplateDesignData),
			model.FieldOperatingTemp:     Uniform(operatingDataTable),
			model.FieldOperatingPressure: Uniform(operatingDataTable),
		}, InsulationHint{Label: "INSULATION", Expected: "yes"}),
		New("C-301", ClassFull, map[model.FieldName]Instruction{
			model.FieldMaterialSpec: PerComponent(map[string]string{
				"Top Head":    "parts list row 'HEAD (TOP)'",
				"Shell":       "parts list row 'SHELL'",
				"Bottom Head": "parts list row 'HEAD (BTM)'",
			}),
		}, InsulationHint{Label: "INSULATION"}),
	}
}
