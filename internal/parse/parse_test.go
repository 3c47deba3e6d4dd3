package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/masterfile-cli/internal/model"
	"github.com/sells-group/masterfile-cli/internal/policy"
)

func fullPolicy(eq string) policy.Policy {
	return policy.New(eq, policy.ClassFull, nil, policy.InsulationHint{})
}

func TestParseRaw_SplitsComponentBlocks(t *testing.T) {
	raw := "Here is the data:\n" +
		"FLUID: ignored before first component\n" +
		"COMPONENT: Shell\n" +
		"FLUID: Water\n" +
		"DESIGN_PRESS: 10 barg\n" +
		"FLUID: Steam\n" +
		"\n" +
		"COMPONENT: Channel\n" +
		"WEIGHT: 1200 kg\n" +
		"INSULATION: yes\n"

	recs := ParseRaw(raw)
	require.Len(t, recs, 2)

	assert.Equal(t, "Shell", recs[0].Component)
	assert.Equal(t, "Water", recs[0].Fields[model.FieldFluid], "first occurrence wins")
	assert.Equal(t, "10 barg", recs[0].Fields[model.FieldDesignPressure])

	assert.Equal(t, "Channel", recs[1].Component)
	assert.Len(t, recs[1].Fields, 1)
	assert.Equal(t, "yes", recs[1].Fields[model.FieldInsulation])
}

func TestParseRaw_ToleratesMarkdown(t *testing.T) {
	raw := "```\n" +
		"**COMPONENT:** Top Head\n" +
		"- **MATERIAL_SPEC:** \"SA-516\"\n" +
		"* Material Grade: 70\n" +
		"Design Pressure: 12\n" +
		"```"

	recs := ParseRaw(raw)
	require.Len(t, recs, 1)
	assert.Equal(t, "Top Head", recs[0].Component)
	assert.Equal(t, "SA-516", recs[0].Fields[model.FieldMaterialSpec])
	assert.Equal(t, "70", recs[0].Fields[model.FieldMaterialGrade])
	assert.Equal(t, "12", recs[0].Fields[model.FieldDesignPressure])
}

func TestParseRaw_Empty(t *testing.T) {
	assert.Empty(t, ParseRaw(""))
	assert.Empty(t, ParseRaw("I could not read this drawing."))
}

func TestParse_SynthesizesOmittedComponents(t *testing.T) {
	res := Parse("COMPONENT: Shell\nFLUID: Air\n", []string{"Shell", "Bottom Head"}, fullPolicy("V-020"))

	require.Contains(t, res.Components, "Bottom Head")
	assert.Empty(t, res.Components["Bottom Head"])
	assert.Equal(t, "Air", res.Components["Shell"][model.FieldFluid])
	assert.True(t, res.HasData())
	assert.Equal(t, 1, res.FieldCount())
	assert.Empty(t, res.Unknown)
}

func TestParse_MalformedOutputHasNoData(t *testing.T) {
	res := Parse("Sorry, the image is too blurry.", []string{"Shell"}, fullPolicy("V-020"))
	assert.False(t, res.HasData())
	assert.Contains(t, res.Components, "Shell")
}

func TestParse_MatchesComponentNamesLoosely(t *testing.T) {
	raw := "COMPONENT: top  head\nFLUID: Air\nCOMPONENT: Nozzle N9\nFLUID: Air\n"
	res := Parse(raw, []string{"Top Head"}, fullPolicy("V-020"))

	assert.Equal(t, "Air", res.Components["Top Head"][model.FieldFluid])
	assert.Equal(t, []string{"Nozzle N9"}, res.Unknown)
	assert.Contains(t, res.Components, "Nozzle N9")
}

func TestParse_DuplicateBlocksKeepFirstValidValue(t *testing.T) {
	raw := "COMPONENT: Shell\nFLUID: NOT_FOUND\nCOMPONENT: Shell\nFLUID: Steam\nCOMPONENT: Shell\nFLUID: Water\n"
	res := Parse(raw, []string{"Shell"}, fullPolicy("V-020"))
	assert.Equal(t, "Steam", res.Components["Shell"][model.FieldFluid])
}

func TestParse_InsulationOnlyProjection(t *testing.T) {
	p := policy.New("V-001", policy.ClassInsulationOnly, nil, policy.InsulationHint{})
	res := Parse("COMPONENT: Shell\nINSULATION: no\nFLUID: Air\n", []string{"Shell"}, p)

	assert.Equal(t, Fields{model.FieldInsulation: "no"}, res.Components["Shell"])
}

func TestParse_SkipOperatingProjection(t *testing.T) {
	p := policy.New("H-002", policy.ClassSkipOperating, nil, policy.InsulationHint{})
	raw := "COMPONENT: Shell\n" +
		"DESIGN_TEMP: 250 C\n" +
		"OPERATING_TEMP: 180 C\n" +
		"OPERATING_PRESS: 8 barg\n"
	res := Parse(raw, []string{"Shell"}, p)

	got := res.Components["Shell"]
	assert.Equal(t, "250", got[model.FieldDesignTemp])
	assert.NotContains(t, got, model.FieldOperatingTemp)
	assert.NotContains(t, got, model.FieldOperatingPressure)
}

func TestParse_FiltersAndCanonicalizes(t *testing.T) {
	raw := "COMPONENT: Shell\n" +
		"FLUID: [unclear]\n" +
		"MATERIAL_SPEC: Material not found in drawing\n" +
		"MATERIAL_GRADE: 70\n" +
		"INSULATION: yes\n" +
		"DESIGN_TEMP: 35 ~ 40\n" +
		"DESIGN_PRESS: 1.5 MPa\n" +
		"OPERATING_TEMP: N/A\n" +
		"OPERATING_PRESS: 0.5 - 2\n"
	res := Parse(raw, []string{"Shell"}, fullPolicy("V-020"))

	assert.Equal(t, Fields{
		model.FieldMaterialGrade:     "70",
		model.FieldInsulation:        "yes",
		model.FieldDesignTemp:        "35 ~ 40",
		model.FieldDesignPressure:    "1.5",
		model.FieldOperatingPressure: "0.5 - 2",
	}, res.Components["Shell"])
}

func TestParse_EchoedTemplateIsRejected(t *testing.T) {
	raw := "COMPONENT: Shell\nFLUID: [value]\nINSULATION: [value]\n"
	res := Parse(raw, []string{"Shell"}, fullPolicy("V-020"))
	assert.False(t, res.HasData())
}

func TestParseRaw_LaterValueReplacesInvalidOne(t *testing.T) {
	raw := "COMPONENT: Shell\nFLUID: NOT_FOUND\nFLUID: Water\nFLUID: Steam\n"
	records := ParseRaw(raw)
	require.Len(t, records, 1)
	assert.Equal(t, "Water", records[0].Fields[model.FieldFluid])

	res := Parse(raw, []string{"Shell"}, fullPolicy("V-020"))
	assert.Equal(t, "Water", res.Components["Shell"][model.FieldFluid])
}

func TestParse_NormalizesInsulation(t *testing.T) {
	raw := "COMPONENT: Shell\nINSULATION: Yes (50mm mineral wool)\n" +
		"COMPONENT: Head\nINSULATION: NIL\n" +
		"COMPONENT: Nozzle\nINSULATION: see drawing\n"
	res := Parse(raw, []string{"Shell", "Head", "Nozzle"}, fullPolicy("V-020"))

	assert.Equal(t, "yes", res.Components["Shell"][model.FieldInsulation])
	assert.Equal(t, "no", res.Components["Head"][model.FieldInsulation])
	assert.NotContains(t, res.Components["Nozzle"], model.FieldInsulation)
}

func TestParse_StripsTrailingDotFromNumbers(t *testing.T) {
	res := Parse("COMPONENT: Shell\nDESIGN_TEMP: 350°C.\n", []string{"Shell"}, fullPolicy("V-020"))
	assert.Equal(t, "350", res.Components["Shell"][model.FieldDesignTemp])
}
