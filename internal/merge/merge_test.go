package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/masterfile-cli/internal/model"
	"github.com/sells-group/masterfile-cli/internal/parse"
	"github.com/sells-group/masterfile-cli/internal/policy"
)

func newEquipment(number string, components ...string) *model.Equipment {
	eq := &model.Equipment{EquipmentNumber: number, PMTNumber: "PMT-" + number}
	for _, c := range components {
		eq.Components = append(eq.Components, &model.Component{Name: c, ExistingData: map[model.FieldName]string{}})
	}
	return eq
}

func snapshot(eqs model.EquipmentMap) map[string]map[string]map[model.FieldName]string {
	out := map[string]map[string]map[model.FieldName]string{}
	for n, eq := range eqs {
		out[n] = map[string]map[model.FieldName]string{}
		for _, c := range eq.Components {
			fields := map[model.FieldName]string{}
			for k, v := range c.ExistingData {
				fields[k] = v
			}
			out[n][c.Name] = fields
		}
	}
	return out
}

func result(components map[string]parse.Fields) parse.Result {
	return parse.Result{Components: components}
}

func TestMerge_InsulationOnlyTouchesOnlyInsulation(t *testing.T) {
	eqs := model.EquipmentMap{"V-001": newEquipment("V-001", "Shell")}
	m := New(policy.Default())

	res := result(map[string]parse.Fields{"Shell": {
		model.FieldInsulation: "no",
		model.FieldFluid:      "Air",
		model.FieldDesignTemp: "120",
	}})
	missing := m.Merge(eqs, map[string]parse.Result{"V-001": res}, model.NewMissingSet("V-001"))

	shell := eqs["V-001"].Component("Shell")
	assert.Equal(t, map[model.FieldName]string{model.FieldInsulation: "no"}, shell.ExistingData)
	assert.False(t, missing.Has("V-001"))
}

func TestMerge_SkipOperatingNeverSetsOperatingFields(t *testing.T) {
	eqs := model.EquipmentMap{"H-002": newEquipment("H-002", "Shell")}
	m := New(policy.Default())

	res := result(map[string]parse.Fields{"Shell": {
		model.FieldOperatingTemp:     "180",
		model.FieldOperatingPressure: "8",
		model.FieldFluid:             "Steam",
	}})
	m.Merge(eqs, map[string]parse.Result{"H-002": res}, model.NewMissingSet())

	shell := eqs["H-002"].Component("Shell")
	assert.False(t, shell.Has(model.FieldOperatingTemp))
	assert.False(t, shell.Has(model.FieldOperatingPressure))
	assert.Equal(t, "Steam", shell.Get(model.FieldFluid))
}

func TestMerge_IsMonotonic(t *testing.T) {
	eq := newEquipment("V-020", "Shell")
	eq.Component("Shell").Set(model.FieldFluid, "Water")
	eqs := model.EquipmentMap{"V-020": eq}
	m := New(policy.Default())

	res := result(map[string]parse.Fields{"Shell": {
		model.FieldFluid:      "Steam",
		model.FieldDesignTemp: "250",
	}})
	m.Merge(eqs, map[string]parse.Result{"V-020": res}, model.NewMissingSet())
	assert.Equal(t, "Water", eq.Component("Shell").Get(model.FieldFluid), "existing value survives")
	assert.Equal(t, "250", eq.Component("Shell").Get(model.FieldDesignTemp))

	// A later pass with nothing for design_temp must not blank it.
	later := result(map[string]parse.Fields{"Shell": {model.FieldInsulation: "yes"}})
	m.Merge(eqs, map[string]parse.Result{"V-020": later}, model.NewMissingSet())
	assert.Equal(t, "250", eq.Component("Shell").Get(model.FieldDesignTemp))
	assert.Equal(t, "yes", eq.Component("Shell").Get(model.FieldInsulation))
}

func TestMerge_IsIdempotent(t *testing.T) {
	eqs := model.EquipmentMap{
		"V-020": newEquipment("V-020", "Shell", "Top Head"),
		"V-001": newEquipment("V-001", "Shell"),
	}
	m := New(policy.Default())
	extracted := map[string]parse.Result{
		"V-020": result(map[string]parse.Fields{
			"Shell":    {model.FieldFluid: "Water", model.FieldInsulation: "yes"},
			"Top Head": {model.FieldMaterialSpec: "SA-516"},
		}),
		"V-001": result(map[string]parse.Fields{"Shell": {model.FieldInsulation: "no"}}),
	}

	once := m.Merge(eqs, extracted, model.NewMissingSet("V-020", "V-001"))
	afterOnce := snapshot(eqs)
	twice := m.Merge(eqs, extracted, once)

	assert.Equal(t, afterOnce, snapshot(eqs))
	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"V-020"}, twice.Sorted())
}

func TestMerge_DoesNotMutateInputSet(t *testing.T) {
	eqs := model.EquipmentMap{"V-001": newEquipment("V-001", "Shell")}
	in := model.NewMissingSet("V-001")
	out := New(policy.Default()).Merge(eqs, map[string]parse.Result{
		"V-001": result(map[string]parse.Fields{"Shell": {model.FieldInsulation: "no"}}),
	}, in)

	assert.True(t, in.Has("V-001"))
	assert.False(t, out.Has("V-001"))
}

func TestMerge_EmptyResultMarksMissing(t *testing.T) {
	eqs := model.EquipmentMap{"V-001": newEquipment("V-001", "Shell")}

	empty := result(map[string]parse.Fields{"Shell": {}})
	missing := New(policy.Default()).Merge(eqs, map[string]parse.Result{"V-001": empty}, model.NewMissingSet())

	assert.True(t, missing.Has("V-001"))
	assert.False(t, eqs["V-001"].Component("Shell").Has(model.FieldInsulation))
}

func TestMerge_EmptyResultKeepsCompleteEquipmentOut(t *testing.T) {
	eq := newEquipment("V-001", "Shell")
	eq.Component("Shell").Set(model.FieldInsulation, "yes")
	eqs := model.EquipmentMap{"V-001": eq}

	in := model.NewMissingSet("V-001")
	empty := result(map[string]parse.Fields{"Shell": {}})
	missing := New(policy.Default()).Merge(eqs, map[string]parse.Result{"V-001": empty}, in)

	assert.False(t, missing.Has("V-001"), "complete equipment is not missing even when a pass yields nothing")
	assert.Equal(t, "yes", eq.Component("Shell").Get(model.FieldInsulation))
}

func TestMerge_UnknownComponentAndEquipmentAreSkipped(t *testing.T) {
	eqs := model.EquipmentMap{"V-001": newEquipment("V-001", "Shell")}
	extracted := map[string]parse.Result{
		"V-001": result(map[string]parse.Fields{
			"Shel":  {model.FieldInsulation: "no"},
			"Shell": {model.FieldInsulation: "yes"},
		}),
		"Z-404": result(map[string]parse.Fields{"Shell": {model.FieldInsulation: "no"}}),
	}

	var missing model.MissingSet
	require.NotPanics(t, func() {
		missing = New(policy.Default()).Merge(eqs, extracted, model.NewMissingSet())
	})
	assert.Equal(t, "yes", eqs["V-001"].Component("Shell").Get(model.FieldInsulation))
	assert.False(t, missing.Has("Z-404"))
	assert.Empty(t, missing)
}

func TestMerge_DropsValuesThatFailValidity(t *testing.T) {
	eqs := model.EquipmentMap{"V-001": newEquipment("V-001", "Shell")}
	res := result(map[string]parse.Fields{"Shell": {model.FieldInsulation: "NOT_FOUND"}})
	missing := New(policy.Default()).Merge(eqs, map[string]parse.Result{"V-001": res}, model.NewMissingSet())

	assert.False(t, eqs["V-001"].Component("Shell").Has(model.FieldInsulation))
	assert.True(t, missing.Has("V-001"))
}

func TestMerge_ScenarioInsulationOnlyFromRawResponse(t *testing.T) {
	reg := policy.Default()
	eqs := model.EquipmentMap{"V-001": newEquipment("V-001", "Shell")}

	parsed := parse.Parse("COMPONENT: Shell\nINSULATION: no\nFLUID: Air", []string{"Shell"}, reg.For("V-001"))
	missing := New(reg).Merge(eqs, map[string]parse.Result{"V-001": parsed}, model.NewMissingSet("V-001"))

	shell := eqs["V-001"].Component("Shell")
	assert.Equal(t, "no", shell.Get(model.FieldInsulation))
	assert.Equal(t, "", shell.Get(model.FieldFluid))
	assert.False(t, missing.Has("V-001"))
}

func TestMerge_ScenarioSkipOperatingComplete(t *testing.T) {
	reg := policy.Default()
	eqs := model.EquipmentMap{"H-002": newEquipment("H-002", "Shell")}

	raw := "COMPONENT: Shell\n" +
		"FLUID: Cooling Water\n" +
		"MATERIAL_SPEC: SA-516\n" +
		"MATERIAL_GRADE: 70\n" +
		"INSULATION: no\n" +
		"DESIGN_TEMP: 65 C\n" +
		"DESIGN_PRESS: 7.5 barg\n"
	parsed := parse.Parse(raw, []string{"Shell"}, reg.For("H-002"))
	missing := New(reg).Merge(eqs, map[string]parse.Result{"H-002": parsed}, model.NewMissingSet("H-002"))

	assert.Empty(t, missing)
	assert.Equal(t, "7.5", eqs["H-002"].Component("Shell").Get(model.FieldDesignPressure))
}

func TestMissingFields(t *testing.T) {
	eq := newEquipment("H-002", "Shell", "Channel")
	pol := policy.Default().For("H-002")
	for _, f := range pol.Required {
		eq.Component("Shell").Set(f, "x")
	}

	gaps := MissingFields(eq, pol)
	assert.NotContains(t, gaps, "Shell")
	assert.Equal(t, pol.Required, gaps["Channel"])
	assert.False(t, Complete(eq, pol))

	for _, f := range pol.Required {
		eq.Component("Channel").Set(f, "y")
	}
	assert.True(t, Complete(eq, pol))
}

func TestRecompute(t *testing.T) {
	done := newEquipment("V-001", "Shell")
	done.Component("Shell").Set(model.FieldInsulation, "no")
	eqs := model.EquipmentMap{
		"V-001": done,
		"V-020": newEquipment("V-020", "Shell"),
	}

	got := New(policy.Default()).Recompute(eqs, []string{"V-001", "V-020", "Z-1"})
	assert.Equal(t, []string{"V-020"}, got.Sorted())
}
