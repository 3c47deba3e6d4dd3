// Package merge folds parsed model answers into the equipment graph and
// tracks which equipment still lacks required data.
package merge

import (
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/masterfile-cli/internal/model"
	"github.com/sells-group/masterfile-cli/internal/parse"
	"github.com/sells-group/masterfile-cli/internal/policy"
)

// Merger applies parse results to equipment under each equipment's policy.
type Merger struct {
	policies *policy.Registry
}

// New returns a Merger that resolves policies from reg.
func New(reg *policy.Registry) *Merger {
	return &Merger{policies: reg}
}

// Merge fills empty fields of equipment from the extracted results and returns
// the updated missing set. The input set is not modified. Fields that already
// hold a value are never changed, so repeating a merge is a no-op.
func (m *Merger) Merge(equipment model.EquipmentMap, extracted map[string]parse.Result, missing model.MissingSet) model.MissingSet {
	out := missing.Clone()

	for _, number := range slices.Sorted(maps.Keys(extracted)) {
		res := extracted[number]
		log := zap.L().With(zap.String("equipment", number))

		eq, ok := equipment[number]
		if !ok {
			log.Warn("merge: extracted data for unknown equipment")
			continue
		}
		pol := m.policies.For(number)

		if !res.HasData() {
			if Complete(eq, pol) {
				out.Remove(number)
				log.Info("merge: no data extracted, equipment already complete")
				continue
			}
			log.Warn("merge: no data extracted, equipment stays missing")
			out.Add(number)
			continue
		}

		filled := m.apply(eq, res, pol, log)

		if gaps := MissingFields(eq, pol); len(gaps) > 0 {
			out.Add(number)
			log.Info("merge: equipment incomplete",
				zap.Int("filled", filled),
				zap.Any("missing_fields", gaps),
			)
		} else {
			out.Remove(number)
			log.Info("merge: equipment complete", zap.Int("filled", filled))
		}
	}
	return out
}

// apply copies accepted values into empty component fields and returns how
// many fields were filled.
func (m *Merger) apply(eq *model.Equipment, res parse.Result, pol policy.Policy, log *zap.Logger) int {
	filled := 0
	for _, name := range slices.Sorted(maps.Keys(res.Components)) {
		fields := res.Components[name]
		if len(fields) == 0 {
			continue
		}
		comp := eq.Component(name)
		if comp == nil {
			log.Warn("merge: no component with this name, skipping", zap.String("component", name))
			continue
		}
		for _, f := range model.AllFields {
			v, ok := fields[f]
			if !ok || !parse.IsValid(v) || !pol.Allows(f) {
				continue
			}
			if comp.Has(f) {
				if comp.Get(f) != v {
					log.Debug("merge: keeping existing value",
						zap.String("component", name),
						zap.String("field", string(f)),
						zap.String("existing", comp.Get(f)),
						zap.String("extracted", v),
					)
				}
				continue
			}
			comp.Set(f, v)
			filled++
			log.Debug("merge: field filled",
				zap.String("component", name),
				zap.String("field", string(f)),
				zap.String("value", v),
			)
		}
	}
	return filled
}

// MissingFields returns, per component name, the required fields that are
// still empty. An empty result means the equipment is complete.
func MissingFields(eq *model.Equipment, pol policy.Policy) map[string][]model.FieldName {
	gaps := map[string][]model.FieldName{}
	for _, c := range eq.Components {
		for _, f := range pol.Required {
			if !c.Has(f) {
				gaps[c.Name] = append(gaps[c.Name], f)
			}
		}
	}
	return gaps
}

// Complete reports whether every component has every required field.
func Complete(eq *model.Equipment, pol policy.Policy) bool {
	return len(MissingFields(eq, pol)) == 0
}

// Recompute rebuilds the missing set for the given equipment numbers from
// the current equipment state, without merging anything.
func (m *Merger) Recompute(equipment model.EquipmentMap, numbers []string) model.MissingSet {
	out := model.NewMissingSet()
	for _, n := range numbers {
		eq, ok := equipment[n]
		if !ok {
			continue
		}
		if !Complete(eq, m.policies.For(n)) {
			out.Add(n)
		}
	}
	return out
}
