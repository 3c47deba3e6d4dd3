package policy

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// defaultInsulationHint is used when a policy does not name its own label.
var defaultInsulationHint = InsulationHint{Label: "INSULATION"}

// Registry is an immutable lookup of policies by equipment number.
type Registry struct {
	byNumber map[string]Policy
}

// NewRegistry indexes the given policies. Later entries win on duplicate
// equipment numbers.
func NewRegistry(policies ...Policy) *Registry {
	r := &Registry{byNumber: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		r.byNumber[normalizeNumber(p.EquipmentNumber)] = p
	}
	return r
}

// For returns the policy for an equipment number. Unknown equipment gets a
// full-extraction policy so it is still attempted.
func (r *Registry) For(equipmentNumber string) Policy {
	if r != nil {
		if p, ok := r.byNumber[normalizeNumber(equipmentNumber)]; ok {
			if p.Insulation.Label == "" {
				p.Insulation = defaultInsulationHint
			}
			return p
		}
	}
	return New(equipmentNumber, ClassFull, nil, defaultInsulationHint)
}

// Has reports whether an explicit policy exists for the equipment number.
func (r *Registry) Has(equipmentNumber string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byNumber[normalizeNumber(equipmentNumber)]
	return ok
}

// Len returns the number of explicit policies.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byNumber)
}

// Numbers returns the equipment numbers with explicit policies, sorted.
func (r *Registry) Numbers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.byNumber))
	for _, p := range r.byNumber {
		out = append(out, p.EquipmentNumber)
	}
	sort.Strings(out)
	return out
}

// With returns a new registry where the given policies replace any existing
// entry for the same equipment number. The receiver is left untouched.
func (r *Registry) With(overrides ...Policy) *Registry {
	merged := make([]Policy, 0, r.Len()+len(overrides))
	if r != nil {
		for _, p := range r.byNumber {
			merged = append(merged, p)
		}
	}
	for _, p := range overrides {
		if r.Has(p.EquipmentNumber) {
			zap.L().Debug("policy: overriding built-in policy",
				zap.String("equipment", p.EquipmentNumber),
				zap.String("class", p.Class.String()),
			)
		}
		merged = append(merged, p)
	}
	return NewRegistry(merged...)
}

func normalizeNumber(n string) string {
	return strings.ToUpper(strings.TrimSpace(n))
}
