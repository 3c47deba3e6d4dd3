// Package parse reads the model's RETURN FORMAT answer back into per-component
// field maps, dropping uncertain values and anything the equipment's policy
// did not ask for.
package parse

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/masterfile-cli/internal/model"
	"github.com/sells-group/masterfile-cli/internal/policy"
	"github.com/sells-group/masterfile-cli/internal/prompt"
)

// Fields holds the accepted values of one component.
type Fields map[model.FieldName]string

// Record is one unvalidated COMPONENT block as the model wrote it.
type Record struct {
	Component string
	Fields    map[model.FieldName]string
}

// Result is the validated parse of one model answer.
type Result struct {
	// Components maps component name to its accepted values. Every expected
	// component is present, possibly with no values.
	Components map[string]Fields
	// Unknown lists component names that matched no expected component.
	Unknown []string
}

// HasData reports whether any component carries at least one accepted value.
func (r Result) HasData() bool {
	for _, f := range r.Components {
		if len(f) > 0 {
			return true
		}
	}
	return false
}

// FieldCount returns the total number of accepted values.
func (r Result) FieldCount() int {
	n := 0
	for _, f := range r.Components {
		n += len(f)
	}
	return n
}

// ParseRaw splits a model answer into COMPONENT records. Lines before the
// first COMPONENT line and lines with unrecognized keys are ignored. Within a
// record the first valid occurrence of a key wins.
func ParseRaw(raw string) []Record {
	var (
		records []Record
		cur     *Record
	)
	for _, line := range strings.Split(raw, "\n") {
		key, value, ok := splitLine(line)
		if !ok {
			continue
		}
		if isComponentKey(key) {
			records = append(records, Record{Component: value, Fields: map[model.FieldName]string{}})
			cur = &records[len(records)-1]
			continue
		}
		if cur == nil {
			continue
		}
		f, known := model.FieldByResponseKey(key)
		if !known {
			continue
		}
		if prev, seen := cur.Fields[f]; !seen || !IsValid(prev) {
			cur.Fields[f] = value
		}
	}
	return records
}

// Parse reads raw model output for the expected components and applies the
// validity filter, numeric canonicalization and policy projection. It never
// fails: malformed output yields a Result without data.
func Parse(raw string, expected []string, p policy.Policy) Result {
	log := zap.L().With(zap.String("equipment", p.EquipmentNumber))

	records := synthesizeMissing(ParseRaw(raw), expected, log)

	res := Result{Components: make(map[string]Fields, len(records))}
	for _, rec := range records {
		name, known := matchComponent(rec.Component, expected)
		if !known {
			res.Unknown = appendUnique(res.Unknown, name)
		}
		out, ok := res.Components[name]
		if !ok {
			out = Fields{}
			res.Components[name] = out
		}

		for _, f := range model.AllFields {
			v, present := rec.Fields[f]
			if !present {
				continue
			}
			if !IsValid(v) {
				continue
			}
			if !p.Allows(f) {
				log.Debug("parse: dropping field outside policy",
					zap.String("component", name),
					zap.String("field", string(f)),
					zap.String("class", p.Class.String()),
				)
				continue
			}
			if f == model.FieldInsulation {
				yn, ok := CanonicalizeInsulation(v)
				if !ok {
					log.Debug("parse: rejecting unrecognized insulation value",
						zap.String("component", name),
						zap.String("value", v),
					)
					continue
				}
				v = yn
			}
			if _, set := out[f]; set {
				continue
			}
			v = strings.TrimSpace(v)
			if f.IsNumeric() {
				v = Canonicalize(v)
			}
			out[f] = v
		}
	}

	if len(res.Unknown) > 0 {
		log.Warn("parse: model returned unexpected components", zap.Strings("components", res.Unknown))
	}
	return res
}

// synthesizeMissing appends a NOT_FOUND record for every expected component
// the model left out, so each known component always has a record.
func synthesizeMissing(records []Record, expected []string, log *zap.Logger) []Record {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if name, ok := matchComponent(r.Component, expected); ok {
			seen[name] = true
		}
	}
	for _, name := range expected {
		if seen[name] {
			continue
		}
		log.Debug("parse: component missing from response", zap.String("component", name))
		fields := make(map[model.FieldName]string, len(model.AllFields))
		for _, f := range model.AllFields {
			fields[f] = prompt.NotFound
		}
		records = append(records, Record{Component: name, Fields: fields})
	}
	return records
}

// matchComponent resolves a returned component name to the expected spelling.
// An exact match wins; otherwise names are compared case-insensitively with
// runs of whitespace collapsed. Unmatched names are returned as written.
func matchComponent(name string, expected []string) (string, bool) {
	for _, e := range expected {
		if e == name {
			return e, true
		}
	}
	norm := normalizeName(name)
	for _, e := range expected {
		if normalizeName(e) == norm {
			return e, true
		}
	}
	return name, false
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func isComponentKey(key string) bool {
	k := strings.ToUpper(strings.Join(strings.Fields(key), "_"))
	return k == "COMPONENT" || k == "COMPONENT_NAME"
}

// splitLine cleans a response line of markdown decoration and splits it on
// the first colon.
func splitLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "```") {
		return "", "", false
	}
	for _, bullet := range []string{"- ", "* ", "• "} {
		line = strings.TrimPrefix(line, bullet)
	}
	line = strings.ReplaceAll(line, "**", "")

	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	value = unquote(strings.TrimSpace(line[idx+1:]))
	return key, value, true
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
