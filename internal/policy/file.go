package policy

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/masterfile-cli/internal/model"
)

// fileConfig is the on-disk shape of a policy overlay.
type fileConfig struct {
	Policies []filePolicy `yaml:"policies"`
}

type filePolicy struct {
	Equipment      string                     `yaml:"equipment"`
	Class          string                     `yaml:"class"`
	Fields         map[string]fileInstruction `yaml:"fields"`
	InsulationHint *InsulationHint            `yaml:"insulation_hint"`
}

// fileInstruction accepts either a plain string or a component->text mapping
// and resolves it to an Instruction at load time.
type fileInstruction struct {
	Instruction
}

func (fi *fileInstruction) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return eris.Wrap(err, "policy: decode instruction text")
		}
		fi.Instruction = Uniform(s)
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Decode(&m); err != nil {
			return eris.Wrap(err, "policy: decode per-component instruction")
		}
		fi.Instruction = PerComponent(m)
	default:
		return eris.Errorf("policy: instruction at line %d must be a string or a mapping", node.Line)
	}
	return nil
}

// Parse decodes a YAML policy overlay.
func Parse(data []byte) ([]Policy, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrap(err, "policy: parse file")
	}

	out := make([]Policy, 0, len(cfg.Policies))
	for i, fp := range cfg.Policies {
		if fp.Equipment == "" {
			return nil, eris.Errorf("policy: entry %d has no equipment number", i)
		}
		class, err := ParseClass(fp.Class)
		if err != nil {
			return nil, eris.Wrapf(err, "policy: entry %s", fp.Equipment)
		}

		instructions := make(map[model.FieldName]Instruction, len(fp.Fields))
		for key, fi := range fp.Fields {
			f := model.FieldName(key)
			if !f.Valid() {
				return nil, eris.Errorf("policy: entry %s: unknown field %q", fp.Equipment, key)
			}
			instructions[f] = fi.Instruction
		}

		hint := defaultInsulationHint
		if fp.InsulationHint != nil && fp.InsulationHint.Label != "" {
			hint = *fp.InsulationHint
		}
		out = append(out, New(fp.Equipment, class, instructions, hint))
	}
	return out, nil
}

// LoadFile reads a YAML policy overlay from disk.
func LoadFile(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: read file %s", path)
	}
	return Parse(data)
}

// Load returns the built-in table, overlaid with the policies from path when
// path is non-empty.
func Load(path string) (*Registry, error) {
	reg := Default()
	if path == "" {
		return reg, nil
	}
	overrides, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return reg.With(overrides...), nil
}
