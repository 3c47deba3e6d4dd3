// Package masterfile loads and saves the equipment graph the extractor
// fills in.
package masterfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/masterfile-cli/internal/model"
)

// ErrNoEquipment is returned when a file holds no equipment.
var ErrNoEquipment = eris.New("masterfile: no equipment")

type document struct {
	Equipment []rawEquipment `json:"equipment" yaml:"equipment"`
}

type rawEquipment struct {
	EquipmentNumber string         `json:"equipment_number" yaml:"equipment_number"`
	PMTNumber       string         `json:"pmt_number" yaml:"pmt_number"`
	Description     string         `json:"description" yaml:"description"`
	Components      []rawComponent `json:"components" yaml:"components"`
}

type rawComponent struct {
	Name         string         `json:"component_name" yaml:"component_name"`
	Phase        string         `json:"phase" yaml:"phase"`
	ExistingData map[string]any `json:"existing_data" yaml:"existing_data"`
}

// LoadFile reads equipment from a YAML or JSON file, chosen by extension.
// Field values may be written as numbers; they are kept as text.
func LoadFile(path string) ([]*model.Equipment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "masterfile: read file")
	}

	var doc document
	if isJSON(path) {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "masterfile: parse %s", filepath.Base(path))
	}

	out := make([]*model.Equipment, 0, len(doc.Equipment))
	for _, re := range doc.Equipment {
		eq := &model.Equipment{
			EquipmentNumber: strings.TrimSpace(re.EquipmentNumber),
			PMTNumber:       strings.TrimSpace(re.PMTNumber),
			Description:     re.Description,
		}
		for _, rc := range re.Components {
			c := &model.Component{Name: rc.Name, Phase: rc.Phase}
			for k, v := range rc.ExistingData {
				f := model.FieldName(k)
				if !f.Valid() {
					zap.L().Warn("masterfile: unknown field ignored",
						zap.String("equipment", eq.EquipmentNumber),
						zap.String("component", rc.Name),
						zap.String("field", k),
					)
					continue
				}
				if v == nil {
					continue
				}
				c.Set(f, fmt.Sprint(v))
			}
			eq.Components = append(eq.Components, c)
		}
		out = append(out, eq)
	}

	if err := check(out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveFile writes equipment to a YAML or JSON file, chosen by extension.
// Empty fields are omitted.
func SaveFile(path string, equipment []*model.Equipment) error {
	doc := document{Equipment: make([]rawEquipment, 0, len(equipment))}
	for _, eq := range equipment {
		re := rawEquipment{
			EquipmentNumber: eq.EquipmentNumber,
			PMTNumber:       eq.PMTNumber,
			Description:     eq.Description,
		}
		for _, c := range eq.Components {
			rc := rawComponent{Name: c.Name, Phase: c.Phase, ExistingData: map[string]any{}}
			for _, f := range model.AllFields {
				if c.Has(f) {
					rc.ExistingData[string(f)] = c.Get(f)
				}
			}
			re.Components = append(re.Components, rc)
		}
		doc.Equipment = append(doc.Equipment, re)
	}

	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = yaml.Marshal(doc)
	}
	if err != nil {
		return eris.Wrap(err, "masterfile: encode")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "masterfile: write file")
	}
	return nil
}

// Index maps equipment by number.
func Index(equipment []*model.Equipment) model.EquipmentMap {
	m := make(model.EquipmentMap, len(equipment))
	for _, eq := range equipment {
		m[eq.EquipmentNumber] = eq
	}
	return m
}

func check(equipment []*model.Equipment) error {
	if len(equipment) == 0 {
		return ErrNoEquipment
	}
	seen := make(map[string]bool, len(equipment))
	for i, eq := range equipment {
		if eq.EquipmentNumber == "" {
			return eris.Errorf("masterfile: equipment #%d has no equipment_number", i+1)
		}
		if seen[eq.EquipmentNumber] {
			return eris.Errorf("masterfile: duplicate equipment_number %q", eq.EquipmentNumber)
		}
		seen[eq.EquipmentNumber] = true

		var names []string
		for _, c := range eq.Components {
			if strings.TrimSpace(c.Name) == "" {
				return eris.Errorf("masterfile: %s has a component without a name", eq.EquipmentNumber)
			}
			if slices.Contains(names, c.Name) {
				return eris.Errorf("masterfile: %s has duplicate component %q", eq.EquipmentNumber, c.Name)
			}
			names = append(names, c.Name)
		}
	}
	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
