package masterfile

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/masterfile-cli/internal/model"
)

const (
	colEquipment   = "equipment_number"
	colPMT         = "pmt_number"
	colDescription = "description"
	colComponent   = "component"
	colPhase       = "phase"
)

// headerAliases accepts the column titles seen in masterfile sheets.
var headerAliases = map[string]string{
	"equipment":      colEquipment,
	"equipment_no":   colEquipment,
	"tag":            colEquipment,
	"pmt":            colPMT,
	"pmt_no":         colPMT,
	"component_name": colComponent,
	"part":           colComponent,
}

// LoadXLSX reads the masterfile sheet: one row per component with
// equipment_number, pmt_number, description, component, phase and the
// field columns, matched by header name. Rows of the same equipment are
// grouped in first-seen order. An empty sheet name reads the first sheet.
func LoadXLSX(path, sheetName string) ([]*model.Equipment, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "masterfile: open xlsx")
	}

	sheet, err := pickSheet(f, sheetName)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, ErrNoEquipment
	}

	cols := mapHeader(rowToStrings(sheet.Rows[0]))
	for _, req := range []string{colEquipment, colComponent} {
		if _, ok := cols[req]; !ok {
			return nil, eris.Errorf("masterfile: sheet %q has no %s column", sheet.Name, req)
		}
	}

	var (
		out   []*model.Equipment
		byNum = map[string]*model.Equipment{}
	)
	for i, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		cell := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[idx])
		}

		num := cell(colEquipment)
		compName := cell(colComponent)
		if num == "" && compName == "" {
			continue
		}
		if num == "" || compName == "" {
			zap.L().Warn("masterfile: incomplete row skipped",
				zap.Int("row", i+2),
				zap.String("equipment", num),
				zap.String("component", compName),
			)
			continue
		}

		eq, ok := byNum[num]
		if !ok {
			eq = &model.Equipment{EquipmentNumber: num}
			byNum[num] = eq
			out = append(out, eq)
		}
		if eq.PMTNumber == "" {
			eq.PMTNumber = cell(colPMT)
		}
		if eq.Description == "" {
			eq.Description = cell(colDescription)
		}

		c := &model.Component{Name: compName, Phase: cell(colPhase)}
		for _, fld := range model.AllFields {
			if v := cell(string(fld)); v != "" {
				c.Set(fld, v)
			}
		}
		eq.Components = append(eq.Components, c)
	}

	if err := check(out); err != nil {
		return nil, err
	}
	zap.L().Info("masterfile: loaded sheet",
		zap.String("sheet", sheet.Name),
		zap.Int("equipment", len(out)),
	)
	return out, nil
}

// mapHeader resolves column titles to canonical names. Field columns may
// use the field name, its response key or its label.
func mapHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := headerKey(h)
		if key == "" {
			continue
		}
		if alias, ok := headerAliases[key]; ok {
			key = alias
		} else if f, ok := model.FieldByResponseKey(key); ok {
			key = string(f)
		} else {
			for _, fld := range model.AllFields {
				if headerKey(fld.Label()) == key {
					key = string(fld)
					break
				}
			}
		}
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return cols
}

func headerKey(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), "_")
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("masterfile: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("masterfile: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
