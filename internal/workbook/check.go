package workbook

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// SheetReport describes one reference sheet of a workbook.
type SheetReport struct {
	Kind      Kind     `json:"kind" yaml:"kind"`
	Found     bool     `json:"found" yaml:"found"`
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
	HeaderRow int      `json:"header_row" yaml:"header_row"`
	Rows      int      `json:"rows" yaml:"rows"`
	Missing   []string `json:"missing_columns,omitempty" yaml:"missing_columns,omitempty"`
}

// Report is the result of Check.
type Report struct {
	Path   string        `json:"path" yaml:"path"`
	OK     bool          `json:"ok" yaml:"ok"`
	Sheets []SheetReport `json:"sheets" yaml:"sheets"`
}

// Check validates that the workbook has all three sheets and their required
// columns. Structural problems are reported, not returned as errors; an
// error means the file could not be read at all.
func Check(path string) (*Report, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "workbook: open file")
	}

	rep := &Report{Path: path, OK: true}
	for _, kind := range []Kind{KindInvestor, KindCompany, KindFee} {
		layout := layouts[kind]
		sr := SheetReport{Kind: kind}

		sheet, err := findSheet(f, layout)
		if err != nil {
			sr.Missing = layout.required
			rep.OK = false
			rep.Sheets = append(rep.Sheets, sr)
			continue
		}

		t := readTable(sheet, layout)
		sr.Found = true
		sr.Name = sheet.Name
		sr.HeaderRow = t.headerRow + 1
		sr.Rows = len(t.rows)
		sr.Missing = t.missing(layout)
		if len(sr.Missing) > 0 {
			rep.OK = false
		}
		rep.Sheets = append(rep.Sheets, sr)
	}
	return rep, nil
}
