// Package workbook reads the three-sheet reference workbook (fees,
// investors, companies) and appends to the fee letter audit workbook.
package workbook

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Kind names one of the three reference sheets.
type Kind string

const (
	KindFee      Kind = "fee"
	KindInvestor Kind = "investor"
	KindCompany  Kind = "company"
)

// Canonical header names.
const (
	ColClientRef    = "Custodian Client Ref"
	ColInvestorName = "Investor name"
	ColSubscription = "Subscription code"
	ColFund         = "Fund"
	ColGrossNet     = "Gross/Net"
	ColUpfront      = "CC Set up fee %"
	ColAMC          = "CC AMC %"
	ColCarry        = "CC Carry %"
	ColDepositDate  = "Initial Deposit date/Reinvestment instruction date"
	ColDepositSeq   = "Deposit #"

	ColAccountName    = "Account Name"
	ColSalutation     = "Salutation"
	ColFirstName      = "First Name"
	ColLastName       = "Last Name"
	ColContactEmail   = "Contact email"
	ColLoginEmail     = "Login Email"
	ColClassification = "Classification"
	ColKYC            = "KYC Status"
	ColAML            = "AML Status"

	ColCompanyName   = "Company Name"
	ColSharePrice    = "Current Share Price"
	ColCompanyNumber = "Company Number"
	ColShareClass    = "Share Class"
	ColFundType      = "Fund Type"
	ColGrossAssets   = "Gross Assets"
)

// headerScanRows bounds how far down a sheet the header row is searched
// for, to skip banner rows above the table.
const headerScanRows = 10

// sheetLayout describes how to find and read one sheet.
type sheetLayout struct {
	kind    Kind
	aliases []string
	// keywords identify the header row; any one is enough.
	keywords []string
	// headers maps normalized header variants to canonical names.
	headers map[string]string
	// tokens picks a column for a canonical name by the words its header
	// contains, when no variant matched exactly.
	tokens   map[string][]string
	required []string
}

var layouts = map[Kind]sheetLayout{
	KindFee: {
		kind:     KindFee,
		aliases:  []string{"FeeSheet", "Fees", "Fee Sheet", "Fee_Data", "FeeData"},
		keywords: []string{"custodian client ref", "subscription code", "gross/net", "fund"},
		headers: map[string]string{
			"custodian client ref": ColClientRef,
			"investor name":        ColInvestorName,
			"subscription code":    ColSubscription,
			"subscription_code":    ColSubscription,
			"fund":                 ColFund,
			"gross/net":            ColGrossNet,
			"grossnet":             ColGrossNet,
			"cc set up fee %":      ColUpfront,
			"cc setup fee %":       ColUpfront,
			"cc amc %":             ColAMC,
			"cc carry %":           ColCarry,
			"deposit #":            ColDepositSeq,
			"deposit number":       ColDepositSeq,
			"initial deposit date/reinvestment instruction date": ColDepositDate,
		},
		tokens: map[string][]string{
			ColInvestorName: {"investor", "name"},
			ColDepositDate:  {"deposit", "date"},
		},
		required: []string{ColClientRef, ColSubscription, ColFund, ColGrossNet, ColUpfront, ColAMC},
	},
	KindInvestor: {
		kind:     KindInvestor,
		aliases:  []string{"InvestorSheet", "Investors", "InvestorData", "Investor Data"},
		keywords: []string{"first name", "last name", "custodian client ref", "contact email"},
		headers: map[string]string{
			"custodian client ref":  ColClientRef,
			"account name":          ColAccountName,
			"salutation":            ColSalutation,
			"first name":            ColFirstName,
			"last name":             ColLastName,
			"contact email":         ColContactEmail,
			"contact email address": ColContactEmail,
			"login email":           ColLoginEmail,
			"classification":        ColClassification,
			"investor type":         ColClassification,
			"kyc status":            ColKYC,
			"kyc":                   ColKYC,
			"aml status":            ColAML,
			"aml":                   ColAML,
		},
		required: []string{ColClientRef, ColFirstName, ColLastName, ColContactEmail},
	},
	KindCompany: {
		kind:     KindCompany,
		aliases:  []string{"CompanySheet", "Companies", "CompanyData", "Company Data"},
		keywords: []string{"company name", "current share price"},
		headers: map[string]string{
			"company name":        ColCompanyName,
			"current share price": ColSharePrice,
			"company number":      ColCompanyNumber,
			"share class":         ColShareClass,
			"fund type":           ColFundType,
			"gross assets":        ColGrossAssets,
		},
		tokens: map[string][]string{
			ColCompanyName:   {"company", "name"},
			ColSharePrice:    {"share", "price"},
			ColCompanyNumber: {"company", "number"},
			ColShareClass:    {"share", "class"},
			ColGrossAssets:   {"gross", "assets"},
		},
		required: []string{ColCompanyName, ColSharePrice},
	},
}

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]`)
)

func normHeader(s string) string {
	return spaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

func compressHeader(s string) string {
	return nonAlnumRe.ReplaceAllString(strings.ToLower(s), "")
}

// findSheet returns the first sheet whose name matches an alias, compared
// without case or spaces.
func findSheet(f *xlsx.File, layout sheetLayout) (*xlsx.Sheet, error) {
	byKey := make(map[string]*xlsx.Sheet, len(f.Sheets))
	for _, s := range f.Sheets {
		byKey[sheetKey(s.Name)] = s
	}
	for _, a := range layout.aliases {
		if s, ok := byKey[sheetKey(a)]; ok {
			return s, nil
		}
	}
	return nil, eris.Errorf("workbook: no %s sheet (tried %s)", layout.kind, strings.Join(layout.aliases, ", "))
}

func sheetKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "")
}

// table is a sheet's data rows with canonical column positions.
type table struct {
	headerRow int
	header    []string
	cols      map[string]int
	rows      [][]string
}

func (t *table) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// missing returns the required canonical columns the sheet lacks.
func (t *table) missing(layout sheetLayout) []string {
	var out []string
	for _, c := range layout.required {
		if _, ok := t.cols[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// readTable converts a sheet into a table, locating its header row within
// the first headerScanRows rows.
func readTable(sheet *xlsx.Sheet, layout sheetLayout) *table {
	raw := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			raw = append(raw, nil)
			continue
		}
		raw = append(raw, rowToStrings(row))
	}

	t := &table{cols: map[string]int{}}
	for i := 0; i < len(raw) && i < headerScanRows; i++ {
		if hasKeyword(raw[i], layout.keywords) {
			t.headerRow = i
			break
		}
	}
	if len(raw) == 0 {
		return t
	}

	t.header = raw[t.headerRow]
	for i, h := range t.header {
		key := normHeader(h)
		if key == "" {
			continue
		}
		if canon, ok := layout.headers[key]; ok {
			if _, dup := t.cols[canon]; !dup {
				t.cols[canon] = i
			}
			continue
		}
		if _, dup := t.cols[strings.TrimSpace(h)]; !dup {
			t.cols[strings.TrimSpace(h)] = i
		}
	}
	for canon, toks := range layout.tokens {
		if _, ok := t.cols[canon]; ok {
			continue
		}
		if i, ok := pickColumn(t.header, toks); ok {
			t.cols[canon] = i
		}
	}

	for _, r := range raw[t.headerRow+1:] {
		if blank(r) {
			continue
		}
		t.rows = append(t.rows, r)
	}
	return t
}

func hasKeyword(row []string, keywords []string) bool {
	for _, cell := range row {
		c := normHeader(cell)
		for _, k := range keywords {
			if c == k {
				return true
			}
		}
	}
	return false
}

// pickColumn finds a header containing every token once punctuation and
// spacing are removed.
func pickColumn(header []string, tokens []string) (int, bool) {
	for i, h := range header {
		c := compressHeader(h)
		if c == "" {
			continue
		}
		all := true
		for _, tok := range tokens {
			if !strings.Contains(c, tok) {
				all = false
				break
			}
		}
		if all {
			return i, true
		}
	}
	return 0, false
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// rowToStrings returns numeric cells as their stored value so rates and
// date serials parse without display formatting.
func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		if cell.Type() == xlsx.CellTypeNumeric {
			cells[j] = cell.Value
			continue
		}
		cells[j] = cell.String()
	}
	return cells
}
