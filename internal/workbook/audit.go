package workbook

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// AuditSheet is the sheet audit rows are appended to.
const AuditSheet = "FeeLetterAudit"

// AuditFile is the audit workbook written beside the reference workbook.
const AuditFile = "FeeLetterAudit.xlsx"

// AuditColumns is the header row of the audit sheet.
var AuditColumns = []string{
	"Account", "Custodian Client Ref", "Investor Name", "Investor Email",
	"Set up fee %", "AMC %", "Carry %", "Amount Invested", "Total Fees",
	"Gross/Net", "Fund", "Date Generated",
}

// AuditRow is one generated fee letter. Rates are fractions and are written
// as percentages.
type AuditRow struct {
	Account        string
	ClientRef      string
	InvestorName   string
	InvestorEmail  string
	UpfrontPct     decimal.Decimal
	AMCPct         decimal.Decimal
	CarryPct       decimal.Decimal
	AmountInvested decimal.Decimal
	TotalFees      decimal.Decimal
	GrossNet       string
	Fund           string
	Generated      time.Time
}

func (r AuditRow) values() []string {
	hundred := decimal.NewFromInt(100)
	return []string{
		r.Account,
		r.ClientRef,
		r.InvestorName,
		r.InvestorEmail,
		r.UpfrontPct.Mul(hundred).StringFixed(2),
		r.AMCPct.Mul(hundred).StringFixed(2),
		r.CarryPct.Mul(hundred).StringFixed(2),
		r.AmountInvested.StringFixed(2),
		r.TotalFees.StringFixed(2),
		r.GrossNet,
		r.Fund,
		r.Generated.Format("2006-01-02 15:04:05"),
	}
}

// AuditPath returns the audit workbook path for a reference workbook.
func AuditPath(workbookPath string) string {
	return filepath.Join(filepath.Dir(workbookPath), AuditFile)
}

var auditMu sync.Mutex

// AppendAuditRow appends row to the audit workbook at path, creating the
// file and header row if needed. When the workbook cannot be written (for
// example it is open and locked elsewhere) the row goes to a CSV file of
// the same name instead.
func AppendAuditRow(path string, row AuditRow) error {
	auditMu.Lock()
	defer auditMu.Unlock()

	err := appendXLSX(path, row)
	if err == nil {
		return nil
	}

	csvPath := path[:len(path)-len(filepath.Ext(path))] + ".csv"
	zap.L().Warn("workbook: audit workbook not writable, falling back to csv",
		zap.String("path", path),
		zap.String("csv", csvPath),
		zap.Error(err),
	)
	if cerr := appendCSV(csvPath, row); cerr != nil {
		return eris.Wrapf(cerr, "workbook: append audit row (xlsx: %v)", err)
	}
	return nil
}

func appendXLSX(path string, row AuditRow) error {
	var (
		f   *xlsx.File
		err error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		f, err = xlsx.OpenFile(path)
		if err != nil {
			return eris.Wrap(err, "workbook: open audit file")
		}
	} else {
		f = xlsx.NewFile()
	}

	sheet, ok := f.Sheet[AuditSheet]
	if !ok {
		sheet, err = f.AddSheet(AuditSheet)
		if err != nil {
			return eris.Wrap(err, "workbook: add audit sheet")
		}
	}
	if len(sheet.Rows) == 0 {
		writeRow(sheet, AuditColumns)
	}
	writeRow(sheet, row.values())

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "workbook: save audit file")
	}
	return nil
}

func writeRow(sheet *xlsx.Sheet, values []string) {
	r := sheet.AddRow()
	for _, v := range values {
		r.AddCell().SetString(v)
	}
}

func appendCSV(path string, row AuditRow) error {
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "workbook: open audit csv")
	}
	defer fh.Close() //nolint:errcheck

	w := csv.NewWriter(fh)
	if fresh {
		if err := w.Write(AuditColumns); err != nil {
			return eris.Wrap(err, "workbook: write audit csv header")
		}
	}
	if err := w.Write(row.values()); err != nil {
		return eris.Wrap(err, "workbook: write audit csv row")
	}
	w.Flush()
	return eris.Wrap(w.Error(), "workbook: flush audit csv")
}

// ReadAuditRows returns the data rows of the audit sheet, header excluded.
func ReadAuditRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "workbook: open audit file")
	}
	sheet, ok := f.Sheet[AuditSheet]
	if !ok {
		return nil, eris.Errorf("workbook: sheet %q not found", AuditSheet)
	}
	var rows [][]string
	for i, r := range sheet.Rows {
		if i == 0 || r == nil {
			continue
		}
		rows = append(rows, rowToStrings(r))
	}
	return rows, nil
}
