package workbook

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/fee-cli/internal/fee"
)

// excelEpoch is day zero of the 1900 date system as Excel counts it.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"02-01-2006",
	"02-Jan-2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
}

// parseDecimal reads a plain or currency-formatted number ("£1,250.00").
func parseDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("£", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// parsePct reads a rate written as a fraction, a bare percentage or with a
// percent sign: "0.015", "1.5" and "1.5%" are all 1.5%.
func parsePct(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "%") {
		d := parseDecimal(strings.TrimSuffix(s, "%"))
		if !d.Valid {
			return d
		}
		return decimal.NewNullDecimal(d.Decimal.Div(decimal.NewFromInt(100)))
	}
	d := parseDecimal(s)
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(fee.CoercePct(d.Decimal))
}

// parseSharePrice reads a price in pounds ("£1.20", "1.2") or pence
// ("120p").
func parseSharePrice(s string) decimal.NullDecimal {
	v := strings.ToLower(strings.TrimSpace(s))
	if strings.HasSuffix(v, "p") {
		d := parseDecimal(strings.TrimSuffix(v, "p"))
		if !d.Valid {
			return d
		}
		return decimal.NewNullDecimal(d.Decimal.Div(decimal.NewFromInt(100)))
	}
	return parseDecimal(v)
}

// parseDate reads an Excel date serial or a date string. Day-first layouts
// are tried for slashed dates.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if d, err := decimal.NewFromString(s); err == nil {
		days := d.IntPart()
		if days <= 0 {
			return nil
		}
		t := excelEpoch.AddDate(0, 0, int(days))
		return &t
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// parseInt reads a whole number, tolerating a trailing ".0".
func parseInt(s string) *int {
	d := parseDecimal(s)
	if !d.Valid {
		return nil
	}
	n := int(d.Decimal.IntPart())
	return &n
}

// parseRef reads a reference that spreadsheets may have stored as a number.
func parseRef(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".0") {
		if _, err := decimal.NewFromString(s); err == nil {
			return strings.TrimSuffix(s, ".0")
		}
	}
	return s
}
