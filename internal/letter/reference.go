package letter

import (
	"strings"
	"unicode"

	"github.com/sells-group/fee-cli/internal/fee"
	"github.com/sells-group/fee-cli/internal/model"
)

// SubscriptionReference returns the letter reference. A subscription code
// from the fee sheet is used as-is. Otherwise one is generated as
// "<preface>-<Lastname><Initial>-<fund code>-<suffix>", where the preface is
// CC for professional and CS for retail investors, the fund code is KIC for
// knowledge-intensive funds and EIS otherwise, and the suffix is 1 for
// professional and 2 for retail investors.
func SubscriptionReference(code string, inv model.Investor, co model.Company, typ fee.InvestorType) string {
	if c := strings.TrimSpace(code); c != "" {
		return c
	}

	preface, suffix := "CS", "2"
	if typ == fee.Professional {
		preface, suffix = "CC", "1"
	}

	fund := "EIS"
	ft := strings.ToLower(co.FundType)
	if strings.Contains(ft, "knowledge-intensive") || strings.Contains(ft, "kic") {
		fund = "KIC"
	}

	return preface + "-" + namePrefix(inv) + "-" + fund + "-" + suffix
}

func namePrefix(inv model.Investor) string {
	first := stripSpaces(inv.FirstName)
	last := stripSpaces(inv.LastName)
	if first != "" && last != "" {
		return last + string([]rune(first)[:1])
	}
	if p := first + last; p != "" {
		r := []rune(p)
		if len(r) > 8 {
			r = r[:8]
		}
		return string(r)
	}
	return "INVESTOR"
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
