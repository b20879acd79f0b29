package resolve

import (
	"fmt"
	"strings"

	"github.com/sells-group/fee-cli/internal/model"
)

// InvestorTable matches investors by client reference or email first, then
// by full name or account name. Repeated keys are ordered by client
// reference, then email.
func InvestorTable(rows []model.Investor) Table[model.Investor] {
	return Table[model.Investor]{
		Entity: "investor",
		Rows:   rows,
		Keys: func(i model.Investor) []string {
			return []string{i.ClientRef, i.Email, i.LoginEmail}
		},
		Names: func(i model.Investor) []string {
			return []string{i.FullName(), i.AccountName}
		},
		Label: func(i model.Investor) string {
			if n := i.FullName(); n != "" {
				return n
			}
			return i.AccountName
		},
		Detail: func(i model.Investor) string {
			return joinDetail("client ref", i.ClientRef, "email", i.ContactEmail())
		},
		Less: func(a, b model.Investor) bool {
			if a.ClientRef != b.ClientRef {
				return a.ClientRef < b.ClientRef
			}
			return strings.ToLower(a.Email) < strings.ToLower(b.Email)
		},
	}
}

// CompanyTable matches companies by registration number, then by name.
func CompanyTable(rows []model.Company) Table[model.Company] {
	return Table[model.Company]{
		Entity: "company",
		Rows:   rows,
		Keys: func(c model.Company) []string {
			return []string{c.Number}
		},
		Names: func(c model.Company) []string {
			return []string{c.Name}
		},
		Label: func(c model.Company) string { return c.Name },
		Detail: func(c model.Company) string {
			price := ""
			if c.SharePrice.Valid {
				price = c.SharePrice.Decimal.StringFixed(4)
			}
			return joinDetail("number", c.Number, "share price", price)
		},
		Less: func(a, b model.Company) bool {
			if a.Number != b.Number {
				return a.Number < b.Number
			}
			return a.Name < b.Name
		},
	}
}

// FeeRowTable matches fee rows by client reference or investor name through
// the general tiers. Repeated references prefer the newest row.
func FeeRowTable(rows []model.FeeRow) Table[model.FeeRow] {
	return Table[model.FeeRow]{
		Entity: "fee_row",
		Rows:   rows,
		Keys: func(f model.FeeRow) []string {
			return []string{f.ClientRef}
		},
		Names: func(f model.FeeRow) []string {
			return []string{f.InvestorName}
		},
		Label:  func(f model.FeeRow) string { return f.InvestorName },
		Detail: feeRowDetail,
		Less:   feeRowLess,
	}
}

// Investor resolves an investor by email, client reference or name.
func (r *Resolver) Investor(query string, rows []model.Investor) Outcome[model.Investor] {
	return Resolve(r, query, InvestorTable(rows))
}

// Company resolves a company by number or name.
func (r *Resolver) Company(query string, rows []model.Company) Outcome[model.Company] {
	return Resolve(r, query, CompanyTable(rows))
}

func feeRowDetail(f model.FeeRow) string {
	return joinDetail("client ref", f.ClientRef, "subscription", f.SubscriptionCode)
}

// feeRowLess orders the newest fee row first. Rows identical on date and
// deposit number fall back to subscription code so the order never depends
// on sheet position.
func feeRowLess(a, b model.FeeRow) bool {
	if a.NewerThan(b) {
		return true
	}
	if b.NewerThan(a) {
		return false
	}
	return a.SubscriptionCode < b.SubscriptionCode
}

func joinDetail(kv ...string) string {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if v := strings.TrimSpace(kv[i+1]); v != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", kv[i], v))
		}
	}
	return strings.Join(parts, ", ")
}
