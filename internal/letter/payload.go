// Package letter prepares the data behind a fee letter: it resolves the
// investor, company and fee row, computes the fee schedule and runs the
// compliance gate.
package letter

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/fee-cli/internal/compliance"
	"github.com/sells-group/fee-cli/internal/fee"
	"github.com/sells-group/fee-cli/internal/resolve"
)

// Status is the overall outcome of Prepare.
type Status string

const (
	StatusReady              Status = "ready"
	StatusNeedsClarification Status = "needs_clarification"
	StatusBlocked            Status = "blocked"
)

// Request asks for one fee letter.
type Request struct {
	// Investor and Company are free-text queries: a name, an email, a
	// client reference or a company number.
	Investor         string           `json:"investor" yaml:"investor"`
	Company          string           `json:"company" yaml:"company"`
	Amount           decimal.Decimal  `json:"amount" yaml:"amount"`
	SubscriptionHint string           `json:"subscription_code,omitempty" yaml:"subscription_code,omitempty"`
	Overrides        fee.Overrides    `json:"overrides" yaml:"overrides"`
	SharePrice       *decimal.Decimal `json:"share_price,omitempty" yaml:"share_price,omitempty"`
	ShareClass       string           `json:"share_class,omitempty" yaml:"share_class,omitempty"`
	// Account identifies the operator in the audit trail.
	Account string `json:"account,omitempty" yaml:"account,omitempty"`
	// DryRun skips the audit workbook and store.
	DryRun bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// Clarification explains why an entity could not be resolved.
type Clarification struct {
	Entity     string              `json:"entity" yaml:"entity"`
	Query      string              `json:"query" yaml:"query"`
	Reason     string              `json:"reason" yaml:"reason"`
	Message    string              `json:"message" yaml:"message"`
	Candidates []resolve.Candidate `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Total      int                 `json:"total,omitempty" yaml:"total,omitempty"`
}

// InvestorInfo is the investor identity printed on the letter.
type InvestorInfo struct {
	ClientRef      string `json:"client_ref" yaml:"client_ref"`
	Salutation     string `json:"salutation" yaml:"salutation"`
	FirstName      string `json:"first_name" yaml:"first_name"`
	LastName       string `json:"last_name" yaml:"last_name"`
	FullName       string `json:"full_name" yaml:"full_name"`
	Email          string `json:"email" yaml:"email"`
	Classification string `json:"classification,omitempty" yaml:"classification,omitempty"`
}

// CompanyInfo is the company detail printed on the letter.
type CompanyInfo struct {
	Name       string              `json:"name" yaml:"name"`
	Number     string              `json:"number,omitempty" yaml:"number,omitempty"`
	SharePrice decimal.NullDecimal `json:"share_price" yaml:"share_price"`
	ShareClass string              `json:"share_class" yaml:"share_class"`
	FundType   string              `json:"fund_type,omitempty" yaml:"fund_type,omitempty"`
}

// FeeContext records where the rates came from.
type FeeContext struct {
	SubscriptionCode string     `json:"subscription_code,omitempty" yaml:"subscription_code,omitempty"`
	Reference        string     `json:"reference" yaml:"reference"`
	Fund             string     `json:"fund,omitempty" yaml:"fund,omitempty"`
	FeeRowTier       string     `json:"fee_row_tier" yaml:"fee_row_tier"`
	Source           fee.Source `json:"source" yaml:"source"`
}

// Payload is everything a letter renderer needs. UsingDefaultRates is always
// serialized so a consumer can never miss that house defaults were used.
type Payload struct {
	Status            Status             `json:"status" yaml:"status"`
	Investor          *InvestorInfo      `json:"investor,omitempty" yaml:"investor,omitempty"`
	Company           *CompanyInfo       `json:"company,omitempty" yaml:"company,omitempty"`
	FeeContext        *FeeContext        `json:"fee_context,omitempty" yaml:"fee_context,omitempty"`
	Calculation       *fee.Result        `json:"calculation,omitempty" yaml:"calculation,omitempty"`
	Summary           *fee.Summary       `json:"summary,omitempty" yaml:"summary,omitempty"`
	Compliance        *compliance.Result `json:"compliance,omitempty" yaml:"compliance,omitempty"`
	UsingDefaultRates bool               `json:"using_default_rates" yaml:"using_default_rates"`
	Clarifications    []Clarification    `json:"clarifications,omitempty" yaml:"clarifications,omitempty"`
	AuditID           string             `json:"audit_id,omitempty" yaml:"audit_id,omitempty"`
	AuditDuplicate    bool               `json:"audit_duplicate,omitempty" yaml:"audit_duplicate,omitempty"`
	GeneratedAt       time.Time          `json:"generated_at" yaml:"generated_at"`
}
