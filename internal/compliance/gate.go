// Package compliance decides whether a resolved, calculated investment may
// proceed to letter generation.
package compliance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/fee-cli/internal/fee"
	"github.com/sells-group/fee-cli/internal/model"
)

// Rules holds the regulatory ceilings and risk thresholds.
type Rules struct {
	AnnualCap           float64 `yaml:"annual_cap" mapstructure:"annual_cap"`
	MaxCompanyAssets    float64 `yaml:"max_company_assets" mapstructure:"max_company_assets"`
	RetailMaxUpfrontPct float64 `yaml:"retail_max_upfront_pct" mapstructure:"retail_max_upfront_pct"`
	RetailMaxAMCPct     float64 `yaml:"retail_max_amc_pct" mapstructure:"retail_max_amc_pct"`
	MediumRiskFrom      float64 `yaml:"medium_risk_from" mapstructure:"medium_risk_from"`
	HighRiskFrom        float64 `yaml:"high_risk_from" mapstructure:"high_risk_from"`
	RequireKYC          bool    `yaml:"require_kyc" mapstructure:"require_kyc"`
	RequireAML          bool    `yaml:"require_aml" mapstructure:"require_aml"`
}

// DefaultRules returns the EIS limits.
func DefaultRules() Rules {
	return Rules{
		AnnualCap:           1_000_000,
		MaxCompanyAssets:    15_000_000,
		RetailMaxUpfrontPct: 0.02,
		RetailMaxAMCPct:     0.025,
		MediumRiskFrom:      100_000,
		HighRiskFrom:        500_000,
	}
}

// RiskTier is a coarse grading of an investment by size.
type RiskTier string

const (
	RiskLow    RiskTier = "LOW"
	RiskMedium RiskTier = "MEDIUM"
	RiskHigh   RiskTier = "HIGH"
)

// Finding is one violated rule or warning with its remedy.
type Finding struct {
	Rule    string `json:"rule" yaml:"rule"`
	Message string `json:"message" yaml:"message"`
	Remedy  string `json:"remedy,omitempty" yaml:"remedy,omitempty"`
}

// Request is everything the gate inspects. Nil members count as missing.
type Request struct {
	Investor          *model.Investor
	Company           *model.Company
	Calculation       *fee.Result
	UsingDefaultRates bool
}

// Result is the gate's decision. Violations block; warnings do not.
type Result struct {
	Valid         bool      `json:"valid" yaml:"valid"`
	AutoApprove   bool      `json:"auto_approve" yaml:"auto_approve"`
	MissingFields []string  `json:"missing_fields" yaml:"missing_fields"`
	Violations    []Finding `json:"violations" yaml:"violations"`
	Warnings      []Finding `json:"warnings" yaml:"warnings"`
	RiskTier      RiskTier  `json:"risk_tier" yaml:"risk_tier"`
	Message       string    `json:"message" yaml:"message"`
}

// Err returns a *ViolationError when the result is invalid, else nil.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &ViolationError{MissingFields: r.MissingFields, Violations: r.Violations}
}

// ViolationError blocks letter generation.
type ViolationError struct {
	MissingFields []string
	Violations    []Finding
}

func (e *ViolationError) Error() string {
	var parts []string
	if len(e.MissingFields) > 0 {
		parts = append(parts, "missing "+strings.Join(e.MissingFields, ", "))
	}
	for _, v := range e.Violations {
		parts = append(parts, v.Rule+": "+v.Message)
	}
	return "compliance: " + strings.Join(parts, "; ")
}

// Gate evaluates Requests against Rules.
type Gate struct {
	rules Rules
}

// NewGate creates a Gate. Zero-valued limits take their defaults.
func NewGate(rules Rules) *Gate {
	def := DefaultRules()
	if rules.AnnualCap <= 0 {
		rules.AnnualCap = def.AnnualCap
	}
	if rules.MaxCompanyAssets <= 0 {
		rules.MaxCompanyAssets = def.MaxCompanyAssets
	}
	if rules.RetailMaxUpfrontPct <= 0 {
		rules.RetailMaxUpfrontPct = def.RetailMaxUpfrontPct
	}
	if rules.RetailMaxAMCPct <= 0 {
		rules.RetailMaxAMCPct = def.RetailMaxAMCPct
	}
	if rules.MediumRiskFrom <= 0 {
		rules.MediumRiskFrom = def.MediumRiskFrom
	}
	if rules.HighRiskFrom <= 0 {
		rules.HighRiskFrom = def.HighRiskFrom
	}
	return &Gate{rules: rules}
}

// Rules returns the effective rules.
func (g *Gate) Rules() Rules { return g.rules }

// Evaluate checks req. It never modifies the calculation.
func (g *Gate) Evaluate(req Request) Result {
	res := Result{
		MissingFields: []string{},
		Violations:    []Finding{},
		Warnings:      []Finding{},
		RiskTier:      RiskLow,
	}

	g.checkRequired(req, &res)

	if inv := req.Investor; inv != nil {
		g.checkStatus(&res, "kyc", "KYC", inv.KYCStatus, g.rules.RequireKYC, "complete", "completed", "passed")
		g.checkStatus(&res, "aml", "AML", inv.AMLStatus, g.rules.RequireAML, "clear", "cleared", "passed")
		if strings.TrimSpace(inv.Classification) == "" {
			res.Warnings = append(res.Warnings, Finding{
				Rule:    "classification",
				Message: "Investor classification is not recorded",
				Remedy:  "Confirm whether the investor is retail or professional",
			})
		}
	}

	if c := req.Company; c != nil && c.GrossAssets.Valid {
		limit := decimal.NewFromFloat(g.rules.MaxCompanyAssets)
		if c.GrossAssets.Decimal.GreaterThan(limit) {
			res.Violations = append(res.Violations, Finding{
				Rule:    "company_gross_assets",
				Message: fmt.Sprintf("Company gross assets %s exceed the %s limit", fee.Display(c.GrossAssets.Decimal), fee.Display(limit)),
				Remedy:  "The company is not eligible; choose a qualifying company",
			})
		}
	}

	if calc := req.Calculation; calc != nil {
		g.checkCalculation(calc, &res)
	}

	if req.UsingDefaultRates {
		res.Warnings = append(res.Warnings, Finding{
			Rule:    "default_fee_structure",
			Message: "No fee row matched; the default fee structure was used",
			Remedy:  "Confirm the rates with the investor or add a fee row",
		})
	}

	res.Valid = len(res.MissingFields) == 0 && len(res.Violations) == 0
	res.AutoApprove = res.Valid && res.RiskTier == RiskLow && len(res.Warnings) == 0

	switch {
	case res.Valid && res.AutoApprove:
		res.Message = "Validation passed; eligible for automatic approval"
	case res.Valid:
		res.Message = fmt.Sprintf("Validation passed with %d warning(s); manual review required", len(res.Warnings))
	default:
		res.Message = fmt.Sprintf("Validation failed: %d violation(s), %d missing field(s)", len(res.Violations), len(res.MissingFields))
		zap.L().Info("compliance: request blocked",
			zap.Strings("missing", res.MissingFields),
			zap.Int("violations", len(res.Violations)),
		)
	}
	return res
}

func (g *Gate) checkRequired(req Request, res *Result) {
	missing := func(field string) { res.MissingFields = append(res.MissingFields, field) }

	if inv := req.Investor; inv == nil {
		missing("investor.first_name")
		missing("investor.last_name")
		missing("investor.contact_email")
	} else {
		if strings.TrimSpace(inv.FirstName) == "" {
			missing("investor.first_name")
		}
		if strings.TrimSpace(inv.LastName) == "" {
			missing("investor.last_name")
		}
		if strings.TrimSpace(inv.ContactEmail()) == "" {
			missing("investor.contact_email")
		}
	}

	if c := req.Company; c == nil {
		missing("company.name")
		missing("company.share_price")
	} else {
		if strings.TrimSpace(c.Name) == "" {
			missing("company.name")
		}
		if !c.SharePrice.Valid || !c.SharePrice.Decimal.IsPositive() {
			missing("company.share_price")
		}
	}

	if calc := req.Calculation; calc == nil {
		missing("investment.amount")
		missing("investment.direction")
	} else {
		if !calc.GrossInvestment.IsPositive() {
			missing("investment.amount")
		}
		if calc.Direction == "" {
			missing("investment.direction")
		}
	}
}

func (g *Gate) checkStatus(res *Result, rule, label, status string, required bool, ok ...string) {
	s := strings.ToLower(strings.TrimSpace(status))
	for _, v := range ok {
		if s == v {
			return
		}
	}
	shown := status
	if s == "" {
		shown = "not recorded"
	}
	f := Finding{
		Rule:    rule,
		Message: fmt.Sprintf("%s status is %s", label, shown),
		Remedy:  fmt.Sprintf("Complete %s checks before sending", label),
	}
	if required {
		res.Violations = append(res.Violations, f)
		return
	}
	res.Warnings = append(res.Warnings, f)
}

func (g *Gate) checkCalculation(calc *fee.Result, res *Result) {
	gross := calc.GrossInvestment
	limit := decimal.NewFromFloat(g.rules.AnnualCap)
	if gross.GreaterThan(limit) {
		res.Violations = append(res.Violations, Finding{
			Rule:    "annual_cap",
			Message: fmt.Sprintf("Investment %s exceeds the annual limit of %s", fee.Display(gross), fee.Display(limit)),
			Remedy:  fmt.Sprintf("Reduce the investment to %s or less, or split it across tax years", fee.Display(limit)),
		})
	}

	if calc.InvestorType == fee.Retail {
		maxUp := decimal.NewFromFloat(g.rules.RetailMaxUpfrontPct)
		if calc.Structure.UpfrontPct.GreaterThan(maxUp) {
			res.Violations = append(res.Violations, Finding{
				Rule:    "retail_upfront_cap",
				Message: fmt.Sprintf("Upfront fee %s exceeds the retail maximum of %s", pct(calc.Structure.UpfrontPct), pct(maxUp)),
				Remedy:  fmt.Sprintf("Reduce the upfront fee to %s or reclassify the investor", pct(maxUp)),
			})
		}
		maxAMC := decimal.NewFromFloat(g.rules.RetailMaxAMCPct)
		if calc.Structure.AMC13Pct.GreaterThan(maxAMC) {
			res.Violations = append(res.Violations, Finding{
				Rule:    "retail_amc_cap",
				Message: fmt.Sprintf("AMC %s exceeds the retail maximum of %s", pct(calc.Structure.AMC13Pct), pct(maxAMC)),
				Remedy:  fmt.Sprintf("Reduce the AMC to %s or reclassify the investor", pct(maxAMC)),
			})
		}
	}

	switch {
	case gross.GreaterThanOrEqual(decimal.NewFromFloat(g.rules.HighRiskFrom)):
		res.RiskTier = RiskHigh
		res.Warnings = append(res.Warnings, Finding{
			Rule:    "high_risk",
			Message: fmt.Sprintf("Investment %s is high risk", fee.Display(gross)),
			Remedy:  "Apply enhanced due diligence",
		})
	case gross.GreaterThanOrEqual(decimal.NewFromFloat(g.rules.MediumRiskFrom)):
		res.RiskTier = RiskMedium
	}
}

func pct(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
