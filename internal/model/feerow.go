package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeRow is a reference record from the fee sheet. One investor may have
// several rows (one per deposit or reinvestment instruction).
type FeeRow struct {
	ClientRef        string              `json:"custodian_client_ref"`
	InvestorName     string              `json:"investor_name,omitempty"`
	SubscriptionCode string              `json:"subscription_code"`
	Fund             string              `json:"fund"`
	GrossNet         string              `json:"gross_net"`
	UpfrontPct       decimal.NullDecimal `json:"upfront_pct"`
	AMCPct           decimal.NullDecimal `json:"amc_pct"`
	CarryPct         decimal.NullDecimal `json:"carry_pct"`
	EffectiveDate    *time.Time          `json:"effective_date,omitempty"`
	DepositSeq       *int                `json:"deposit_seq,omitempty"`
}

// NewerThan orders fee rows by effective date descending, then deposit
// sequence descending. Missing values sort last.
func (f FeeRow) NewerThan(o FeeRow) bool {
	switch {
	case f.EffectiveDate != nil && o.EffectiveDate == nil:
		return true
	case f.EffectiveDate == nil && o.EffectiveDate != nil:
		return false
	case f.EffectiveDate != nil && !f.EffectiveDate.Equal(*o.EffectiveDate):
		return f.EffectiveDate.After(*o.EffectiveDate)
	}
	switch {
	case f.DepositSeq != nil && o.DepositSeq == nil:
		return true
	case f.DepositSeq == nil && o.DepositSeq != nil:
		return false
	case f.DepositSeq != nil:
		return *f.DepositSeq > *o.DepositSeq
	}
	return false
}
