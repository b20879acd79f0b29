package model

import (
	"github.com/shopspring/decimal"
)

// DefaultShareClass is used when the company sheet leaves share class blank.
const DefaultShareClass = "Ordinary Share"

// Company is a reference record from the company sheet.
type Company struct {
	Name        string              `json:"company_name"`
	Number      string              `json:"company_number,omitempty"`
	SharePrice  decimal.NullDecimal `json:"current_share_price"`
	ShareClass  string              `json:"share_class"`
	FundType    string              `json:"fund_type,omitempty"`
	GrossAssets decimal.NullDecimal `json:"gross_assets"`
}

// ShareClassOrDefault returns the share class, falling back to DefaultShareClass.
func (c Company) ShareClassOrDefault() string {
	if c.ShareClass == "" {
		return DefaultShareClass
	}
	return c.ShareClass
}
