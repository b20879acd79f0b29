package model

import "time"

// Dataset is an immutable snapshot of the three reference sheets. A refresh
// produces a new Dataset; an existing one is never modified in place.
type Dataset struct {
	Source    string     `json:"source"`
	LoadedAt  time.Time  `json:"loaded_at"`
	Investors []Investor `json:"investors"`
	Companies []Company  `json:"companies"`
	FeeRows   []FeeRow   `json:"fee_rows"`
}

// Counts returns the number of records per collection.
func (d *Dataset) Counts() (investors, companies, feeRows int) {
	if d == nil {
		return 0, 0, 0
	}
	return len(d.Investors), len(d.Companies), len(d.FeeRows)
}
