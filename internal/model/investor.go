package model

import "strings"

// Investor is a reference record from the investor sheet.
type Investor struct {
	ClientRef      string `json:"custodian_client_ref"`
	AccountName    string `json:"account_name,omitempty"`
	Salutation     string `json:"salutation,omitempty"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"contact_email"`
	LoginEmail     string `json:"login_email,omitempty"`
	Classification string `json:"classification,omitempty"`
	KYCStatus      string `json:"kyc_status,omitempty"`
	AMLStatus      string `json:"aml_status,omitempty"`
}

// FullName joins first and last name.
func (i Investor) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(i.FirstName) + " " + strings.TrimSpace(i.LastName))
}

// ContactEmail returns the contact email, falling back to the login email.
func (i Investor) ContactEmail() string {
	if i.Email != "" {
		return i.Email
	}
	return i.LoginEmail
}

// SalutationOrDefault returns the salutation, defaulting to "Dear".
func (i Investor) SalutationOrDefault() string {
	if i.Salutation == "" {
		return "Dear"
	}
	return i.Salutation
}
