package models

import (
	"time"
)

// Principal types accepted at registration
const (
	PrincipalTypeIndividual = "individual"
	PrincipalTypeBusiness   = "business"
)

// Principal is an account that can authenticate: a person or a company.
type Principal struct {
	ID           string
	Identifier   string // username, fiscal code or VAT number; stored lower-cased
	PasswordHash string
	Type         string
	Email        string

	// Individual profile
	FirstName   string
	LastName    string
	Address     string
	FiscalCode  string
	PhoneNumber string

	// Business profile
	CompanyName string
	VATNumber   string

	TOTPSecret    *string // vault ciphertext, never plaintext
	TOTPEnabled   bool
	TOTPEnabledAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EnableTOTP stores an encrypted secret and turns two-factor on.
func (p *Principal) EnableTOTP(encryptedSecret string, at time.Time) {
	p.TOTPSecret = &encryptedSecret
	p.TOTPEnabled = true
	p.TOTPEnabledAt = &at
}

// DisableTOTP clears the secret together with the flag so the two never disagree.
func (p *Principal) DisableTOTP() {
	p.TOTPSecret = nil
	p.TOTPEnabled = false
	p.TOTPEnabledAt = nil
}

// DisplayName returns the name shown in notifications
func (p *Principal) DisplayName() string {
	if p.Type == PrincipalTypeBusiness && p.CompanyName != "" {
		return p.CompanyName
	}
	if p.FirstName != "" {
		return p.FirstName
	}
	return p.Identifier
}
