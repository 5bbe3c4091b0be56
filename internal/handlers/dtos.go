package handlers

// Auth DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Identifier  string `json:"identifier" validate:"required,min=3,max=64"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	UserType    string `json:"user_type" validate:"required,oneof=individual business"`
	Email       string `json:"email" validate:"omitempty,email,max=255"`
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	Address     string `json:"address" validate:"max=255"`
	FiscalCode  string `json:"fiscal_code" validate:"omitempty,alphanum,max=32"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
	CompanyName string `json:"company_name" validate:"max=255"`
	VATNumber   string `json:"vat_number" validate:"omitempty,alphanum,max=32"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=64"`
	Password   string `json:"password" validate:"required,max=72"`
}

// TOTP DTOs

// VerifyLoginRequest answers a login challenge. The challenge token may
// instead arrive in the challenge cookie.
type VerifyLoginRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"omitempty,max=64"`
	Code           string `json:"code" validate:"required"`
}

// VerifySetupRequest confirms enrollment with the first code
type VerifySetupRequest struct {
	Code string `json:"code" validate:"required"`
}

// DisableTOTPRequest re-confirms identity before turning TOTP off
type DisableTOTPRequest struct {
	Password string `json:"password" validate:"max=72"`
	Code     string `json:"code"`
}

// SuccessResponse is returned by operations with nothing else to report
type SuccessResponse struct {
	Success bool `json:"success"`
}
