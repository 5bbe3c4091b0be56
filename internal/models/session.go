package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of a session credential.
//
// TOTPEnrolled records whether the principal had TOTP enabled when the
// credential was issued. A credential minted before enrollment does not
// satisfy two-factor once the principal turns TOTP on.
type SessionClaims struct {
	PrincipalID  string `json:"principal_id"`
	Identifier   string `json:"identifier"`
	TOTPVerified bool   `json:"totp_verified"`
	TOTPEnrolled bool   `json:"totp_enrolled"`
	jwt.RegisteredClaims
}
