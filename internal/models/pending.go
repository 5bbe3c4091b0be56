package models

import "time"

// PendingEnrollment holds an unverified TOTP secret between setup and verify-setup.
// It lives only in the pending store and is keyed by principal, so a new setup
// replaces the previous one.
type PendingEnrollment struct {
	PrincipalID string    `json:"principal_id"`
	Secret      string    `json:"secret"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// PendingLoginChallenge exists between a successful password check and the TOTP step.
type PendingLoginChallenge struct {
	Token       string    `json:"token"`
	PrincipalID string    `json:"principal_id"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TOTPStatus reports two-factor state for a principal
type TOTPStatus struct {
	TOTPEnabled         bool       `json:"totp_enabled"`
	TOTPEnabledAt       *time.Time `json:"totp_enabled_at,omitempty"`
	EnrollmentPending   bool       `json:"enrollment_pending"`
	EnrollmentExpiresAt *time.Time `json:"enrollment_expires_at,omitempty"`
}
