package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternalServer = errors.New("internal server error")

	// Authentication flow taxonomy. Handlers map these to status codes in one place.
	ErrValidation      = errors.New("validation failed")
	ErrAuthentication  = errors.New("authentication failed")
	ErrState           = errors.New("invalid authentication state")
	ErrExpired         = errors.New("pending state expired")
	ErrTooManyAttempts = errors.New("too many verification attempts")

	// TOTP secret errors
	ErrDecryption      = errors.New("failed to decrypt secret")
	ErrMalformedSecret = errors.New("malformed TOTP secret")
)
