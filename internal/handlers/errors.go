package handlers

import (
	"errors"
	"net/http"

	"github.com/BradenHooton/totpgate/internal/models"
	pkghttp "github.com/BradenHooton/totpgate/pkg/http"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgInvalidCode        = "Invalid code"
)

// writeServiceError maps service sentinels to HTTP responses.
// authMessage is the generic text used for every authentication failure in the flow.
// In login flows a missing principal is reported as an authentication failure.
func writeServiceError(w http.ResponseWriter, err error, authMessage string, loginFlow bool) {
	switch {
	case errors.Is(err, models.ErrValidation):
		pkghttp.WriteValidationError(w, err.Error())
	case errors.Is(err, models.ErrAuthentication), errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, authMessage)
	case errors.Is(err, models.ErrState), errors.Is(err, models.ErrExpired):
		pkghttp.WriteStateError(w, err.Error())
	case errors.Is(err, models.ErrTooManyAttempts):
		pkghttp.WriteTooManyAttempts(w, "Too many attempts. Please start again.")
	case errors.Is(err, models.ErrNotFound):
		if loginFlow {
			pkghttp.WriteUnauthorized(w, authMessage)
			return
		}
		pkghttp.WriteNotFound(w, "Principal not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Identifier already registered")
	default:
		// ErrDecryption, ErrMalformedSecret and anything unexpected
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
