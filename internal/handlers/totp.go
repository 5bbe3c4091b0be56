package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/BradenHooton/totpgate/internal/auth"
	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/BradenHooton/totpgate/internal/services"
	pkghttp "github.com/BradenHooton/totpgate/pkg/http"
)

// TOTPServiceInterface defines the interface for TOTP enrollment and management
type TOTPServiceInterface interface {
	InitiateSetup(ctx context.Context, principalID string, meta services.RequestMeta) (*services.EnrollmentResponse, error)
	VerifySetup(ctx context.Context, principalID, code string, meta services.RequestMeta) (*services.VerifySetupResponse, error)
	CancelSetup(ctx context.Context, principalID string, meta services.RequestMeta) error
	Disable(ctx context.Context, principalID, password, code string, meta services.RequestMeta) error
	Status(ctx context.Context, principalID string) (*models.TOTPStatus, error)
}

// TOTPHandler handles TOTP enrollment and management requests
type TOTPHandler struct {
	service  TOTPServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewTOTPHandler creates a new TOTP handler
func NewTOTPHandler(service TOTPServiceInterface, ipConfig *pkghttp.IPConfig) *TOTPHandler {
	return &TOTPHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Setup starts or restarts TOTP enrollment
// POST /auth/totp/setup
func (h *TOTPHandler) Setup(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	resp, err := h.service.InitiateSetup(r.Context(), session.Claims.PrincipalID, requestMeta(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err, msgInvalidCode, false)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// VerifySetup confirms enrollment with the first code
// POST /auth/totp/verify-setup
func (h *TOTPHandler) VerifySetup(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req VerifySetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}

	resp, err := h.service.VerifySetup(r.Context(), session.Claims.PrincipalID, req.Code, requestMeta(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err, msgInvalidCode, false)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Cancel discards a pending enrollment
// POST /auth/totp/cancel
func (h *TOTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.service.CancelSetup(r.Context(), session.Claims.PrincipalID, requestMeta(r, h.ipConfig)); err != nil {
		writeServiceError(w, err, msgInvalidCode, false)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Status reports the caller's TOTP state
// GET /auth/totp/status
func (h *TOTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	status, err := h.service.Status(r.Context(), session.Claims.PrincipalID)
	if err != nil {
		writeServiceError(w, err, msgInvalidCode, false)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// Disable turns TOTP off after re-confirming with password or code
// POST /auth/totp/disable
func (h *TOTPHandler) Disable(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req DisableTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}

	err := h.service.Disable(r.Context(), session.Claims.PrincipalID, req.Password, req.Code, requestMeta(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err, msgInvalidCredentials, false)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
