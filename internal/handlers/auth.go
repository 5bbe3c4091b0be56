package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BradenHooton/totpgate/internal/auth"
	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/BradenHooton/totpgate/internal/services"
	pkghttp "github.com/BradenHooton/totpgate/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput, meta services.RequestMeta) (*services.RegisterResponse, error)
	Login(ctx context.Context, identifier, password string, meta services.RequestMeta) (*services.LoginResponse, error)
	VerifyLogin(ctx context.Context, challengeToken, code string, meta services.RequestMeta) (*services.SessionResponse, error)
	Profile(ctx context.Context, principalID string) (*services.PrincipalResponse, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	cookies  auth.CookieConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, cookies auth.CookieConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		cookies:  cookies,
	}
}

// Register handles principal registration
// @Summary Register a principal and start TOTP enrollment
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 201 {object} services.RegisterResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}

	resp, err := h.service.Register(r.Context(), services.RegisterInput{
		Identifier:  req.Identifier,
		Password:    req.Password,
		Type:        req.UserType,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Address:     req.Address,
		FiscalCode:  req.FiscalCode,
		PhoneNumber: req.PhoneNumber,
		CompanyName: req.CompanyName,
		VATNumber:   req.VATNumber,
	}, h.requestMeta(r))
	if err != nil {
		writeServiceError(w, err, msgInvalidCredentials, false)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, resp)
}

// Login handles password login
// @Summary Password login; may return a TOTP challenge
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}

	resp, err := h.service.Login(r.Context(), req.Identifier, req.Password, h.requestMeta(r))
	if err != nil {
		writeServiceError(w, err, msgInvalidCredentials, true)
		return
	}

	if resp.RequiresTOTP && resp.ExpiresAt != nil {
		auth.SetChallengeCookie(w, resp.ChallengeToken, *resp.ExpiresAt, h.cookies)
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// VerifyLogin completes a login that requires TOTP
// @Summary Answer a login TOTP challenge
// @Accept json
// @Param request body VerifyLoginRequest true "Verify login request"
// @Produce json
// @Success 200 {object} services.SessionResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/totp/verify-login [post]
func (h *AuthHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req VerifyLoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return
	}

	token := req.ChallengeToken
	if token == "" {
		token = auth.GetChallengeCookie(r)
	}

	resp, err := h.service.VerifyLogin(r.Context(), token, req.Code, h.requestMeta(r))
	if err != nil {
		// The challenge is gone after these; drop the cookie so the client restarts cleanly
		if errors.Is(err, models.ErrTooManyAttempts) || errors.Is(err, models.ErrState) {
			auth.ClearChallengeCookie(w, h.cookies)
		}
		writeServiceError(w, err, msgInvalidCode, true)
		return
	}

	auth.ClearChallengeCookie(w, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Profile returns the authenticated principal
// @Summary Current principal profile (requires completed two-factor)
// @Produce json
// @Success 200 {object} services.PrincipalResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Router /auth/profile [get]
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	resp, err := h.service.Profile(r.Context(), session.Claims.PrincipalID)
	if err != nil {
		writeServiceError(w, err, msgInvalidCredentials, false)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) requestMeta(r *http.Request) services.RequestMeta {
	return requestMeta(r, h.ipConfig)
}

func requestMeta(r *http.Request, ipConfig *pkghttp.IPConfig) services.RequestMeta {
	return services.RequestMeta{
		IPAddress: pkghttp.ExtractClientIP(r, ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}
