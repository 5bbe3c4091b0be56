package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/totpgate/internal/auth"
	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/BradenHooton/totpgate/internal/pending"
	pkgauth "github.com/BradenHooton/totpgate/pkg/auth"
	"github.com/BradenHooton/totpgate/pkg/clock"
	pkglogger "github.com/BradenHooton/totpgate/pkg/logger"
	"github.com/oklog/ulid/v2"
)

// PrincipalRepository defines the storage operations the auth flows need
type PrincipalRepository interface {
	GetByID(ctx context.Context, id string) (*models.Principal, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.Principal, error)
	Create(ctx context.Context, p *models.Principal) (*models.Principal, error)
	Put(ctx context.Context, p *models.Principal) (*models.Principal, error)
}

// ChallengeStores groups the login challenge records with the per-principal
// index that points at the active one.
type ChallengeStores struct {
	Challenges pending.Store[models.PendingLoginChallenge]
	Active     pending.Store[string]
}

// AuthService handles registration, password login and the login TOTP step
type AuthService struct {
	principals  PrincipalRepository
	challenges  ChallengeStores
	totp        *TOTPService
	totpMgr     *auth.TOTPManager
	tm          *auth.TokenManager
	hasher      *pkgauth.PasswordHasher
	delay       *auth.FailureDelay
	clock       clock.Clocker
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	config      TOTPConfig
}

// NewAuthService creates a new AuthService
func NewAuthService(
	principals PrincipalRepository,
	challenges ChallengeStores,
	totpService *TOTPService,
	totpMgr *auth.TOTPManager,
	tm *auth.TokenManager,
	hasher *pkgauth.PasswordHasher,
	delay *auth.FailureDelay,
	clk clock.Clocker,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	config TOTPConfig,
) *AuthService {
	return &AuthService{
		principals:  principals,
		challenges:  challenges,
		totp:        totpService,
		totpMgr:     totpMgr,
		tm:          tm,
		hasher:      hasher,
		delay:       delay,
		clock:       clk,
		logger:      logger,
		auditLogger: auditLogger,
		config:      config,
	}
}

// RegisterInput is the data accepted at registration
type RegisterInput struct {
	Identifier  string
	Password    string
	Type        string
	Email       string
	FirstName   string
	LastName    string
	Address     string
	FiscalCode  string
	PhoneNumber string
	CompanyName string
	VATNumber   string
}

// PrincipalResponse represents a principal in the HTTP response
type PrincipalResponse struct {
	ID            string     `json:"id"`
	Identifier    string     `json:"identifier"`
	Type          string     `json:"user_type"`
	Email         string     `json:"email,omitempty"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	Address       string     `json:"address,omitempty"`
	FiscalCode    string     `json:"fiscal_code,omitempty"`
	PhoneNumber   string     `json:"phone_number,omitempty"`
	CompanyName   string     `json:"company_name,omitempty"`
	VATNumber     string     `json:"vat_number,omitempty"`
	TOTPEnabled   bool       `json:"totp_enabled"`
	TOTPEnabledAt *time.Time `json:"totp_enabled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// RegisterResponse is returned by Register
type RegisterResponse struct {
	Principal    *PrincipalResponse  `json:"principal"`
	SessionToken string              `json:"session_token"`
	Enrollment   *EnrollmentResponse `json:"enrollment"`
}

// LoginResponse is either a finished login or a TOTP challenge
type LoginResponse struct {
	RequiresTOTP   bool               `json:"requires_totp"`
	SessionToken   string             `json:"session_token,omitempty"`
	Principal      *PrincipalResponse `json:"principal,omitempty"`
	ChallengeToken string             `json:"challenge_token,omitempty"`
	ExpiresAt      *time.Time         `json:"expires_at,omitempty"`
}

// SessionResponse is returned when a login completes
type SessionResponse struct {
	SessionToken string             `json:"session_token"`
	Principal    *PrincipalResponse `json:"principal"`
}

// Register creates a principal and starts its TOTP enrollment in the same step.
// The returned session is not TOTP-verified.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (*RegisterResponse, error) {
	in = normalizeRegistration(in)

	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	if _, err := s.principals.FindByIdentifier(ctx, in.Identifier); err == nil {
		s.logger.Info("registration failed: identifier taken")
		s.auditLogger.Log(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventRegister,
			Identifier:    in.Identifier,
			IPAddress:     meta.IPAddress,
			UserAgent:     meta.UserAgent,
			FailureReason: "conflict",
		})
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check identifier", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashedPassword, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	created, err := s.principals.Create(ctx, &models.Principal{
		Identifier:   in.Identifier,
		PasswordHash: hashedPassword,
		Type:         in.Type,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Address:      in.Address,
		FiscalCode:   in.FiscalCode,
		PhoneNumber:  in.PhoneNumber,
		CompanyName:  in.CompanyName,
		VATNumber:    in.VATNumber,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create principal", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	enrollment, err := s.totp.beginEnrollment(ctx, created)
	if err != nil {
		return nil, err
	}

	token, err := s.tm.Issue(created, false)
	if err != nil {
		s.logger.Error("failed to issue session", slog.String("principal_id", created.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("principal registered", slog.String("principal_id", created.ID), slog.String("type", created.Type))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:   pkglogger.EventRegister,
		PrincipalID: created.ID,
		Identifier:  created.Identifier,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Success:     true,
	})

	return &RegisterResponse{
		Principal:    principalToResponse(created),
		SessionToken: token,
		Enrollment:   enrollment,
	}, nil
}

// Login checks the password. Principals without TOTP get a verified session;
// the rest get a challenge that must be answered through VerifyLogin.
func (s *AuthService) Login(ctx context.Context, identifier, password string, meta RequestMeta) (*LoginResponse, error) {
	start := time.Now()
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	if identifier == "" || password == "" {
		return nil, fmt.Errorf("%w: identifier and password are required", models.ErrValidation)
	}

	p, err := s.principals.FindByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to find principal", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.hasher.CompareDummy(password)
		s.loginFailed(ctx, "", identifier, meta, "invalid_credentials")
		s.delay.Wait(ctx, start)
		return nil, models.ErrAuthentication
	}

	if err := s.hasher.Compare(p.PasswordHash, password); err != nil {
		s.loginFailed(ctx, p.ID, identifier, meta, "invalid_credentials")
		s.delay.Wait(ctx, start)
		return nil, models.ErrAuthentication
	}

	if !p.TOTPEnabled {
		token, err := s.tm.Issue(p, true)
		if err != nil {
			s.logger.Error("failed to issue session", slog.String("principal_id", p.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		s.logger.Info("principal logged in", slog.String("principal_id", p.ID))
		s.auditLogger.Log(ctx, pkglogger.AuditEvent{
			EventType:   pkglogger.EventLogin,
			PrincipalID: p.ID,
			Identifier:  identifier,
			IPAddress:   meta.IPAddress,
			UserAgent:   meta.UserAgent,
			Success:     true,
		})

		return &LoginResponse{
			RequiresTOTP: false,
			SessionToken: token,
			Principal:    principalToResponse(p),
		}, nil
	}

	challenge, err := s.newChallenge(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:   pkglogger.EventLoginChallenge,
		PrincipalID: p.ID,
		Identifier:  identifier,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Success:     true,
	})

	return &LoginResponse{
		RequiresTOTP:   true,
		ChallengeToken: challenge.Token,
		ExpiresAt:      &challenge.ExpiresAt,
	}, nil
}

// newChallenge replaces the principal's active login challenge with a fresh one
func (s *AuthService) newChallenge(ctx context.Context, principalID string) (*models.PendingLoginChallenge, error) {
	if previous, err := s.challenges.Active.Get(ctx, principalID); err == nil {
		if err := s.challenges.Challenges.Delete(ctx, previous.Value); err != nil {
			s.logger.Error("failed to delete previous challenge", slog.String("principal_id", principalID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	} else if !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrExpired) {
		s.logger.Error("failed to read active challenge", slog.String("principal_id", principalID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.clock.Now()
	challenge := &models.PendingLoginChallenge{
		Token:       ulid.Make().String(),
		PrincipalID: principalID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.config.ChallengeTTL),
	}

	if err := s.challenges.Challenges.Put(ctx, challenge.Token, *challenge, challenge.ExpiresAt); err != nil {
		s.logger.Error("failed to store login challenge", slog.String("principal_id", principalID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if err := s.challenges.Active.Put(ctx, principalID, challenge.Token, challenge.ExpiresAt); err != nil {
		s.logger.Error("failed to index login challenge", slog.String("principal_id", principalID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return challenge, nil
}

// VerifyLogin answers a login challenge with a TOTP code
func (s *AuthService) VerifyLogin(ctx context.Context, challengeToken, code string, meta RequestMeta) (*SessionResponse, error) {
	start := time.Now()

	if !auth.IsWellFormedCode(code) {
		return nil, fmt.Errorf("%w: code must be exactly %d digits", models.ErrValidation, auth.Digits)
	}

	challengeToken = strings.TrimSpace(challengeToken)
	if challengeToken == "" {
		return nil, fmt.Errorf("%w: no login challenge, sign in again", models.ErrState)
	}

	entry, err := s.challenges.Challenges.Get(ctx, challengeToken)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return nil, fmt.Errorf("%w: no login challenge, sign in again", models.ErrState)
		case errors.Is(err, models.ErrExpired):
			_ = s.challenges.Challenges.Delete(ctx, challengeToken)
			return nil, fmt.Errorf("%w: %w: sign in again", models.ErrState, models.ErrExpired)
		default:
			s.logger.Error("failed to read login challenge", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	principalID := entry.Value.PrincipalID

	// The attempt is counted before the code is compared so concurrent guesses
	// cannot all read the same count.
	attempts, err := s.challenges.Challenges.IncrementAttempts(ctx, challengeToken)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrExpired) {
			return nil, fmt.Errorf("%w: no login challenge, sign in again", models.ErrState)
		}
		s.logger.Error("failed to record challenge attempt", slog.String("principal_id", principalID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if attempts > s.config.MaxAttempts {
		s.destroyChallenge(ctx, challengeToken, principalID)
		s.loginFailed(ctx, principalID, "", meta, "too_many_attempts")
		return nil, models.ErrTooManyAttempts
	}

	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to fetch principal", slog.String("principal_id", principalID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if err != nil || !p.TOTPEnabled || p.TOTPSecret == nil {
		s.destroyChallenge(ctx, challengeToken, principalID)
		s.loginFailed(ctx, principalID, "", meta, "totp_not_enabled")
		s.delay.Wait(ctx, start)
		return nil, models.ErrAuthentication
	}

	valid, err := s.totpMgr.ValidateEncrypted(*p.TOTPSecret, code)
	if err != nil {
		s.logger.Error("stored TOTP secret unusable", slog.String("principal_id", principalID), slog.Any("error", err))
		return nil, fmt.Errorf("validate stored secret: %w", err)
	}

	if !valid {
		s.logger.Info("invalid TOTP code during login",
			slog.String("principal_id", principalID),
			slog.Int("attempts", attempts))
		s.loginFailed(ctx, principalID, "", meta, "invalid_code")
		s.delay.Wait(ctx, start)
		return nil, models.ErrAuthentication
	}

	s.destroyChallenge(ctx, challengeToken, principalID)

	token, err := s.tm.Issue(p, true)
	if err != nil {
		s.logger.Error("failed to issue session", slog.String("principal_id", principalID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("principal logged in with TOTP", slog.String("principal_id", principalID))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:   pkglogger.EventLoginTOTP,
		PrincipalID: principalID,
		Identifier:  p.Identifier,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Success:     true,
	})

	return &SessionResponse{
		SessionToken: token,
		Principal:    principalToResponse(p),
	}, nil
}

// Profile returns the principal's public fields
func (s *AuthService) Profile(ctx context.Context, principalID string) (*PrincipalResponse, error) {
	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to fetch principal", slog.String("principal_id", principalID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return principalToResponse(p), nil
}

// destroyChallenge removes a challenge and, if it is still the active one, its index entry
func (s *AuthService) destroyChallenge(ctx context.Context, token, principalID string) {
	if err := s.challenges.Challenges.Delete(ctx, token); err != nil {
		s.logger.Error("failed to delete login challenge", slog.String("principal_id", principalID), slog.Any("error", err))
	}

	active, err := s.challenges.Active.Get(ctx, principalID)
	if err != nil || active.Value != token {
		return
	}
	if err := s.challenges.Active.Delete(ctx, principalID); err != nil {
		s.logger.Error("failed to delete challenge index", slog.String("principal_id", principalID), slog.Any("error", err))
	}
}

func (s *AuthService) loginFailed(ctx context.Context, principalID, identifier string, meta RequestMeta, reason string) {
	eventType := pkglogger.EventLogin
	if identifier == "" {
		eventType = pkglogger.EventLoginTOTP
	}
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:     eventType,
		PrincipalID:   principalID,
		Identifier:    identifier,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		Success:       false,
		FailureReason: reason,
	})
}

func normalizeRegistration(in RegisterInput) RegisterInput {
	in.Identifier = strings.ToLower(strings.TrimSpace(in.Identifier))
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Address = strings.TrimSpace(in.Address)
	in.FiscalCode = strings.ToUpper(strings.TrimSpace(in.FiscalCode))
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.VATNumber = strings.ToUpper(strings.TrimSpace(in.VATNumber))
	return in
}

// validateRegistration applies the rules that depend on the principal type
func validateRegistration(in RegisterInput) error {
	if in.Identifier == "" {
		return fmt.Errorf("%w: identifier is required", models.ErrValidation)
	}

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return fmt.Errorf("%w: %w", models.ErrValidation, err)
	}

	switch in.Type {
	case models.PrincipalTypeIndividual:
		if in.FirstName == "" || in.LastName == "" {
			return fmt.Errorf("%w: first and last name are required for individual accounts", models.ErrValidation)
		}
	case models.PrincipalTypeBusiness:
		if in.CompanyName == "" || in.VATNumber == "" {
			return fmt.Errorf("%w: company name and VAT number are required for business accounts", models.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: user_type must be individual or business", models.ErrValidation)
	}

	return nil
}

// principalToResponse converts a principal model to its response DTO
func principalToResponse(p *models.Principal) *PrincipalResponse {
	return &PrincipalResponse{
		ID:            p.ID,
		Identifier:    p.Identifier,
		Type:          p.Type,
		Email:         p.Email,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Address:       p.Address,
		FiscalCode:    p.FiscalCode,
		PhoneNumber:   p.PhoneNumber,
		CompanyName:   p.CompanyName,
		VATNumber:     p.VATNumber,
		TOTPEnabled:   p.TOTPEnabled,
		TOTPEnabledAt: p.TOTPEnabledAt,
		CreatedAt:     p.CreatedAt,
	}
}
