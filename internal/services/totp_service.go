package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/totpgate/internal/auth"
	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/BradenHooton/totpgate/internal/pending"
	pkgauth "github.com/BradenHooton/totpgate/pkg/auth"
	"github.com/BradenHooton/totpgate/pkg/clock"
	pkglogger "github.com/BradenHooton/totpgate/pkg/logger"
)

// NotificationDispatcher hands notifications off for background delivery
type NotificationDispatcher interface {
	Dispatch(n Notification)
}

// TOTPConfig holds two-factor flow configuration
type TOTPConfig struct {
	EnrollmentTTL time.Duration
	ChallengeTTL  time.Duration
	MaxAttempts   int
	// DisableWindow is how long failed disable confirmations are counted
	// before the counter starts over.
	DisableWindow time.Duration
}

// DefaultTOTPConfig returns the production defaults
func DefaultTOTPConfig() TOTPConfig {
	return TOTPConfig{
		EnrollmentTTL: 10 * time.Minute,
		ChallengeTTL:  5 * time.Minute,
		MaxAttempts:   5,
		DisableWindow: 15 * time.Minute,
	}
}

// EnrollmentResponse carries the one-time view of a new secret
type EnrollmentResponse struct {
	QRCode    string    `json:"qr_code"`
	Secret    string    `json:"secret"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifySetupResponse is returned once enrollment completes
type VerifySetupResponse struct {
	Success      bool   `json:"success"`
	SessionToken string `json:"session_token"`
}

// RequestMeta identifies the caller for audit records
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// TOTPService handles enrollment, verification of enrollment, cancel, disable and status
type TOTPService struct {
	principals  PrincipalRepository
	enrollments pending.Store[models.PendingEnrollment]
	// disableAttempts holds one counter per principal, valued with the window start
	disableAttempts pending.Store[time.Time]
	totpMgr         *auth.TOTPManager
	tm              *auth.TokenManager
	hasher          *pkgauth.PasswordHasher
	notifier        NotificationDispatcher
	delay           *auth.FailureDelay
	clock           clock.Clocker
	logger          *slog.Logger
	auditLogger     *pkglogger.AuditLogger
	config          TOTPConfig
}

// NewTOTPService creates a new TOTP service
func NewTOTPService(
	principals PrincipalRepository,
	enrollments pending.Store[models.PendingEnrollment],
	disableAttempts pending.Store[time.Time],
	totpMgr *auth.TOTPManager,
	tm *auth.TokenManager,
	hasher *pkgauth.PasswordHasher,
	notifier NotificationDispatcher,
	delay *auth.FailureDelay,
	clk clock.Clocker,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	config TOTPConfig,
) *TOTPService {
	return &TOTPService{
		principals:      principals,
		enrollments:     enrollments,
		disableAttempts: disableAttempts,
		totpMgr:         totpMgr,
		tm:              tm,
		hasher:          hasher,
		notifier:        notifier,
		delay:           delay,
		clock:           clk,
		logger:          logger,
		auditLogger:     auditLogger,
		config:          config,
	}
}

// InitiateSetup starts (or restarts) enrollment for a principal that has no TOTP yet
func (s *TOTPService) InitiateSetup(ctx context.Context, principalID string, meta RequestMeta) (*EnrollmentResponse, error) {
	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return nil, s.lookupError(err, principalID)
	}

	if p.TOTPEnabled {
		return nil, fmt.Errorf("%w: two-factor authentication is already enabled", models.ErrState)
	}

	enrollment, err := s.beginEnrollment(ctx, p)
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:   pkglogger.EventTOTPSetup,
		PrincipalID: p.ID,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Success:     true,
	})

	return enrollment, nil
}

// beginEnrollment generates a secret and stores it as the principal's pending
// enrollment, replacing any earlier one.
func (s *TOTPService) beginEnrollment(ctx context.Context, p *models.Principal) (*EnrollmentResponse, error) {
	enrollment, err := s.totpMgr.NewEnrollment(p.Identifier)
	if err != nil {
		s.logger.Error("failed to generate TOTP enrollment", slog.String("principal_id", p.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.config.EnrollmentTTL)

	record := models.PendingEnrollment{
		PrincipalID: p.ID,
		Secret:      enrollment.Secret,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}

	if err := s.enrollments.Put(ctx, p.ID, record, expiresAt); err != nil {
		s.logger.Error("failed to store pending enrollment", slog.String("principal_id", p.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("TOTP enrollment started",
		slog.String("principal_id", p.ID),
		slog.Time("expires_at", expiresAt))

	return &EnrollmentResponse{
		QRCode:    enrollment.QRCode,
		Secret:    enrollment.Secret,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifySetup checks a code against the pending secret and, on success, enables TOTP
func (s *TOTPService) VerifySetup(ctx context.Context, principalID, code string, meta RequestMeta) (*VerifySetupResponse, error) {
	start := time.Now()

	if !auth.IsWellFormedCode(code) {
		return nil, fmt.Errorf("%w: code must be exactly %d digits", models.ErrValidation, auth.Digits)
	}

	entry, err := s.enrollments.Get(ctx, principalID)
	if err != nil {
		return nil, s.pendingError(ctx, err, principalID, "enrollment")
	}

	attempts, err := s.enrollments.IncrementAttempts(ctx, principalID)
	if err != nil {
		return nil, s.pendingError(ctx, err, principalID, "enrollment")
	}
	if attempts > s.config.MaxAttempts {
		s.discardEnrollment(ctx, principalID)
		s.auditFailure(ctx, pkglogger.EventTOTPSetupVerify, principalID, meta, "too_many_attempts")
		return nil, models.ErrTooManyAttempts
	}

	valid, err := s.totpMgr.Validate(entry.Value.Secret, code)
	if err != nil {
		s.logger.Error("pending TOTP secret unusable", slog.String("principal_id", principalID), slog.Any("error", err))
		s.discardEnrollment(ctx, principalID)
		return nil, fmt.Errorf("validate pending secret: %w", err)
	}

	if !valid {
		s.logger.Info("invalid TOTP code during setup",
			slog.String("principal_id", principalID),
			slog.Int("attempts", attempts))
		s.auditFailure(ctx, pkglogger.EventTOTPSetupVerify, principalID, meta, "invalid_code")
		s.delay.Wait(ctx, start)
		return nil, models.ErrAuthentication
	}

	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return nil, s.lookupError(err, principalID)
	}

	if p.TOTPEnabled {
		s.discardEnrollment(ctx, principalID)
		return nil, fmt.Errorf("%w: two-factor authentication is already enabled", models.ErrState)
	}

	encrypted, err := s.totpMgr.EncryptSecret(entry.Value.Secret)
	if err != nil {
		s.logger.Error("failed to encrypt TOTP secret", slog.String("principal_id", principalID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	enabledAt := s.clock.Now()
	p.EnableTOTP(encrypted, enabledAt)

	p, err = s.principals.Put(ctx, p)
	if err != nil {
		s.logger.Error("failed to enable TOTP for principal", slog.String("principal_id", principalID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.discardEnrollment(ctx, principalID)

	token, err := s.tm.Issue(p, true)
	if err != nil {
		s.logger.Error("failed to issue session", slog.String("principal_id", principalID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("TOTP enabled", slog.String("principal_id", principalID))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:   pkglogger.EventTOTPSetupVerify,
		PrincipalID: principalID,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Success:     true,
	})
	s.notifier.Dispatch(newNotification(NotificationTOTPEnabled, p, enabledAt))

	return &VerifySetupResponse{Success: true, SessionToken: token}, nil
}

// CancelSetup discards any pending enrollment. Calling it with nothing pending is not an error.
func (s *TOTPService) CancelSetup(ctx context.Context, principalID string, meta RequestMeta) error {
	if err := s.enrollments.Delete(ctx, principalID); err != nil {
		s.logger.Error("failed to cancel enrollment", slog.String("principal_id", principalID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:   pkglogger.EventTOTPSetupCanceled,
		PrincipalID: principalID,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Success:     true,
	})

	return nil
}

// Disable turns TOTP off after re-confirming with the password or a current code.
// When both are given, both must be correct.
func (s *TOTPService) Disable(ctx context.Context, principalID, password, code string, meta RequestMeta) error {
	start := time.Now()

	if password == "" && code == "" {
		return fmt.Errorf("%w: password or code is required", models.ErrValidation)
	}
	if code != "" && !auth.IsWellFormedCode(code) {
		return fmt.Errorf("%w: code must be exactly %d digits", models.ErrValidation, auth.Digits)
	}

	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return s.lookupError(err, principalID)
	}

	if !p.TOTPEnabled || p.TOTPSecret == nil {
		return fmt.Errorf("%w: two-factor authentication is not enabled", models.ErrState)
	}

	allowed, err := s.reserveDisableAttempt(ctx, principalID)
	if err != nil {
		s.logger.Error("failed to record disable attempt", slog.String("principal_id", principalID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !allowed {
		s.auditFailure(ctx, pkglogger.EventTOTPDisable, principalID, meta, "too_many_attempts")
		return models.ErrTooManyAttempts
	}

	if password != "" {
		if err := s.hasher.Compare(p.PasswordHash, password); err != nil {
			s.auditFailure(ctx, pkglogger.EventTOTPDisable, principalID, meta, "invalid_password")
			s.delay.Wait(ctx, start)
			return models.ErrAuthentication
		}
	}

	if code != "" {
		valid, err := s.totpMgr.ValidateEncrypted(*p.TOTPSecret, code)
		if err != nil {
			s.logger.Error("stored TOTP secret unusable", slog.String("principal_id", principalID), slog.Any("error", err))
			return fmt.Errorf("validate stored secret: %w", err)
		}
		if !valid {
			s.auditFailure(ctx, pkglogger.EventTOTPDisable, principalID, meta, "invalid_code")
			s.delay.Wait(ctx, start)
			return models.ErrAuthentication
		}
	}

	p.DisableTOTP()
	if _, err := s.principals.Put(ctx, p); err != nil {
		s.logger.Error("failed to disable TOTP", slog.String("principal_id", principalID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.disableAttempts.Delete(ctx, principalID); err != nil {
		s.logger.Error("failed to reset disable attempts", slog.String("principal_id", principalID), slog.Any("error", err))
	}

	s.logger.Info("TOTP disabled", slog.String("principal_id", principalID))
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:   pkglogger.EventTOTPDisable,
		PrincipalID: principalID,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Success:     true,
	})
	s.notifier.Dispatch(newNotification(NotificationTOTPDisabled, p, s.clock.Now()))

	return nil
}

// Status reports whether TOTP is enabled and whether an enrollment is pending
func (s *TOTPService) Status(ctx context.Context, principalID string) (*models.TOTPStatus, error) {
	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return nil, s.lookupError(err, principalID)
	}

	status := &models.TOTPStatus{
		TOTPEnabled:   p.TOTPEnabled,
		TOTPEnabledAt: p.TOTPEnabledAt,
	}

	entry, err := s.enrollments.Get(ctx, principalID)
	switch {
	case err == nil:
		expiresAt := entry.ExpiresAt
		status.EnrollmentPending = true
		status.EnrollmentExpiresAt = &expiresAt
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrExpired):
	default:
		s.logger.Error("failed to read pending enrollment", slog.String("principal_id", principalID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return status, nil
}

// reserveDisableAttempt counts one confirmation against the principal's current
// window, opening a new window when none is live. It reports whether the
// attempt is within MaxAttempts.
func (s *TOTPService) reserveDisableAttempt(ctx context.Context, principalID string) (bool, error) {
	for range 2 {
		now := s.clock.Now()
		if _, err := s.disableAttempts.PutIfAbsent(ctx, principalID, now, now.Add(s.config.DisableWindow)); err != nil {
			return false, err
		}

		attempts, err := s.disableAttempts.IncrementAttempts(ctx, principalID)
		switch {
		case err == nil:
			return attempts <= s.config.MaxAttempts, nil
		case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrExpired):
			// window closed between the two calls
		default:
			return false, err
		}
	}
	return false, errors.New("disable attempt window expired while reserving")
}

func (s *TOTPService) discardEnrollment(ctx context.Context, principalID string) {
	if err := s.enrollments.Delete(ctx, principalID); err != nil {
		s.logger.Error("failed to delete pending enrollment", slog.String("principal_id", principalID), slog.Any("error", err))
	}
}

// pendingError maps a pending store read failure to the error returned to callers
func (s *TOTPService) pendingError(ctx context.Context, err error, principalID, what string) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("%w: no pending %s, start again", models.ErrState, what)
	case errors.Is(err, models.ErrExpired):
		s.discardEnrollment(ctx, principalID)
		return fmt.Errorf("%w: %w: start again", models.ErrState, models.ErrExpired)
	default:
		s.logger.Error("failed to read pending state", slog.String("principal_id", principalID), slog.Any("error", err))
		return models.ErrInternalServer
	}
}

func (s *TOTPService) lookupError(err error, principalID string) error {
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrNotFound
	}
	s.logger.Error("failed to fetch principal", slog.String("principal_id", principalID), slog.Any("error", err))
	return models.ErrInternalServer
}

func (s *TOTPService) auditFailure(ctx context.Context, event, principalID string, meta RequestMeta, reason string) {
	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType:     event,
		PrincipalID:   principalID,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		Success:       false,
		FailureReason: reason,
	})
}
