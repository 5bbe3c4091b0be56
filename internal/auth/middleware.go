package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/totpgate/internal/models"
	pkghttp "github.com/BradenHooton/totpgate/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing the authenticated session in context
	SessionContextKey contextKey = "session"
)

// PrincipalGetter loads the current principal record
type PrincipalGetter interface {
	GetByID(ctx context.Context, id string) (*models.Principal, error)
}

// Session is the authenticated caller attached to a request
type Session struct {
	Claims    *models.SessionClaims
	Principal *models.Principal
}

// TOTPSatisfied reports whether this session may access endpoints that require
// completed two-factor. The principal's live TOTP state wins over the token:
// a credential issued before the current enrollment must verify again, which
// also covers a disable and re-enable after the token was issued.
func (s *Session) TOTPSatisfied() bool {
	if !s.Principal.TOTPEnabled {
		return s.Claims.TOTPVerified
	}
	if !s.Claims.TOTPVerified || !s.Claims.TOTPEnrolled {
		return false
	}
	return issuedSince(s.Claims, s.Principal.TOTPEnabledAt)
}

// issuedSince compares at whole seconds because that is what iat carries.
func issuedSince(claims *models.SessionClaims, enabledAt *time.Time) bool {
	if enabledAt == nil || claims.IssuedAt == nil {
		return false
	}
	return !claims.IssuedAt.Time.Before(enabledAt.Truncate(time.Second))
}

// Authenticate validates the bearer credential and loads the principal it names
func Authenticate(tm *TokenManager, principals PrincipalGetter, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired session")
				return
			}

			principal, err := principals.GetByID(r.Context(), claims.PrincipalID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "Invalid or expired session")
					return
				}
				logger.Error("failed to load principal for session", slog.Any("error", err))
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}

			ctx := WithSession(r.Context(), &Session{Claims: claims, Principal: principal})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTOTPVerified rejects sessions that have not completed two-factor.
// Must be used after Authenticate.
func RequireTOTPVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := GetSessionFromContext(r)
		if session == nil {
			pkghttp.WriteUnauthorized(w, "Unauthorized")
			return
		}

		if !session.TOTPSatisfied() {
			pkghttp.WriteTOTPRequired(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GetSessionFromContext extracts the session from request context
func GetSessionFromContext(r *http.Request) *Session {
	session, ok := r.Context().Value(SessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return session
}

// WithSession attaches a session to ctx
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, s)
}
