package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/BradenHooton/totpgate/pkg/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type principalGetterFunc func(ctx context.Context, id string) (*models.Principal, error)

func (f principalGetterFunc) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	return f(ctx, id)
}

func staticPrincipal(p *models.Principal) PrincipalGetter {
	return principalGetterFunc(func(ctx context.Context, id string) (*models.Principal, error) {
		if id != p.ID {
			return nil, models.ErrNotFound
		}
		copied := *p
		return &copied, nil
	})
}

func protectedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := GetSessionFromContext(r)
		if session == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = io.WriteString(w, session.Principal.Identifier)
	})
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	tm := newTestTokenManager(clock.New())
	p := &models.Principal{ID: "p1", Identifier: "alice"}
	logger := slog.New(slog.DiscardHandler)
	h := Authenticate(tm, staticPrincipal(p), logger)(protectedHandler())

	token, err := tm.Issue(p, true)
	require.NoError(t, err)

	w := serve(h, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "garbage").Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic "+token)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticate_PrincipalGone(t *testing.T) {
	tm := newTestTokenManager(clock.New())
	logger := slog.New(slog.DiscardHandler)
	h := Authenticate(tm, staticPrincipal(&models.Principal{ID: "other"}), logger)(protectedHandler())

	token, err := tm.Issue(&models.Principal{ID: "deleted"}, true)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, serve(h, token).Code)
}

func TestAuthenticate_StorageError(t *testing.T) {
	tm := newTestTokenManager(clock.New())
	logger := slog.New(slog.DiscardHandler)
	failing := principalGetterFunc(func(ctx context.Context, id string) (*models.Principal, error) {
		return nil, errors.New("connection reset")
	})
	h := Authenticate(tm, failing, logger)(protectedHandler())

	token, err := tm.Issue(&models.Principal{ID: "p1"}, true)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, serve(h, token).Code)
}

func TestRequireTOTPVerified(t *testing.T) {
	tm := newTestTokenManager(clock.New())
	logger := slog.New(slog.DiscardHandler)

	tests := []struct {
		name         string
		enabledNow   bool
		enabledAtJWT bool
		verified     bool
		wantStatus   int
	}{
		{"no totp, verified session", false, false, true, http.StatusOK},
		{"no totp, unverified registration session", false, false, false, http.StatusForbidden},
		{"totp, verified after enrollment", true, true, true, http.StatusOK},
		{"totp, challenge not answered", true, true, false, http.StatusForbidden},
		{"totp enabled after token was issued", true, false, true, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuedFor := &models.Principal{ID: "p1", Identifier: "alice", TOTPEnabled: tt.enabledAtJWT}
			current := &models.Principal{ID: "p1", Identifier: "alice"}
			if tt.enabledNow {
				current.EnableTOTP("ciphertext", time.Now().Add(-time.Hour))
			}

			token, err := tm.Issue(issuedFor, tt.verified)
			require.NoError(t, err)

			h := Authenticate(tm, staticPrincipal(current), logger)(RequireTOTPVerified(protectedHandler()))
			w := serve(h, token)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusForbidden {
				assert.Contains(t, w.Body.String(), `"totp_required"`)
				assert.Contains(t, w.Body.String(), `"requires_totp":true`)
			}
		})
	}
}

func TestRequireTOTPVerified_ReEnrolledAfterIssue(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	tm := newTestTokenManager(clk)
	logger := slog.New(slog.DiscardHandler)

	p := &models.Principal{ID: "p1", Identifier: "alice"}
	p.EnableTOTP("first-ciphertext", start.Add(-time.Minute))

	token, err := tm.Issue(p, true)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	p.DisableTOTP()
	clk.Advance(time.Hour)
	p.EnableTOTP("second-ciphertext", clk.Now())

	h := Authenticate(tm, staticPrincipal(p), logger)(RequireTOTPVerified(protectedHandler()))
	assert.Equal(t, http.StatusForbidden, serve(h, token).Code, "token predates the current enrollment")

	fresh, err := tm.Issue(p, true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve(h, fresh).Code)
}

func TestSession_TOTPSatisfied_SameSecondAsEnrollment(t *testing.T) {
	enabledAt := time.Date(2026, 1, 1, 12, 0, 0, 700_000_000, time.UTC)
	p := &models.Principal{ID: "p1"}
	p.EnableTOTP("ciphertext", enabledAt)

	claims := &models.SessionClaims{TOTPVerified: true, TOTPEnrolled: true}
	claims.IssuedAt = jwt.NewNumericDate(enabledAt.Add(100 * time.Millisecond))

	assert.True(t, (&Session{Claims: claims, Principal: p}).TOTPSatisfied(), "iat is truncated to the second")

	claims.IssuedAt = jwt.NewNumericDate(enabledAt.Add(-time.Second))
	assert.False(t, (&Session{Claims: claims, Principal: p}).TOTPSatisfied())
}

func TestRequireTOTPVerified_NoSession(t *testing.T) {
	w := serve(RequireTOTPVerified(protectedHandler()), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
