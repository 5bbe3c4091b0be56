//go:build integration

package integration

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/totpgate/internal/handlers"
	"github.com/BradenHooton/totpgate/internal/services"
)

func newServer(t *testing.T) *TestServer {
	t.Helper()
	resetState(t)

	ts, err := NewTestServer(testDB, testRedis.Client, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(ts.Close)
	return ts
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// Register, enroll, log out, log back in through the challenge cookie
func TestHTTP_FullTwoFactorFlow(t *testing.T) {
	ts := newServer(t)
	identifier, password := TestPrincipal("flow")

	resp, err := ts.Request("POST", "/auth/register", handlers.RegisterRequest{
		Identifier: identifier,
		Password:   password,
		UserType:   "individual",
		FirstName:  "Integration",
		LastName:   "Test",
		Email:      "it@example.com",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var reg services.RegisterResponse
	require.NoError(t, ParseJSONResponse(resp, &reg))
	require.NotNil(t, reg.Enrollment)

	resp, err = ts.RequestWithAuth("POST", "/auth/totp/verify-setup", reg.SessionToken,
		handlers.VerifySetupRequest{Code: currentCode(t, reg.Enrollment.Secret)})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stored, err := ts.Principals.GetByID(context.Background(), reg.Principal.ID)
	require.NoError(t, err)
	assert.True(t, stored.TOTPEnabled)
	require.NotNil(t, stored.TOTPSecret)
	assert.NotContains(t, *stored.TOTPSecret, reg.Enrollment.Secret)

	sent := ts.Notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, services.NotificationTOTPEnabled, sent[0].Kind)

	resp, err = ts.Request("POST", "/auth/login", handlers.LoginRequest{Identifier: identifier, Password: password}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login services.LoginResponse
	require.NoError(t, ParseJSONResponse(resp, &login))
	assert.True(t, login.RequiresTOTP)

	// The challenge token travels in the cookie jar only
	resp, err = ts.Request("POST", "/auth/totp/verify-login",
		handlers.VerifyLoginRequest{Code: currentCode(t, reg.Enrollment.Secret)}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session services.SessionResponse
	require.NoError(t, ParseJSONResponse(resp, &session))

	resp, err = ts.RequestWithAuth("GET", "/auth/profile", session.SessionToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var profile services.PrincipalResponse
	require.NoError(t, ParseJSONResponse(resp, &profile))
	assert.Equal(t, identifier, profile.Identifier)
	assert.True(t, profile.TOTPEnabled)
}

func TestHTTP_VerifyLoginErrors(t *testing.T) {
	ts := newServer(t)
	identifier, password := TestPrincipal("errors")

	resp, err := ts.Request("POST", "/auth/register", handlers.RegisterRequest{
		Identifier: identifier,
		Password:   password,
		UserType:   "individual",
		FirstName:  "Integration",
		LastName:   "Test",
	}, nil)
	require.NoError(t, err)
	var reg services.RegisterResponse
	require.NoError(t, ParseJSONResponse(resp, &reg))

	resp, err = ts.RequestWithAuth("POST", "/auth/totp/verify-setup", reg.SessionToken,
		handlers.VerifySetupRequest{Code: currentCode(t, reg.Enrollment.Secret)})
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = ts.Request("POST", "/auth/login", handlers.LoginRequest{Identifier: identifier, Password: password}, nil)
	require.NoError(t, err)
	resp.Body.Close()

	// Malformed
	resp, err = ts.Request("POST", "/auth/totp/verify-login", handlers.VerifyLoginRequest{Code: "12345"}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	code, err := GetErrorCode(resp)
	require.NoError(t, err)
	assert.Equal(t, "validation_error", code)

	// Unknown challenge
	resp, err = ts.Request("POST", "/auth/totp/verify-login",
		handlers.VerifyLoginRequest{ChallengeToken: "01HZZZZZZZZZZZZZZZZZZZZZZZ", Code: "123456"}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	code, err = GetErrorCode(resp)
	require.NoError(t, err)
	assert.Equal(t, "state_error", code)
}

func TestHTTP_WrongPasswordIsGeneric(t *testing.T) {
	ts := newServer(t)
	identifier, password := TestPrincipal("generic")

	_, err := SeedPrincipal(context.Background(), ts.Principals, identifier, password)
	require.NoError(t, err)

	var messages []string
	for _, creds := range []handlers.LoginRequest{
		{Identifier: identifier, Password: "wrong-password"},
		{Identifier: "nobody-" + identifier, Password: password},
	} {
		resp, err := ts.Request("POST", "/auth/login", creds, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var body struct {
			Message string `json:"message"`
		}
		require.NoError(t, ParseJSONResponse(resp, &body))
		messages = append(messages, body.Message)
	}
	assert.Equal(t, messages[0], messages[1])
}

func TestHTTP_Health(t *testing.T) {
	ts := newServer(t)

	resp, err := ts.Request("GET", "/health", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health handlers.HealthResponse
	require.NoError(t, ParseJSONResponse(resp, &health))
	assert.Equal(t, "up", health.Checks["database"])
}
