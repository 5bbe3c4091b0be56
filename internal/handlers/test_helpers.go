package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/totpgate/internal/auth"
	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/BradenHooton/totpgate/internal/services"
	pkghttp "github.com/BradenHooton/totpgate/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext attaches an authenticated session for principalID to the request
func WithSessionContext(req *http.Request, principalID string, totpVerified bool) *http.Request {
	session := &auth.Session{
		Claims: &models.SessionClaims{
			PrincipalID:  principalID,
			TOTPVerified: totpVerified,
		},
		Principal: &models.Principal{ID: principalID},
	}
	return req.WithContext(auth.WithSession(req.Context(), session))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc    func(ctx context.Context, in services.RegisterInput, meta services.RequestMeta) (*services.RegisterResponse, error)
	LoginFunc       func(ctx context.Context, identifier, password string, meta services.RequestMeta) (*services.LoginResponse, error)
	VerifyLoginFunc func(ctx context.Context, challengeToken, code string, meta services.RequestMeta) (*services.SessionResponse, error)
	ProfileFunc     func(ctx context.Context, principalID string) (*services.PrincipalResponse, error)
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput, meta services.RequestMeta) (*services.RegisterResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in, meta)
}

func (m *MockAuthService) Login(ctx context.Context, identifier, password string, meta services.RequestMeta) (*services.LoginResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrAuthentication
	}
	return m.LoginFunc(ctx, identifier, password, meta)
}

func (m *MockAuthService) VerifyLogin(ctx context.Context, challengeToken, code string, meta services.RequestMeta) (*services.SessionResponse, error) {
	if m.VerifyLoginFunc == nil {
		return nil, models.ErrAuthentication
	}
	return m.VerifyLoginFunc(ctx, challengeToken, code, meta)
}

func (m *MockAuthService) Profile(ctx context.Context, principalID string) (*services.PrincipalResponse, error) {
	if m.ProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ProfileFunc(ctx, principalID)
}

// MockTOTPService implements TOTPServiceInterface for testing
type MockTOTPService struct {
	InitiateSetupFunc func(ctx context.Context, principalID string, meta services.RequestMeta) (*services.EnrollmentResponse, error)
	VerifySetupFunc   func(ctx context.Context, principalID, code string, meta services.RequestMeta) (*services.VerifySetupResponse, error)
	CancelSetupFunc   func(ctx context.Context, principalID string, meta services.RequestMeta) error
	DisableFunc       func(ctx context.Context, principalID, password, code string, meta services.RequestMeta) error
	StatusFunc        func(ctx context.Context, principalID string) (*models.TOTPStatus, error)
}

func (m *MockTOTPService) InitiateSetup(ctx context.Context, principalID string, meta services.RequestMeta) (*services.EnrollmentResponse, error) {
	if m.InitiateSetupFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.InitiateSetupFunc(ctx, principalID, meta)
}

func (m *MockTOTPService) VerifySetup(ctx context.Context, principalID, code string, meta services.RequestMeta) (*services.VerifySetupResponse, error) {
	if m.VerifySetupFunc == nil {
		return nil, models.ErrAuthentication
	}
	return m.VerifySetupFunc(ctx, principalID, code, meta)
}

func (m *MockTOTPService) CancelSetup(ctx context.Context, principalID string, meta services.RequestMeta) error {
	if m.CancelSetupFunc == nil {
		return nil
	}
	return m.CancelSetupFunc(ctx, principalID, meta)
}

func (m *MockTOTPService) Disable(ctx context.Context, principalID, password, code string, meta services.RequestMeta) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, principalID, password, code, meta)
}

func (m *MockTOTPService) Status(ctx context.Context, principalID string) (*models.TOTPStatus, error) {
	if m.StatusFunc == nil {
		return &models.TOTPStatus{}, nil
	}
	return m.StatusFunc(ctx, principalID)
}
