//go:build integration

package integration

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/totpgate/internal/auth"
	"github.com/BradenHooton/totpgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/totpgate/internal/middleware"
	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/BradenHooton/totpgate/internal/pending"
	"github.com/BradenHooton/totpgate/internal/repositories"
	"github.com/BradenHooton/totpgate/internal/routes"
	"github.com/BradenHooton/totpgate/internal/services"
	pkgauth "github.com/BradenHooton/totpgate/pkg/auth"
	"github.com/BradenHooton/totpgate/pkg/clock"
	pkghttp "github.com/BradenHooton/totpgate/pkg/http"
	pkglogger "github.com/BradenHooton/totpgate/pkg/logger"
)

// TestServer wraps httptest.Server over Postgres principals and Redis pending state
type TestServer struct {
	Server     *httptest.Server
	Client     *http.Client
	Principals *repositories.PrincipalRepository
	Notifier   *services.RecordingDispatcher
}

// NewTestServer wires the full router the way cmd/api does, minus the network listeners
func NewTestServer(db *TestDB, rdb *redis.Client, logger *slog.Logger) (*TestServer, error) {
	key := make([]byte, auth.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	vault, err := auth.NewVault(key)
	if err != nil {
		return nil, err
	}

	hasher, err := pkgauth.NewPasswordHasher(bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	clk := clock.New()
	principals := repositories.NewPrincipalRepository(db.DB)
	tokenManager := auth.NewTokenManager("test-secret-32-characters-long-for-testing", time.Hour, "totpgate", clk)
	totpManager := auth.NewTOTPManager(vault, "PrimeGenesis", clk)
	auditLogger := pkglogger.NewAuditLogger(logger)
	notifier := &services.RecordingDispatcher{}
	cfg := services.DefaultTOTPConfig()

	enrollments := pending.NewRedisStore[models.PendingEnrollment](rdb, "it:enrollment:", time.Minute, clk)
	challenges := services.ChallengeStores{
		Challenges: pending.NewRedisStore[models.PendingLoginChallenge](rdb, "it:challenge:", time.Minute, clk),
		Active:     pending.NewRedisStore[string](rdb, "it:challenge-active:", time.Minute, clk),
	}

	disableAttempts := pending.NewRedisStore[time.Time](rdb, "it:disable-attempts:", time.Minute, clk)
	totpService := services.NewTOTPService(principals, enrollments, disableAttempts, totpManager, tokenManager, hasher,
		notifier, nil, clk, logger, auditLogger, cfg)
	authService := services.NewAuthService(principals, challenges, totpService, totpManager, tokenManager, hasher,
		nil, clk, logger, auditLogger, cfg)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	router.Use(middlewareCustom.SecureLogger(logger, nil))

	routes.RegisterRoutes(router,
		handlers.NewAuthHandler(authService, nil, auth.CookieConfig{SameSite: "strict"}),
		handlers.NewTOTPHandler(totpService, nil),
		handlers.NewHealthHandler(map[string]handlers.HealthCheck{"database": db.DB.HealthCheck}),
		tokenManager,
		principals,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: 1000},
		logger,
	)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &TestServer{
		Server:     httptest.NewServer(router),
		Client:     &http.Client{Jar: jar},
		Principals: principals,
		Notifier:   notifier,
	}, nil
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server. Cookies persist across calls.
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return ts.Client.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with a session token
func (ts *TestServer) RequestWithAuth(method, path, sessionToken string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + sessionToken,
	})
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorCode extracts the machine-readable code from an error response
func GetErrorCode(resp *http.Response) (string, error) {
	var errResp pkghttp.ErrorResponse
	if err := ParseJSONResponse(resp, &errResp); err != nil {
		return "", fmt.Errorf("failed to parse error response: %w", err)
	}
	return errResp.Error, nil
}
