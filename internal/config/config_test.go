package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// setRequired sets the minimum environment for a memory-backed development config
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!!")
	t.Setenv("TOTP_ENCRYPTION_KEY", testKey)
	t.Setenv("STORAGE_BACKEND", "memory")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
		{"SessionTokenExpiry", cfg.Auth.SessionTokenExpiry, 24 * time.Hour},
		{"EnrollmentTTL", cfg.TOTP.EnrollmentTTL, 10 * time.Minute},
		{"ChallengeTTL", cfg.TOTP.ChallengeTTL, 5 * time.Minute},
		{"DisableWindow", cfg.TOTP.DisableWindow, 15 * time.Minute},
		{"ConnectTimeout", cfg.Database.ConnectTimeout, 5 * time.Second},
		{"StatementTimeout", cfg.Database.StatementTimeout, 3 * time.Second},
		{"CleanupInterval", cfg.TOTP.CleanupInterval, time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.actual, tt.name)
	}

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, "PrimeGenesis", cfg.TOTP.Issuer)
	assert.Equal(t, 5, cfg.TOTP.MaxAttempts)
	assert.Equal(t, BackendMemory, cfg.Pending.Backend)
	assert.Equal(t, BackendLog, cfg.Notify.Backend)
	assert.Equal(t, "strict", cfg.Cookies.SameSite)
	assert.False(t, cfg.Cookies.Secure, "cookies are not Secure-only outside production by default")
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("TOTP_ISSUER", "Acme")
	t.Setenv("TOTP_MAX_ATTEMPTS", "3")
	t.Setenv("TOTP_CHALLENGE_TTL", "2m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("COOKIE_SAMESITE", "None")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "Acme", cfg.TOTP.Issuer)
	assert.Equal(t, 3, cfg.TOTP.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.TOTP.ChallengeTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Cookies.Secure)
	assert.Equal(t, "none", cfg.Cookies.SameSite)
}

func TestLoad_Production(t *testing.T) {
	setRequired(t)
	t.Setenv("ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Cookies.Secure)
	assert.Empty(t, cfg.Server.AllowedOrigins)
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing jwt secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET is required"},
		{"short jwt secret", map[string]string{"JWT_SECRET": "short"}, "at least 16"},
		{"short jwt secret in production", map[string]string{"ENV": "production", "JWT_SECRET": "only-twenty-chars-xx"}, "at least 32"},
		{"missing key", map[string]string{"TOTP_ENCRYPTION_KEY": ""}, "TOTP_ENCRYPTION_KEY is required"},
		{"short key", map[string]string{"TOTP_ENCRYPTION_KEY": "abcd"}, "64 hex characters"},
		{"non-hex key", map[string]string{"TOTP_ENCRYPTION_KEY": strings.Repeat("zz", 32)}, "64 hex characters"},
		{"postgres without password", map[string]string{"STORAGE_BACKEND": "postgres"}, "DB_PASSWORD"},
		{"unknown storage", map[string]string{"STORAGE_BACKEND": "sqlite"}, "STORAGE_BACKEND"},
		{"redis without url", map[string]string{"PENDING_BACKEND": "redis"}, "REDIS_URL"},
		{"ses without sender", map[string]string{"NOTIFY_BACKEND": "ses", "AWS_REGION": "eu-west-1"}, "EMAIL_FROM"},
		{"samesite none without secure", map[string]string{"COOKIE_SAMESITE": "none"}, "COOKIE_SECURE"},
		{"zero attempts", map[string]string{"TOTP_MAX_ATTEMPTS": "0"}, "TOTP_MAX_ATTEMPTS"},
		{"min conns above max", map[string]string{"STORAGE_BACKEND": "postgres", "DB_PASSWORD": "pw", "DB_MIN_CONNS": "20", "DB_MAX_CONNS": "10"}, "DB_MIN_CONNS"},
		{"zero statement timeout", map[string]string{"STORAGE_BACKEND": "postgres", "DB_PASSWORD": "pw", "DB_STATEMENT_TIMEOUT": "0s"}, "DB_STATEMENT_TIMEOUT"},
		{"negative disable window", map[string]string{"TOTP_DISABLE_WINDOW": "-1m"}, "TOTP_DISABLE_WINDOW"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NotContains(t, err.Error(), testKey)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "totpgate", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=totpgate sslmode=disable", cfg.DSN())
}
