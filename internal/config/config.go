package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage, pending and notification backends
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendLog      = "log"
	BackendSES      = "ses"
)

type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	TOTP     TOTPConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Pending  PendingConfig
	Notify   NotifyConfig
	Cookies  CookieConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	SessionTokenExpiry time.Duration
	BcryptCost         int
}

type TOTPConfig struct {
	EncryptionKey   string // 64 hex characters, AES-256
	Issuer          string
	EnrollmentTTL   time.Duration
	ChallengeTTL    time.Duration
	DisableWindow   time.Duration
	MaxAttempts     int
	CleanupInterval time.Duration
}

type StorageConfig struct {
	Backend     string
	AutoMigrate bool
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	// ConnectTimeout bounds pool creation and the startup ping
	ConnectTimeout time.Duration
	// StatementTimeout is set on every connection so a stuck query cannot hold a login
	StatementTimeout time.Duration
}

type PendingConfig struct {
	Backend  string
	RedisURL string
}

type NotifyConfig struct {
	Backend    string
	AWSRegion  string
	EmailFrom  string
	MaxRetries int
	Timeout    time.Duration
}

type CookieConfig struct {
	Secure   bool
	SameSite string
	Domain   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnv("TRUSTED_PROXIES", ""),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", ""),
			SessionTokenExpiry: getEnvAsDuration("SESSION_TOKEN_EXPIRY", 24*time.Hour),
			BcryptCost:         getEnvAsInt("BCRYPT_COST", 12),
		},
		TOTP: TOTPConfig{
			EncryptionKey:   getEnv("TOTP_ENCRYPTION_KEY", ""),
			Issuer:          getEnv("TOTP_ISSUER", "PrimeGenesis"),
			EnrollmentTTL:   getEnvAsDuration("TOTP_ENROLLMENT_TTL", 10*time.Minute),
			ChallengeTTL:    getEnvAsDuration("TOTP_CHALLENGE_TTL", 5*time.Minute),
			DisableWindow:   getEnvAsDuration("TOTP_DISABLE_WINDOW", 15*time.Minute),
			MaxAttempts:     getEnvAsInt("TOTP_MAX_ATTEMPTS", 5),
			CleanupInterval: getEnvAsDuration("PENDING_CLEANUP_INTERVAL", 1*time.Minute),
		},
		Storage: StorageConfig{
			Backend:     getEnv("STORAGE_BACKEND", BackendPostgres),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "totpgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			ConnectTimeout:    getEnvAsDuration("DB_CONNECT_TIMEOUT", 5*time.Second),
			StatementTimeout:  getEnvAsDuration("DB_STATEMENT_TIMEOUT", 3*time.Second),
		},
		Pending: PendingConfig{
			Backend:  getEnv("PENDING_BACKEND", BackendMemory),
			RedisURL: getEnv("REDIS_URL", ""),
		},
		Notify: NotifyConfig{
			Backend:    getEnv("NOTIFY_BACKEND", BackendLog),
			AWSRegion:  getEnv("AWS_REGION", ""),
			EmailFrom:  getEnv("EMAIL_FROM", ""),
			MaxRetries: getEnvAsInt("NOTIFY_MAX_RETRIES", 3),
			Timeout:    getEnvAsDuration("NOTIFY_TIMEOUT", 30*time.Second),
		},
		Cookies: CookieConfig{
			Secure:   getEnvAsBool("COOKIE_SECURE", env == "production"),
			SameSite: strings.ToLower(getEnv("COOKIE_SAMESITE", "strict")),
			Domain:   getEnv("COOKIE_DOMAIN", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if err := validateJWTSecret(c.Auth.JWTSecret, c.Server.Env); err != nil {
		return err
	}

	if err := validateEncryptionKey(c.TOTP.EncryptionKey); err != nil {
		return err
	}

	if c.TOTP.EnrollmentTTL <= 0 || c.TOTP.ChallengeTTL <= 0 || c.TOTP.DisableWindow <= 0 {
		return errors.New("TOTP_ENROLLMENT_TTL, TOTP_CHALLENGE_TTL and TOTP_DISABLE_WINDOW must be positive")
	}
	if c.TOTP.MaxAttempts < 1 {
		return errors.New("TOTP_MAX_ATTEMPTS must be at least 1")
	}

	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Database.Password == "" {
			return errors.New("DB_PASSWORD is required when STORAGE_BACKEND=postgres")
		}
		if c.Database.MinConns > c.Database.MaxConns {
			return errors.New("DB_MIN_CONNS must not exceed DB_MAX_CONNS")
		}
		if c.Database.ConnectTimeout <= 0 || c.Database.StatementTimeout <= 0 {
			return errors.New("DB_CONNECT_TIMEOUT and DB_STATEMENT_TIMEOUT must be positive")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q (got %q)", BackendPostgres, BackendMemory, c.Storage.Backend)
	}

	switch c.Pending.Backend {
	case BackendRedis:
		if c.Pending.RedisURL == "" {
			return errors.New("REDIS_URL is required when PENDING_BACKEND=redis")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("PENDING_BACKEND must be %q or %q (got %q)", BackendMemory, BackendRedis, c.Pending.Backend)
	}

	switch c.Notify.Backend {
	case BackendSES:
		if c.Notify.AWSRegion == "" || c.Notify.EmailFrom == "" {
			return errors.New("AWS_REGION and EMAIL_FROM are required when NOTIFY_BACKEND=ses")
		}
	case BackendLog:
	default:
		return fmt.Errorf("NOTIFY_BACKEND must be %q or %q (got %q)", BackendLog, BackendSES, c.Notify.Backend)
	}

	switch c.Cookies.SameSite {
	case "strict", "lax":
	case "none":
		if !c.Cookies.Secure {
			return errors.New("COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
		}
	default:
		return fmt.Errorf("COOKIE_SAMESITE must be strict, lax or none (got %q)", c.Cookies.SameSite)
	}

	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// validateEncryptionKey checks the vault key shape; the key itself is never echoed
func validateEncryptionKey(key string) error {
	if key == "" {
		return errors.New("TOTP_ENCRYPTION_KEY is required")
	}
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("TOTP_ENCRYPTION_KEY must be 64 hex characters (got %d characters)", len(key))
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if originsStr := getEnv("ALLOWED_ORIGINS", ""); originsStr != "" {
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	if env == "production" {
		return []string{}
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
