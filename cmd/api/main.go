package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/totpgate/internal/auth"
	"github.com/BradenHooton/totpgate/internal/background"
	"github.com/BradenHooton/totpgate/internal/config"
	"github.com/BradenHooton/totpgate/internal/database"
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
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// Redis entries outlive their logical expiry by this much so Get can report ErrExpired
const pendingGrace = time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("pending", cfg.Pending.Backend),
		slog.String("notify", cfg.Notify.Backend),
	)

	// A process that cannot generate secrets or decrypt stored ones must not start
	if err := auth.CheckEntropy(rand.Reader); err != nil {
		logger.Error("random source check failed", slog.Any("error", err))
		os.Exit(1)
	}

	key, err := auth.ParseVaultKey(cfg.TOTP.EncryptionKey)
	if err != nil {
		logger.Error("invalid TOTP encryption key", slog.Any("error", err))
		os.Exit(1)
	}
	vault, err := auth.NewVault(key)
	if err != nil {
		logger.Error("failed to initialize secret vault", slog.Any("error", err))
		os.Exit(1)
	}

	clk := clock.New()
	healthChecks := map[string]handlers.HealthCheck{}

	// Principal storage
	var principals services.PrincipalRepository
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		if cfg.Storage.AutoMigrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := db.Migrate(ctx)
			cancel()
			if err != nil {
				logger.Error("failed to run migrations", slog.Any("error", err))
				os.Exit(1)
			}
		}

		principals = repositories.NewPrincipalRepository(db)
		healthChecks["database"] = db.HealthCheck
	default:
		logger.Warn("using in-memory principal storage; data is lost on restart")
		principals = repositories.NewMemoryPrincipalRepository()
	}

	// Pending enrollment and login challenge storage
	stores, err := openPendingStores(cfg, clk, healthChecks)
	if err != nil {
		logger.Error("failed to initialize pending store", slog.Any("error", err))
		os.Exit(1)
	}

	// Notifications
	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize notifier", slog.Any("error", err))
		os.Exit(1)
	}
	asyncNotifier := services.NewAsyncNotifier(notifier, uint64(cfg.Notify.MaxRetries), cfg.Notify.Timeout, logger)

	// Security primitives
	hasher, err := pkgauth.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		logger.Error("failed to initialize password hasher", slog.Any("error", err))
		os.Exit(1)
	}
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenExpiry, "totpgate", clk)
	totpManager := auth.NewTOTPManager(vault, cfg.TOTP.Issuer, clk)
	failureDelay := auth.NewFailureDelay(250*time.Millisecond, 100*time.Millisecond)
	auditLogger := pkglogger.NewAuditLogger(logger)

	totpConfig := services.TOTPConfig{
		EnrollmentTTL: cfg.TOTP.EnrollmentTTL,
		ChallengeTTL:  cfg.TOTP.ChallengeTTL,
		MaxAttempts:   cfg.TOTP.MaxAttempts,
		DisableWindow: cfg.TOTP.DisableWindow,
	}

	// Initialize services
	totpService := services.NewTOTPService(principals, stores.enrollments, stores.disableAttempts, totpManager, tokenManager, hasher,
		asyncNotifier, failureDelay, clk, logger, auditLogger, totpConfig)
	authService := services.NewAuthService(principals, stores.challenges, totpService, totpManager, tokenManager, hasher,
		failureDelay, clk, logger, auditLogger, totpConfig)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: pkghttp.ParseTrustedProxies(cfg.Server.TrustedProxies)}
	cookieConfig := auth.CookieConfig{
		Domain:   cfg.Cookies.Domain,
		Secure:   cfg.Cookies.Secure,
		SameSite: cfg.Cookies.SameSite,
	}
	authHandler := handlers.NewAuthHandler(authService, ipConfig, cookieConfig)
	totpHandler := handlers.NewTOTPHandler(totpService, ipConfig)
	healthHandler := handlers.NewHealthHandler(healthChecks)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	rateLimitConfig := middlewareCustom.DefaultAuthRateLimit()
	rateLimitConfig.IPConfig = ipConfig

	routes.RegisterRoutes(router, authHandler, totpHandler, healthHandler, tokenManager, principals, rateLimitConfig, logger)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task for stores that do not expire entries themselves
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	var cleanupManager *background.CleanupManager
	if len(stores.sweepers) > 0 {
		cleanupManager = background.NewCleanupManager(stores.sweepers, logger, cfg.TOTP.CleanupInterval)
		go cleanupManager.Start(cleanupCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	if cleanupManager != nil {
		cleanupManager.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Let in-flight notifications finish
	asyncNotifier.Wait()

	logger.Info("server stopped gracefully")
}

// pendingStores groups the short-lived state stores for one backend
type pendingStores struct {
	enrollments     pending.Store[models.PendingEnrollment]
	challenges      services.ChallengeStores
	disableAttempts pending.Store[time.Time]
	// sweepers is empty for backends that expire keys themselves
	sweepers map[string]pending.Sweeper
}

// openPendingStores builds the enrollment, login challenge and disable attempt
// stores for the configured backend. Memory stores are returned as sweepers as well.
func openPendingStores(
	cfg *config.Config,
	clk clock.Clocker,
	healthChecks map[string]handlers.HealthCheck,
) (*pendingStores, error) {
	if cfg.Pending.Backend == config.BackendRedis {
		opts, err := redis.ParseURL(cfg.Pending.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}

		healthChecks["pending"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}

		return &pendingStores{
			enrollments: pending.NewRedisStore[models.PendingEnrollment](client, "totpgate:enrollment:", pendingGrace, clk),
			challenges: services.ChallengeStores{
				Challenges: pending.NewRedisStore[models.PendingLoginChallenge](client, "totpgate:challenge:", pendingGrace, clk),
				Active:     pending.NewRedisStore[string](client, "totpgate:challenge-active:", pendingGrace, clk),
			},
			disableAttempts: pending.NewRedisStore[time.Time](client, "totpgate:disable-attempts:", pendingGrace, clk),
		}, nil
	}

	enrollments := pending.NewMemoryStore[models.PendingEnrollment](clk)
	challengeStore := pending.NewMemoryStore[models.PendingLoginChallenge](clk)
	active := pending.NewMemoryStore[string](clk)
	disableAttempts := pending.NewMemoryStore[time.Time](clk)

	return &pendingStores{
		enrollments:     enrollments,
		challenges:      services.ChallengeStores{Challenges: challengeStore, Active: active},
		disableAttempts: disableAttempts,
		sweepers: map[string]pending.Sweeper{
			"enrollments":       enrollments,
			"challenges":        challengeStore,
			"active_challenges": active,
			"disable_attempts":  disableAttempts,
		},
	}, nil
}

// newNotifier returns the delivery backend for enable/disable notices
func newNotifier(cfg *config.Config, logger *slog.Logger) (services.Notifier, error) {
	if cfg.Notify.Backend == config.BackendSES {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sesNotifier, err := services.NewSESNotifier(ctx, cfg.Notify.AWSRegion, cfg.Notify.EmailFrom, logger)
		if err != nil {
			return nil, err
		}
		return sesNotifier, nil
	}
	return services.NewLogNotifier(logger), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
