package routes

import (
	"log/slog"

	"github.com/BradenHooton/totpgate/internal/auth"
	"github.com/BradenHooton/totpgate/internal/handlers"
	"github.com/BradenHooton/totpgate/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	totpHandler *handlers.TOTPHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *auth.TokenManager,
	principals auth.PrincipalGetter,
	rateLimitConfig middleware.RateLimitConfig,
	logger *slog.Logger,
) {
	router.Get("/health", healthHandler.Health)

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/totp/verify-login", authHandler.VerifyLogin)
	})

	// Protected routes - session required
	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(tokenManager, principals, logger))
		r.Use(middleware.RateLimitByPrincipal(rateLimitConfig))

		// Enrollment works before two-factor is complete
		r.Post("/auth/totp/setup", totpHandler.Setup)
		r.Post("/auth/totp/verify-setup", totpHandler.VerifySetup)
		r.Post("/auth/totp/cancel", totpHandler.Cancel)
		r.Get("/auth/totp/status", totpHandler.Status)

		// Completed two-factor required
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireTOTPVerified)
			r.Post("/auth/totp/disable", totpHandler.Disable)
			r.Get("/auth/profile", authHandler.Profile)
		})
	})
}
