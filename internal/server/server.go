// Package server is the reference lending gateway: the HTTP+JSON collaborator
// the client core consumes. Books, users and borrow records live in a
// mutex-guarded in-memory repository; sessions, OTP challenges and reset
// tokens live in Redis so they expire and revoke server-side.
package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/shelfwise/shelfwise/internal/config"
	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// New assembles the gateway application.
func New(cfg *config.Config, logger *logrus.Logger, repo *Repository, redisClient redis.UniversalClient, mailer Mailer) *fiber.App {
	sessions := NewSessionStore(redisClient)
	otps := NewOTPStore(redisClient)
	resets := NewResetStore(redisClient)

	auth := NewAuthMiddleware(&cfg.JWT, sessions, repo, logger)
	authHandler := NewAuthHandler(cfg, repo, sessions, otps, resets, mailer, logger)
	bookHandler := NewBookHandler(repo, logger)
	borrowHandler := NewBorrowHandler(cfg, repo, logger)
	userHandler := NewUserHandler(repo, logger)

	app := fiber.New(fiber.Config{
		AppName:      "Shelfwise Gateway",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			logger.WithError(err).WithFields(logrus.Fields{
				"method": c.Method(),
				"path":   c.Path(),
				"status": code,
			}).Error("Request error")

			appErr := apperr.New(apperr.CodeInternal, "internal server error")
			return c.Status(code).JSON(appErr.ToResponse())
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowOrigins,
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With",
		AllowCredentials: cfg.CORS.AllowOrigins != "*",
		MaxAge:           86400,
	}))

	// Health and metrics endpoints (no auth required)
	app.Get("/healthz", healthCheck)
	app.Get("/readyz", readinessCheck(redisClient, logger))
	app.Get("/metrics", metrics.PrometheusHandler())

	api := app.Group("/api")
	api.Use(metrics.HTTPMetricsMiddleware())

	// Auth routes (public)
	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/verify", authHandler.Verify)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/forgot-password", authHandler.ForgotPassword)
	authRoutes.Put("/reset-password/:token", authHandler.ResetPassword)

	// Auth routes (session required)
	authRoutes.Post("/logout", auth.Authenticate(), authHandler.Logout)
	authRoutes.Get("/validate-token", auth.Authenticate(), authHandler.ValidateToken)
	authRoutes.Put("/update-password", auth.Authenticate(), authHandler.UpdatePassword)

	// Book routes
	bookRoutes := api.Group("/books", auth.Authenticate())
	bookRoutes.Get("/", bookHandler.List)
	bookRoutes.Post("/", auth.RequireAdmin(), bookHandler.Create)
	bookRoutes.Delete("/:id", auth.RequireAdmin(), bookHandler.Delete)

	// Borrow routes
	borrowRoutes := api.Group("/borrow", auth.Authenticate())
	borrowRoutes.Post("/lend/:bookID", auth.RequireAdmin(), borrowHandler.Lend)
	borrowRoutes.Post("/return/:bookID", auth.RequireAdmin(), borrowHandler.Return)
	borrowRoutes.Get("/all", auth.RequireAdmin(), borrowHandler.ListAll)
	borrowRoutes.Get("/mine", borrowHandler.ListMine)

	// User administration routes
	userRoutes := api.Group("/users", auth.Authenticate(), auth.RequireAdmin())
	userRoutes.Get("/all", userHandler.List)
	userRoutes.Post("/admin/register", userHandler.RegisterAdmin)

	// 404 handler
	app.Use(notFoundHandler)

	return app
}

// SeedAdmin creates the initial admin account when it does not exist yet.
// Skipped when no password is configured.
func SeedAdmin(cfg *config.AdminConfig, repo *Repository, logger *logrus.Logger) error {
	if cfg.Password == "" {
		logger.Warn("No admin password configured, skipping admin seed")
		return nil
	}

	if _, err := repo.UserByEmail(cfg.Email); err == nil {
		return nil
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := &models.User{
		Username:     cfg.Username,
		Email:        normalizeEmail(cfg.Email),
		PasswordHash: string(passwordHash),
		Role:         models.RoleAdmin,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := repo.CreateUser(admin); err != nil {
		return err
	}

	logger.WithField("email", admin.Email).Info("Seed admin created")
	return nil
}

// healthCheck returns the health status of the service
func healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "shelfwise-gateway",
	})
}

// readinessCheck checks if the service is ready to accept traffic
func readinessCheck(redisClient redis.UniversalClient, logger *logrus.Logger) fiber.Handler {
	check := RedisHealthCheck(redisClient, logger)
	return func(c *fiber.Ctx) error {
		if err := check(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":    "not ready",
				"reason":    "redis unavailable",
				"timestamp": time.Now().UTC(),
			})
		}

		return c.JSON(fiber.Map{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   "shelfwise-gateway",
		})
	}
}

// notFoundHandler handles 404 errors
func notFoundHandler(c *fiber.Ctx) error {
	return writeError(c, apperr.Newf(apperr.CodeNotFound, "no route for %s", c.Path()))
}
