package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// UserHandler handles user administration endpoints
type UserHandler struct {
	repo   *Repository
	logger *logrus.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(repo *Repository, logger *logrus.Logger) *UserHandler {
	return &UserHandler{repo: repo, logger: logger}
}

// List returns the full user directory (admin)
func (h *UserHandler) List(c *fiber.Ctx) error {
	return c.JSON(models.UsersResponse{Users: h.repo.ListUsers()})
}

// RegisterAdmin creates a verified admin account (admin). Admins skip the OTP
// flow: they are vouched for by the admin creating them.
func (h *UserHandler) RegisterAdmin(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.New(apperr.CodeValidation, "invalid request body"))
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return writeError(c, apperr.New(apperr.CodeValidation, "username, email and password are required"))
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash password")
		return writeError(c, apperr.New(apperr.CodeInternal, "failed to process password"))
	}

	now := time.Now().UTC()
	admin := &models.User{
		Username:     req.Username,
		Email:        normalizeEmail(req.Email),
		PasswordHash: string(passwordHash),
		Role:         models.RoleAdmin,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.repo.CreateUser(admin); err != nil {
		return writeError(c, apperr.New(apperr.CodeConflict, "email already registered"))
	}

	h.logger.WithFields(logrus.Fields{
		"admin_id": admin.ID,
		"email":    admin.Email,
	}).Info("Admin registered")

	return c.Status(fiber.StatusCreated).JSON(models.UserResponse{
		Message: "Admin registered",
		User:    admin,
	})
}
