package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/shelfwise/shelfwise/internal/config"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// forgotPasswordMessage is returned for every forgot-password request,
// registered email or not, so the endpoint cannot be used to enumerate
// accounts.
const forgotPasswordMessage = "If that email is registered, a reset link has been sent"

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	cfg      *config.Config
	repo     *Repository
	sessions *SessionStore
	otps     *OTPStore
	resets   *ResetStore
	mailer   Mailer
	logger   *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg *config.Config, repo *Repository, sessions *SessionStore, otps *OTPStore, resets *ResetStore, mailer Mailer, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		cfg:      cfg,
		repo:     repo,
		sessions: sessions,
		otps:     otps,
		resets:   resets,
		mailer:   mailer,
		logger:   logger,
	}
}

// Register creates an unverified account and issues an OTP challenge
func (h *AuthHandler) Register(c *fiber.Ctx) error {
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
	user := &models.User{
		Username:     req.Username,
		Email:        normalizeEmail(req.Email),
		PasswordHash: string(passwordHash),
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.repo.CreateUser(user); err != nil {
		return writeError(c, apperr.New(apperr.CodeConflict, "email already registered"))
	}

	code, err := GenerateOTP()
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate verification code")
		return writeError(c, apperr.New(apperr.CodeInternal, "failed to issue verification code"))
	}
	if err := h.otps.Issue(c.Context(), user.Email, code, h.cfg.Lending.OTPTTL); err != nil {
		h.logger.WithError(err).Error("Failed to store verification code")
		return writeError(c, apperr.New(apperr.CodeInternal, "failed to issue verification code"))
	}
	if err := h.mailer.SendOTP(c.Context(), user.Email, code); err != nil {
		h.logger.WithError(err).Error("Failed to deliver verification code")
		return writeError(c, apperr.New(apperr.CodeInternal, "failed to deliver verification code"))
	}

	h.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("User registered, verification pending")

	return c.Status(fiber.StatusCreated).JSON(models.UserResponse{
		Message: "Verification code sent",
		User:    user,
	})
}

// Verify consumes the OTP challenge, marks the account verified and opens a
// session
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req models.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.New(apperr.CodeValidation, "invalid request body"))
	}
	if req.Email == "" || req.Code == "" {
		return writeError(c, apperr.New(apperr.CodeValidation, "email and code are required"))
	}

	if err := h.otps.Consume(c.Context(), req.Email, req.Code); err != nil {
		switch err {
		case ErrOTPNotFound:
			return writeError(c, apperr.New(apperr.CodeExpired, "verification code expired or not found"))
		case ErrOTPMismatch:
			return writeError(c, apperr.New(apperr.CodeAuth, "invalid verification code"))
		default:
			h.logger.WithError(err).Error("Failed to consume verification code")
			return writeError(c, apperr.New(apperr.CodeInternal, "verification failed"))
		}
	}

	user, err := h.repo.MarkVerified(req.Email)
	if err != nil {
		return writeError(c, apperr.New(apperr.CodeNotFound, "user not found"))
	}

	if err := h.openSession(c, user); err != nil {
		return err
	}

	h.logger.WithField("user_id", user.ID).Info("Account verified")

	return c.JSON(models.UserResponse{
		Message: "Account verified",
		User:    user,
	})
}

// Login verifies credentials and sets the session cookie
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.New(apperr.CodeValidation, "invalid request body"))
	}

	user, err := h.repo.UserByEmail(req.Email)
	if err != nil {
		h.logger.WithField("email", req.Email).Warn("Login for unknown email")
		return writeError(c, apperr.New(apperr.CodeAuth, "invalid email or password"))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.logger.WithField("user_id", user.ID).Warn("Invalid password")
		return writeError(c, apperr.New(apperr.CodeAuth, "invalid email or password"))
	}

	if !user.Verified {
		return writeError(c, apperr.New(apperr.CodeAuth, "account not verified"))
	}

	if err := h.openSession(c, user); err != nil {
		return err
	}

	h.logger.WithField("user_id", user.ID).Info("User logged in")

	return c.JSON(models.MessageResponse{Message: "Logged in"})
}

// Logout invalidates the session server-side and clears the cookie
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sessionID := CurrentSessionID(c)
	if err := h.sessions.Delete(c.Context(), sessionID); err != nil {
		h.logger.WithError(err).Error("Failed to delete session")
		return writeError(c, apperr.New(apperr.CodeInternal, "failed to close session"))
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.JWT.CookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		SameSite: "Lax",
		Path:     "/",
	})

	return c.JSON(models.MessageResponse{Message: "Logged out"})
}

// ValidateToken returns the authoritative user snapshot for the session
func (h *AuthHandler) ValidateToken(c *fiber.Ctx) error {
	return c.JSON(models.UserResponse{User: CurrentUser(c)})
}

// ForgotPassword issues a reset token. The response is identical whether or
// not the email is registered.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req models.ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.New(apperr.CodeValidation, "invalid request body"))
	}
	if req.Email == "" {
		return writeError(c, apperr.New(apperr.CodeValidation, "email is required"))
	}

	user, err := h.repo.UserByEmail(req.Email)
	if err == nil {
		token, issueErr := h.resets.Issue(c.Context(), user.ID, h.cfg.Lending.ResetTokenTTL)
		if issueErr != nil {
			h.logger.WithError(issueErr).Error("Failed to issue reset token")
		} else if mailErr := h.mailer.SendResetToken(c.Context(), user.Email, token); mailErr != nil {
			h.logger.WithError(mailErr).Error("Failed to deliver reset token")
		}
	}

	return c.JSON(models.MessageResponse{Message: forgotPasswordMessage})
}

// ResetPassword consumes a reset token exactly once
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	token := c.Params("token")

	var req models.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.New(apperr.CodeValidation, "invalid request body"))
	}
	if req.NewPassword == "" {
		return writeError(c, apperr.New(apperr.CodeValidation, "new password is required"))
	}
	if req.NewPassword != req.ConfirmPassword {
		return writeError(c, apperr.New(apperr.CodeValidation, "passwords do not match"))
	}

	userID, err := h.resets.Consume(c.Context(), token)
	if err != nil {
		if err == ErrResetTokenInvalid {
			return writeError(c, apperr.New(apperr.CodeExpired, "reset token invalid or expired"))
		}
		h.logger.WithError(err).Error("Failed to consume reset token")
		return writeError(c, apperr.New(apperr.CodeInternal, "password reset failed"))
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash password")
		return writeError(c, apperr.New(apperr.CodeInternal, "failed to process password"))
	}

	if err := h.repo.UpdatePasswordHash(userID, string(passwordHash)); err != nil {
		return writeError(c, apperr.New(apperr.CodeNotFound, "user not found"))
	}

	h.logger.WithField("user_id", userID).Info("Password reset")

	return c.JSON(models.MessageResponse{Message: "Password reset successfully"})
}

// UpdatePassword changes the authenticated user's password
func (h *AuthHandler) UpdatePassword(c *fiber.Ctx) error {
	user := CurrentUser(c)

	var req models.UpdatePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.New(apperr.CodeValidation, "invalid request body"))
	}
	if req.NewPassword == "" {
		return writeError(c, apperr.New(apperr.CodeValidation, "new password is required"))
	}
	if req.NewPassword != req.ConfirmPassword {
		return writeError(c, apperr.New(apperr.CodeValidation, "passwords do not match"))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return writeError(c, apperr.New(apperr.CodeAuth, "old password is incorrect"))
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash password")
		return writeError(c, apperr.New(apperr.CodeInternal, "failed to process password"))
	}

	if err := h.repo.UpdatePasswordHash(user.ID, string(passwordHash)); err != nil {
		return writeError(c, apperr.New(apperr.CodeNotFound, "user not found"))
	}

	h.logger.WithField("user_id", user.ID).Info("Password updated")

	return c.JSON(models.MessageResponse{Message: "Password updated successfully"})
}

func (h *AuthHandler) openSession(c *fiber.Ctx, user *models.User) error {
	tokenString, sessionID, err := IssueSessionToken(&h.cfg.JWT, user)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue session token")
		return writeError(c, apperr.New(apperr.CodeInternal, "failed to open session"))
	}

	if err := h.sessions.Put(c.Context(), sessionID, user.ID, h.cfg.JWT.SessionTTL); err != nil {
		h.logger.WithError(err).Error("Failed to store session")
		return writeError(c, apperr.New(apperr.CodeInternal, "failed to open session"))
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.JWT.CookieName,
		Value:    tokenString,
		Expires:  time.Now().Add(h.cfg.JWT.SessionTTL),
		HTTPOnly: true,
		SameSite: "Lax",
		Path:     "/",
	})

	return nil
}
