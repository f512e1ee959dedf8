package server

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shelfwise/shelfwise/internal/config"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// AuthMiddleware validates the session cookie. A credential is valid only
// when the JWT parses and its session id is still present in the session
// store, so logout wins over an otherwise unexpired token.
type AuthMiddleware struct {
	config   *config.JWTConfig
	sessions *SessionStore
	repo     *Repository
	logger   *logrus.Logger
}

// NewAuthMiddleware creates the session-cookie middleware
func NewAuthMiddleware(cfg *config.JWTConfig, sessions *SessionStore, repo *Repository, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{config: cfg, sessions: sessions, repo: repo, logger: logger}
}

// Authenticate resolves the session cookie into a user and stores it in the
// request locals.
func (a *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cookie := c.Cookies(a.config.CookieName)
		if cookie == "" {
			return writeError(c, apperr.New(apperr.CodeAuth, "session credential missing"))
		}

		sessionID, err := a.parseToken(cookie)
		if err != nil {
			a.logger.WithError(err).Debug("Session token rejected")
			return writeError(c, apperr.New(apperr.CodeAuth, "session credential invalid"))
		}

		userID, err := a.sessions.Get(c.Context(), sessionID)
		if err != nil {
			return writeError(c, apperr.New(apperr.CodeAuth, "session expired or revoked"))
		}

		user, err := a.repo.UserByID(userID)
		if err != nil {
			return writeError(c, apperr.New(apperr.CodeAuth, "session user no longer exists"))
		}

		c.Locals("user", user)
		c.Locals("session_id", sessionID)
		return c.Next()
	}
}

// RequireAdmin rejects non-admin sessions. Must run after Authenticate.
func (a *AuthMiddleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil || user.Role != models.RoleAdmin {
			return writeError(c, apperr.New(apperr.CodeForbidden, "admin access required"))
		}
		return c.Next()
	}
}

func (a *AuthMiddleware) parseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.config.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(a.config.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("token parsing failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("failed to get token claims")
	}

	sessionID, ok := claims["jti"].(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("jti claim is required")
	}

	return sessionID, nil
}

// IssueSessionToken mints a session JWT and returns the token with its
// session id.
func IssueSessionToken(cfg *config.JWTConfig, user *models.User) (tokenString, sessionID string, err error) {
	sessionID = uuid.New().String()
	now := time.Now()

	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"jti":  sessionID,
		"exp":  now.Add(cfg.SessionTTL).Unix(),
		"iat":  now.Unix(),
		"iss":  cfg.Issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err = token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", "", err
	}

	return tokenString, sessionID, nil
}

// CurrentUser extracts the authenticated user from the request locals.
func CurrentUser(c *fiber.Ctx) *models.User {
	if user, ok := c.Locals("user").(*models.User); ok {
		return user
	}
	return nil
}

// CurrentSessionID extracts the session id from the request locals.
func CurrentSessionID(c *fiber.Ctx) string {
	if sessionID, ok := c.Locals("session_id").(string); ok {
		return sessionID
	}
	return ""
}

// writeError renders an apperr with its mapped status and wire shape.
func writeError(c *fiber.Ctx, err *apperr.Error) error {
	return c.Status(err.HTTPStatus()).JSON(err.ToResponse())
}
