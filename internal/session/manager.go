// Package session owns the identity lifecycle: registration, OTP
// verification, login, logout, token validation and the password flows.
// Every operation brackets its gateway call with a pending reduction and a
// terminal reduction, so the auth slice never stays pending after resolution.
package session

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/shelfwise/shelfwise/internal/gateway"
	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/store"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// Manager drives the session state machine through the state store.
type Manager struct {
	gw     *gateway.Client
	store  *store.Store
	logger *logrus.Logger

	// epoch fences token validation against logout: a validation that
	// resolves under an older epoch must not revive the session.
	epoch atomic.Uint64
}

// NewManager creates a session manager
func NewManager(gw *gateway.Client, st *store.Store, logger *logrus.Logger) *Manager {
	return &Manager{gw: gw, store: st, logger: logger}
}

// Register creates an unverified account and moves the session machine to
// PendingVerification. Empty fields are rejected before any network call.
func (m *Manager) Register(ctx context.Context, username, email, password string) error {
	m.store.DispatchAuth(store.AuthPending{})

	if err := requireFields(map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}); err != nil {
		return m.failAuth("register", err)
	}

	user, err := m.gw.Register(ctx, models.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return m.failAuth("register", err)
	}

	m.logger.WithField("email", user.Email).Info("Registration accepted, verification pending")
	metrics.RecordAction("register", "success")
	m.store.DispatchAuth(store.AuthRegistered{
		Email:  user.Email,
		Notice: "Verification code sent to " + user.Email,
	})
	return nil
}

// VerifyOTP consumes the one-time code. On success the account is verified
// and a session is established.
func (m *Manager) VerifyOTP(ctx context.Context, email, code string) error {
	m.store.DispatchAuth(store.AuthPending{})

	if err := requireFields(map[string]string{"email": email, "code": code}); err != nil {
		return m.failAuth("verify_otp", err)
	}

	user, err := m.gw.VerifyOTP(ctx, models.VerifyRequest{Email: email, Code: code})
	if err != nil {
		return m.failAuth("verify_otp", err)
	}

	m.logger.WithField("user_id", user.ID).Info("Account verified, session opened")
	metrics.RecordAction("verify_otp", "success")
	m.store.DispatchAuth(store.AuthSessionOpened{User: user})
	return nil
}

// Login is two-phase: authenticate for the session credential, then validate
// the credential to hydrate the user. ValidateToken stays the single source
// of truth for the user snapshot, so a fresh login and a later cold start
// can never drift apart.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.store.DispatchAuth(store.AuthPending{})

	if err := requireFields(map[string]string{"email": email, "password": password}); err != nil {
		return m.failAuth("login", err)
	}

	if err := m.gw.Login(ctx, models.LoginRequest{Email: email, Password: password}); err != nil {
		return m.failAuth("login", err)
	}

	return m.resolveSession(ctx, "login")
}

// ValidateToken is the idempotent cold-start entry point. Success overwrites
// any previous session state wholesale; failure forces Anonymous and clears
// the cached user so the caller can redirect to login.
func (m *Manager) ValidateToken(ctx context.Context) error {
	m.store.DispatchAuth(store.AuthPending{})
	return m.resolveSession(ctx, "validate_token")
}

func (m *Manager) resolveSession(ctx context.Context, action string) error {
	epoch := m.epoch.Load()

	user, err := m.gw.ValidateToken(ctx)

	// A logout resolved while this validation was in flight. Its result,
	// success or failure, is stale either way: clear pending and keep the
	// post-logout state.
	if m.epoch.Load() != epoch {
		m.logger.WithField("action", action).Debug("Discarding stale token validation")
		metrics.RecordAction(action, "stale")
		m.store.DispatchAuth(store.AuthResolved{})
		return nil
	}

	if err != nil {
		appErr := apperr.Normalize(err)
		m.logger.WithField("code", appErr.Code).Debug("Token validation failed, forcing anonymous")
		metrics.RecordAction(action, "failure")
		m.store.DispatchAuth(store.AuthSessionClosed{Err: appErr})
		return appErr
	}

	metrics.RecordAction(action, "success")
	m.store.DispatchAuth(store.AuthSessionOpened{User: user})
	return nil
}

// Logout invalidates the credential server-side first; local state is cleared
// only when the gateway confirms.
func (m *Manager) Logout(ctx context.Context) error {
	m.store.DispatchAuth(store.AuthPending{})

	if err := m.gw.Logout(ctx); err != nil {
		return m.failAuth("logout", err)
	}

	m.epoch.Add(1)
	m.logger.Info("Session closed")
	metrics.RecordAction("logout", "success")
	m.store.DispatchAuth(store.AuthSessionClosed{Notice: "Logged out successfully"})
	return nil
}

// ForgotPassword asks the gateway for a reset token. The outcome is a generic
// notice regardless of whether the email is registered.
func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	m.store.DispatchAuth(store.AuthPending{})

	if err := requireFields(map[string]string{"email": email}); err != nil {
		return m.failAuth("forgot_password", err)
	}

	message, err := m.gw.ForgotPassword(ctx, email)
	if err != nil {
		return m.failAuth("forgot_password", err)
	}

	metrics.RecordAction("forgot_password", "success")
	m.store.DispatchAuth(store.AuthNotice{Notice: message})
	return nil
}

// ResetPassword consumes a reset token. A confirmation mismatch fails fast,
// before any network call.
func (m *Manager) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	m.store.DispatchAuth(store.AuthPending{})

	if err := requireFields(map[string]string{"token": token, "new password": newPassword}); err != nil {
		return m.failAuth("reset_password", err)
	}
	if newPassword != confirmPassword {
		return m.failAuth("reset_password", apperr.New(apperr.CodeValidation, "passwords do not match"))
	}

	message, err := m.gw.ResetPassword(ctx, token, models.ResetPasswordRequest{
		NewPassword:     newPassword,
		ConfirmPassword: confirmPassword,
	})
	if err != nil {
		return m.failAuth("reset_password", err)
	}

	metrics.RecordAction("reset_password", "success")
	m.store.DispatchAuth(store.AuthNotice{Notice: message})
	return nil
}

// UpdatePassword changes the password of the authenticated user. Requires an
// open session; a confirmation mismatch fails fast.
func (m *Manager) UpdatePassword(ctx context.Context, oldPassword, newPassword, confirmPassword string) error {
	m.store.DispatchAuth(store.AuthPending{})

	if !m.store.Snapshot().Auth.Authenticated {
		return m.failAuth("update_password", apperr.New(apperr.CodeAuth, "not authenticated"))
	}
	if err := requireFields(map[string]string{"old password": oldPassword, "new password": newPassword}); err != nil {
		return m.failAuth("update_password", err)
	}
	if newPassword != confirmPassword {
		return m.failAuth("update_password", apperr.New(apperr.CodeValidation, "passwords do not match"))
	}

	message, err := m.gw.UpdatePassword(ctx, models.UpdatePasswordRequest{
		OldPassword:     oldPassword,
		NewPassword:     newPassword,
		ConfirmPassword: confirmPassword,
	})
	if err != nil {
		return m.failAuth("update_password", err)
	}

	metrics.RecordAction("update_password", "success")
	m.store.DispatchAuth(store.AuthNotice{Notice: message})
	return nil
}

func (m *Manager) failAuth(action string, err error) error {
	appErr := apperr.Normalize(err)
	m.logger.WithFields(logrus.Fields{
		"action": action,
		"code":   appErr.Code,
	}).Warn(appErr.Message)
	metrics.RecordAction(action, "failure")
	m.store.DispatchAuth(store.AuthFailed{Err: appErr})
	return appErr
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperr.Newf(apperr.CodeValidation, "missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
