package session

import (
	"context"

	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/store"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// RegisterAdmin creates a verified admin account (admin only on the gateway
// side). The new admin lands in the user-administration slice, not in the
// caller's own session.
func (m *Manager) RegisterAdmin(ctx context.Context, username, email, password string) error {
	m.store.DispatchUsers(store.UsersPending{})

	if err := requireFields(map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}); err != nil {
		return m.failUsers("register_admin", err)
	}

	admin, err := m.gw.RegisterAdmin(ctx, models.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return m.failUsers("register_admin", err)
	}

	m.logger.WithField("admin_id", admin.ID).Info("Admin registered")
	metrics.RecordAction("register_admin", "success")
	m.store.DispatchUsers(store.AdminRegistered{Admin: admin})
	return nil
}

// FetchAllUsers replaces the user directory cache (admin only on the gateway
// side).
func (m *Manager) FetchAllUsers(ctx context.Context) error {
	m.store.DispatchUsers(store.UsersPending{})

	users, err := m.gw.ListUsers(ctx)
	if err != nil {
		return m.failUsers("fetch_users", err)
	}

	metrics.RecordAction("fetch_users", "success")
	m.store.DispatchUsers(store.UsersFetched{Users: users})
	return nil
}

func (m *Manager) failUsers(action string, err error) error {
	appErr := apperr.Normalize(err)
	m.logger.WithField("action", action).WithField("code", appErr.Code).Warn(appErr.Message)
	metrics.RecordAction(action, "failure")
	m.store.DispatchUsers(store.UsersFailed{Err: appErr})
	return appErr
}
