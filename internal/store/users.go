package store

import (
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// UserState caches the admin-facing user directory.
type UserState struct {
	Pending bool
	Users   []models.User
	// Admin holds the most recently registered admin account.
	Admin *models.User
	Err   *apperr.Error
}

// UserOutcome is a terminal or pending result of a user-administration action.
type UserOutcome interface{ isUserOutcome() }

type UsersPending struct{}

// UsersFetched replaces the directory wholesale.
type UsersFetched struct {
	Users []models.User
}

type AdminRegistered struct {
	Admin *models.User
}

type UsersFailed struct {
	Err *apperr.Error
}

func (UsersPending) isUserOutcome()    {}
func (UsersFetched) isUserOutcome()    {}
func (AdminRegistered) isUserOutcome() {}
func (UsersFailed) isUserOutcome()     {}

// ReduceUsers is the pure reducer for the user-administration slice.
func ReduceUsers(s UserState, o UserOutcome) UserState {
	switch v := o.(type) {
	case UsersPending:
		s.Pending = true
		s.Err = nil
	case UsersFetched:
		s.Pending = false
		s.Users = v.Users
	case AdminRegistered:
		s.Pending = false
		s.Admin = v.Admin
	case UsersFailed:
		s.Pending = false
		s.Err = v.Err
	}
	return s
}
