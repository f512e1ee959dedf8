package store

import (
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// Phase is the coarse session state machine position.
type Phase string

const (
	PhaseAnonymous           Phase = "anonymous"
	PhasePendingVerification Phase = "pending_verification"
	PhaseAuthenticated       Phase = "authenticated"
)

// AuthState is the identity slice. It is replaced wholesale on every
// reduction; readers always see a consistent snapshot.
type AuthState struct {
	Pending       bool
	Authenticated bool
	User          *models.User

	// PendingEmail is set after registration while the OTP challenge for
	// that address is outstanding.
	PendingEmail string

	// Notice carries a transient success message (e.g. "reset email sent").
	Notice string
	Err    *apperr.Error
}

// Phase derives the session state machine position from the snapshot.
func (s AuthState) Phase() Phase {
	switch {
	case s.Authenticated:
		return PhaseAuthenticated
	case s.PendingEmail != "":
		return PhasePendingVerification
	default:
		return PhaseAnonymous
	}
}

// AuthOutcome is a terminal or pending result of an auth action.
type AuthOutcome interface{ isAuthOutcome() }

// AuthPending marks the slice busy and clears stale notices and errors.
type AuthPending struct{}

// AuthRegistered records a successful registration: the account exists but is
// unverified until the OTP for PendingEmail is consumed.
type AuthRegistered struct {
	Email  string
	Notice string
}

// AuthSessionOpened installs an authoritative user snapshot. Any previous
// session state is overwritten, never merged.
type AuthSessionOpened struct {
	User *models.User
}

// AuthSessionClosed clears the session. Used by logout success and by token
// validation failure (which must force Anonymous and drop the cached user).
type AuthSessionClosed struct {
	Notice string
	Err    *apperr.Error
}

// AuthNotice resolves an action that changes no session state, e.g.
// forgot/reset/update password.
type AuthNotice struct {
	Notice string
}

// AuthFailed resolves an action with a normalized failure. Session state is
// untouched.
type AuthFailed struct {
	Err *apperr.Error
}

// AuthResolved clears the pending flag and nothing else. Dispatched when a
// stale validation resolves after a logout superseded it.
type AuthResolved struct{}

// AuthCleared resets the whole slice to its zero value.
type AuthCleared struct{}

func (AuthPending) isAuthOutcome()       {}
func (AuthRegistered) isAuthOutcome()    {}
func (AuthSessionOpened) isAuthOutcome() {}
func (AuthSessionClosed) isAuthOutcome() {}
func (AuthNotice) isAuthOutcome()        {}
func (AuthFailed) isAuthOutcome()        {}
func (AuthResolved) isAuthOutcome()      {}
func (AuthCleared) isAuthOutcome()       {}

// ReduceAuth is the pure reducer for the auth slice.
func ReduceAuth(s AuthState, o AuthOutcome) AuthState {
	switch v := o.(type) {
	case AuthPending:
		s.Pending = true
		s.Notice = ""
		s.Err = nil
	case AuthRegistered:
		s.Pending = false
		s.PendingEmail = v.Email
		s.Notice = v.Notice
	case AuthSessionOpened:
		s.Pending = false
		s.Authenticated = true
		s.User = v.User
		s.PendingEmail = ""
		s.Err = nil
	case AuthSessionClosed:
		s.Pending = false
		s.Authenticated = false
		s.User = nil
		s.Notice = v.Notice
		s.Err = v.Err
	case AuthNotice:
		s.Pending = false
		s.Notice = v.Notice
	case AuthFailed:
		s.Pending = false
		s.Err = v.Err
	case AuthResolved:
		s.Pending = false
	case AuthCleared:
		s = AuthState{}
	}
	return s
}
