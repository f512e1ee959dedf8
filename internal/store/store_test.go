package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

func TestAuthPendingLiveness(t *testing.T) {
	// Every terminal outcome must clear a pending flag, success or failure.
	terminals := []AuthOutcome{
		AuthRegistered{Email: "a@x.com"},
		AuthSessionOpened{User: &models.User{ID: "u1"}},
		AuthSessionClosed{},
		AuthNotice{Notice: "done"},
		AuthFailed{Err: apperr.New(apperr.CodeAuth, "nope")},
		AuthResolved{},
		AuthCleared{},
	}

	for _, terminal := range terminals {
		state := ReduceAuth(AuthState{}, AuthPending{})
		assert.True(t, state.Pending)

		state = ReduceAuth(state, terminal)
		assert.False(t, state.Pending, "outcome %T left pending set", terminal)
	}
}

func TestAuthPhaseTransitions(t *testing.T) {
	var state AuthState
	assert.Equal(t, PhaseAnonymous, state.Phase())

	state = ReduceAuth(state, AuthPending{})
	state = ReduceAuth(state, AuthRegistered{Email: "alice@x.com", Notice: "code sent"})
	assert.Equal(t, PhasePendingVerification, state.Phase())
	assert.Equal(t, "alice@x.com", state.PendingEmail)

	user := &models.User{ID: "u1", Email: "alice@x.com", Verified: true}
	state = ReduceAuth(state, AuthPending{})
	state = ReduceAuth(state, AuthSessionOpened{User: user})
	assert.Equal(t, PhaseAuthenticated, state.Phase())
	assert.True(t, state.Authenticated)
	assert.Empty(t, state.PendingEmail)

	state = ReduceAuth(state, AuthPending{})
	state = ReduceAuth(state, AuthSessionClosed{Notice: "logged out"})
	assert.Equal(t, PhaseAnonymous, state.Phase())
	assert.Nil(t, state.User)
}

func TestAuthSessionOverwrittenNotMerged(t *testing.T) {
	first := &models.User{ID: "u1", Username: "old"}
	second := &models.User{ID: "u2", Username: "new"}

	state := ReduceAuth(AuthState{}, AuthSessionOpened{User: first})
	state = ReduceAuth(state, AuthSessionOpened{User: second})

	assert.Equal(t, "u2", state.User.ID)
	assert.Equal(t, "new", state.User.Username)
}

func TestAuthValidationFailureClearsUser(t *testing.T) {
	state := ReduceAuth(AuthState{}, AuthSessionOpened{User: &models.User{ID: "u1"}})

	failure := apperr.New(apperr.CodeAuth, "session expired or revoked")
	state = ReduceAuth(state, AuthSessionClosed{Err: failure})

	assert.False(t, state.Authenticated)
	assert.Nil(t, state.User)
	assert.Equal(t, apperr.CodeAuth, state.Err.Code)
}

func TestAuthStaleResolutionKeepsState(t *testing.T) {
	// A stale validation resolving after logout clears pending and nothing
	// else: the session must not be revived.
	state := ReduceAuth(AuthState{}, AuthSessionClosed{Notice: "logged out"})
	state = ReduceAuth(state, AuthPending{})
	state = ReduceAuth(state, AuthResolved{})

	assert.False(t, state.Pending)
	assert.False(t, state.Authenticated)
	assert.Nil(t, state.User)
}

func TestReducerDeterminism(t *testing.T) {
	outcomes := []AuthOutcome{
		AuthPending{},
		AuthRegistered{Email: "a@x.com", Notice: "sent"},
		AuthPending{},
		AuthSessionOpened{User: &models.User{ID: "u1"}},
		AuthPending{},
		AuthFailed{Err: apperr.New(apperr.CodeNetwork, "down")},
		AuthPending{},
		AuthSessionClosed{Notice: "bye"},
	}

	replay := func() AuthState {
		var state AuthState
		for _, o := range outcomes {
			state = ReduceAuth(state, o)
		}
		return state
	}

	assert.Equal(t, replay(), replay())
}

func TestBookReduction(t *testing.T) {
	b1 := models.Book{ID: "b1", Title: "Dune", Quantity: 2}
	b2 := models.Book{ID: "b2", Title: "Neuromancer", Quantity: 1}

	state := ReduceBooks(BookState{}, BooksPending{})
	state = ReduceBooks(state, BooksFetched{Books: []models.Book{b1}})
	require.Len(t, state.Books, 1)
	assert.False(t, state.Pending)

	state = ReduceBooks(state, BookAdded{Book: b2})
	require.Len(t, state.Books, 2)

	state = ReduceBooks(state, BookSelected{Book: b2})
	require.NotNil(t, state.Selected)

	// Deleting the selected book clears the selection too.
	state = ReduceBooks(state, BookDeleted{ID: "b2"})
	require.Len(t, state.Books, 1)
	assert.Equal(t, "b1", state.Books[0].ID)
	assert.Nil(t, state.Selected)
}

func TestBookAddedDoesNotAliasPreviousSlice(t *testing.T) {
	shared := []models.Book{{ID: "b1"}}
	state := ReduceBooks(BookState{}, BooksFetched{Books: shared})
	next := ReduceBooks(state, BookAdded{Book: models.Book{ID: "b2"}})

	next.Books[0].Title = "mutated"
	assert.Empty(t, state.Books[0].Title, "old snapshot must not observe new reductions")
}

func TestBorrowScopedFetches(t *testing.T) {
	mine := []models.BorrowRecord{{ID: "r1"}}
	all := []models.BorrowRecord{{ID: "r1"}, {ID: "r2"}}

	state := ReduceBorrow(BorrowState{}, BorrowsFetched{Scope: ScopeSelf, Records: mine})
	state = ReduceBorrow(state, BorrowsFetched{Scope: ScopeAll, Records: all})

	assert.Len(t, state.Mine, 1)
	assert.Len(t, state.All, 2)

	// Last fetch wins wholesale.
	state = ReduceBorrow(state, BorrowsFetched{Scope: ScopeAll, Records: nil})
	assert.Empty(t, state.All)
	assert.Len(t, state.Mine, 1)
}

func TestPopupToggleAndClearAll(t *testing.T) {
	state := ReducePopup(PopupState{}, PopupToggled{Popup: PopupSetting})
	state = ReducePopup(state, PopupToggled{Popup: PopupAddBook})
	state = ReducePopup(state, PopupToggled{Popup: PopupAddNewAdmin})

	assert.True(t, state.Setting)
	assert.True(t, state.AddBook)
	assert.True(t, state.AddNewAdmin)

	state = ReducePopup(state, PopupToggled{Popup: PopupSetting})
	assert.False(t, state.Setting)

	state = ReducePopup(state, PopupsCleared{})
	assert.Equal(t, PopupState{}, state)
}

func TestSubscribersNotifiedOncePerDispatch(t *testing.T) {
	st := New()

	var snapshots []Snapshot
	unsubscribe := st.Subscribe(func(snap Snapshot) {
		snapshots = append(snapshots, snap)
	})

	st.DispatchAuth(AuthPending{})
	st.DispatchAuth(AuthSessionOpened{User: &models.User{ID: "u1"}})
	st.DispatchPopup(PopupToggled{Popup: PopupSetting})

	require.Len(t, snapshots, 3)
	assert.True(t, snapshots[0].Auth.Pending)
	assert.True(t, snapshots[1].Auth.Authenticated)
	assert.True(t, snapshots[2].Popup.Setting)

	unsubscribe()
	st.DispatchPopup(PopupsCleared{})
	assert.Len(t, snapshots, 3, "unsubscribed listener must not fire")
}

func TestSnapshotIsConsistentCopy(t *testing.T) {
	st := New()
	st.DispatchBooks(BooksFetched{Books: []models.Book{{ID: "b1"}}})

	snap := st.Snapshot()
	st.DispatchBooks(BookDeleted{ID: "b1"})

	assert.Len(t, snap.Books.Books, 1, "snapshot must not track later reductions")
	assert.Empty(t, st.Snapshot().Books.Books)
}
