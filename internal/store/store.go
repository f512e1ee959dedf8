// Package store implements the process-wide observable state container.
//
// State is split into independent slices (auth, books, borrow, users, popup).
// Every change goes through a dispatch: the calling component hands the store
// an outcome value, the slice's reducer derives the next snapshot from the
// previous one, and subscribers are notified synchronously with the full
// state. Reducers are pure, so replaying the same outcome sequence always
// produces the same state.
package store

import "sync"

// Snapshot is a consistent copy of every slice at one point in time.
type Snapshot struct {
	Auth   AuthState
	Books  BookState
	Borrow BorrowState
	Users  UserState
	Popup  PopupState
}

// Listener receives a full snapshot after every reduction.
type Listener func(Snapshot)

// Store composes the state slices. Reductions for a slice are serialized by
// that slice's mutex; no two components write the same slice.
type Store struct {
	authMu   sync.Mutex
	auth     AuthState
	booksMu  sync.Mutex
	books    BookState
	borrowMu sync.Mutex
	borrow   BorrowState
	usersMu  sync.Mutex
	users    UserState
	popupMu  sync.Mutex
	popup    PopupState

	subMu sync.Mutex
	subs  map[int]Listener
	nextN int
}

// New creates an empty store. The store lives for the whole process run.
func New() *Store {
	return &Store{subs: make(map[int]Listener)}
}

// Subscribe registers a listener and returns an unsubscribe function.
// Listeners are invoked synchronously after each reduction, exactly once per
// dispatched outcome.
func (s *Store) Subscribe(l Listener) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextN
	s.nextN++
	s.subs[id] = l
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// Snapshot returns a consistent copy of the current state.
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	s.authMu.Lock()
	snap.Auth = s.auth
	s.authMu.Unlock()
	s.booksMu.Lock()
	snap.Books = s.books
	s.booksMu.Unlock()
	s.borrowMu.Lock()
	snap.Borrow = s.borrow
	s.borrowMu.Unlock()
	s.usersMu.Lock()
	snap.Users = s.users
	s.usersMu.Unlock()
	s.popupMu.Lock()
	snap.Popup = s.popup
	s.popupMu.Unlock()
	return snap
}

// DispatchAuth applies an auth outcome.
func (s *Store) DispatchAuth(o AuthOutcome) {
	s.authMu.Lock()
	s.auth = ReduceAuth(s.auth, o)
	s.authMu.Unlock()
	s.notify()
}

// DispatchBooks applies a book outcome.
func (s *Store) DispatchBooks(o BookOutcome) {
	s.booksMu.Lock()
	s.books = ReduceBooks(s.books, o)
	s.booksMu.Unlock()
	s.notify()
}

// DispatchBorrow applies a borrow outcome.
func (s *Store) DispatchBorrow(o BorrowOutcome) {
	s.borrowMu.Lock()
	s.borrow = ReduceBorrow(s.borrow, o)
	s.borrowMu.Unlock()
	s.notify()
}

// DispatchUsers applies a user-administration outcome.
func (s *Store) DispatchUsers(o UserOutcome) {
	s.usersMu.Lock()
	s.users = ReduceUsers(s.users, o)
	s.usersMu.Unlock()
	s.notify()
}

// DispatchPopup applies a popup visibility outcome.
func (s *Store) DispatchPopup(o PopupOutcome) {
	s.popupMu.Lock()
	s.popup = ReducePopup(s.popup, o)
	s.popupMu.Unlock()
	s.notify()
}

func (s *Store) notify() {
	snap := s.Snapshot()
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, l := range s.subs {
		listeners = append(listeners, l)
	}
	s.subMu.Unlock()
	for _, l := range listeners {
		l(snap)
	}
}
