package store

import (
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// BorrowScope selects which borrow list a fetch targets.
type BorrowScope string

const (
	ScopeSelf BorrowScope = "self"
	ScopeAll  BorrowScope = "all"
)

// BorrowState caches borrow records: the admin-wide view and the current
// user's own view. Both are list replacements, never merges.
type BorrowState struct {
	Pending bool
	All     []models.BorrowRecord
	Mine    []models.BorrowRecord
	Notice  string
	Err     *apperr.Error
}

// BorrowOutcome is a terminal or pending result of a borrow action.
type BorrowOutcome interface{ isBorrowOutcome() }

type BorrowPending struct{}

// BorrowsFetched replaces one of the cached lists wholesale.
type BorrowsFetched struct {
	Scope   BorrowScope
	Records []models.BorrowRecord
}

// BorrowMutated resolves a successful lend or return. The caches are not
// touched here: the engine re-fetches authoritative lists afterwards instead
// of recomputing availability locally.
type BorrowMutated struct {
	Notice string
}

type BorrowFailed struct {
	Err *apperr.Error
}

func (BorrowPending) isBorrowOutcome()  {}
func (BorrowsFetched) isBorrowOutcome() {}
func (BorrowMutated) isBorrowOutcome()  {}
func (BorrowFailed) isBorrowOutcome()   {}

// ReduceBorrow is the pure reducer for the borrow slice.
func ReduceBorrow(s BorrowState, o BorrowOutcome) BorrowState {
	switch v := o.(type) {
	case BorrowPending:
		s.Pending = true
		s.Notice = ""
		s.Err = nil
	case BorrowsFetched:
		s.Pending = false
		if v.Scope == ScopeAll {
			s.All = v.Records
		} else {
			s.Mine = v.Records
		}
	case BorrowMutated:
		s.Pending = false
		s.Notice = v.Notice
	case BorrowFailed:
		s.Pending = false
		s.Err = v.Err
	}
	return s
}
