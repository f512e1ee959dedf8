package store

import (
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// BookState caches the book catalog. The cache is advisory: availability is
// authoritative only on the gateway and is refreshed by fetch actions.
type BookState struct {
	Pending  bool
	Books    []models.Book
	Selected *models.Book
	Err      *apperr.Error
}

// BookOutcome is a terminal or pending result of a book action.
type BookOutcome interface{ isBookOutcome() }

type BooksPending struct{}

// BooksFetched replaces the catalog wholesale, last fetch wins.
type BooksFetched struct {
	Books []models.Book
}

type BookAdded struct {
	Book models.Book
}

type BookDeleted struct {
	ID string
}

type BooksFailed struct {
	Err *apperr.Error
}

// BookSelected remembers the book currently opened for viewing.
type BookSelected struct {
	Book models.Book
}

type BookSelectionCleared struct{}

func (BooksPending) isBookOutcome()         {}
func (BooksFetched) isBookOutcome()         {}
func (BookAdded) isBookOutcome()            {}
func (BookDeleted) isBookOutcome()          {}
func (BooksFailed) isBookOutcome()          {}
func (BookSelected) isBookOutcome()         {}
func (BookSelectionCleared) isBookOutcome() {}

// ReduceBooks is the pure reducer for the book slice.
func ReduceBooks(s BookState, o BookOutcome) BookState {
	switch v := o.(type) {
	case BooksPending:
		s.Pending = true
		s.Err = nil
	case BooksFetched:
		s.Pending = false
		s.Books = v.Books
	case BookAdded:
		s.Pending = false
		books := make([]models.Book, len(s.Books), len(s.Books)+1)
		copy(books, s.Books)
		s.Books = append(books, v.Book)
	case BookDeleted:
		s.Pending = false
		books := make([]models.Book, 0, len(s.Books))
		for _, b := range s.Books {
			if b.ID != v.ID {
				books = append(books, b)
			}
		}
		s.Books = books
		if s.Selected != nil && s.Selected.ID == v.ID {
			s.Selected = nil
		}
	case BooksFailed:
		s.Pending = false
		s.Err = v.Err
	case BookSelected:
		book := v.Book
		s.Selected = &book
	case BookSelectionCleared:
		s.Selected = nil
	}
	return s
}
