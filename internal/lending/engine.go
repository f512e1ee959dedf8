// Package lending owns the book catalog and borrow record caches. The engine
// is stateless per call: caches live in the store and are replaced wholesale
// on fetch. After a lend or return the engine re-fetches the authoritative
// lists instead of adjusting counts locally; availability derived on the
// client is never trusted as a precondition.
package lending

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/shelfwise/shelfwise/internal/gateway"
	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/store"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// Engine drives book and borrow actions through the state store.
type Engine struct {
	gw     *gateway.Client
	store  *store.Store
	logger *logrus.Logger
}

// NewEngine creates a lending engine
func NewEngine(gw *gateway.Client, st *store.Store, logger *logrus.Logger) *Engine {
	return &Engine{gw: gw, store: st, logger: logger}
}

// FetchBooks replaces the catalog cache with the gateway's current list.
func (e *Engine) FetchBooks(ctx context.Context) error {
	e.store.DispatchBooks(store.BooksPending{})

	books, err := e.gw.ListBooks(ctx)
	if err != nil {
		return e.failBooks("fetch_books", err)
	}

	metrics.RecordAction("fetch_books", "success")
	e.store.DispatchBooks(store.BooksFetched{Books: books})
	return nil
}

// AddBook creates a book and appends it to the cache (admin).
func (e *Engine) AddBook(ctx context.Context, req models.AddBookRequest) error {
	e.store.DispatchBooks(store.BooksPending{})

	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Author) == "" {
		return e.failBooks("add_book", apperr.New(apperr.CodeValidation, "title and author are required"))
	}
	if req.Price < 0 || req.Quantity < 0 {
		return e.failBooks("add_book", apperr.New(apperr.CodeValidation, "price and quantity must not be negative"))
	}

	book, err := e.gw.AddBook(ctx, req)
	if err != nil {
		return e.failBooks("add_book", err)
	}

	e.logger.WithField("book_id", book.ID).Info("Book added")
	metrics.RecordAction("add_book", "success")
	e.store.DispatchBooks(store.BookAdded{Book: *book})
	return nil
}

// DeleteBook removes a book and drops it from the cache (admin).
func (e *Engine) DeleteBook(ctx context.Context, id string) error {
	e.store.DispatchBooks(store.BooksPending{})

	if err := e.gw.DeleteBook(ctx, id); err != nil {
		return e.failBooks("delete_book", err)
	}

	e.logger.WithField("book_id", id).Info("Book deleted")
	metrics.RecordAction("delete_book", "success")
	e.store.DispatchBooks(store.BookDeleted{ID: id})
	return nil
}

// FetchBorrowed replaces one of the borrow caches, last fetch wins.
func (e *Engine) FetchBorrowed(ctx context.Context, scope store.BorrowScope) error {
	e.store.DispatchBorrow(store.BorrowPending{})

	var (
		records []models.BorrowRecord
		err     error
	)
	if scope == store.ScopeAll {
		records, err = e.gw.ListBorrows(ctx)
	} else {
		records, err = e.gw.ListMyBorrows(ctx)
	}
	if err != nil {
		return e.failBorrow("fetch_borrowed", err)
	}

	metrics.RecordAction("fetch_borrowed", "success")
	e.store.DispatchBorrow(store.BorrowsFetched{Scope: scope, Records: records})
	return nil
}

// LendBook lends a copy to the user addressed by email (admin). The
// availability check is the gateway's: two admins racing for the last copy
// resolve there, not in this cache. On success the catalog and the admin
// borrow list are re-fetched so derived availability is authoritative again.
func (e *Engine) LendBook(ctx context.Context, bookID, email string) error {
	e.store.DispatchBorrow(store.BorrowPending{})

	if strings.TrimSpace(email) == "" {
		return e.failBorrow("lend_book", apperr.New(apperr.CodeValidation, "borrower email is required"))
	}

	record, err := e.gw.LendBook(ctx, bookID, email)
	if err != nil {
		return e.failBorrow("lend_book", err)
	}

	e.logger.WithFields(logrus.Fields{
		"book_id":   record.BookID,
		"record_id": record.ID,
		"due_date":  record.DueDate,
	}).Info("Book lent")
	metrics.RecordAction("lend_book", "success")
	e.store.DispatchBorrow(store.BorrowMutated{Notice: "Book lent to " + email})

	e.refresh(ctx)
	return nil
}

// ReturnBook closes the user's oldest active borrow of the book (admin) and
// re-fetches the authoritative lists.
func (e *Engine) ReturnBook(ctx context.Context, bookID, email string) error {
	e.store.DispatchBorrow(store.BorrowPending{})

	if strings.TrimSpace(email) == "" {
		return e.failBorrow("return_book", apperr.New(apperr.CodeValidation, "borrower email is required"))
	}

	record, err := e.gw.ReturnBook(ctx, bookID, email)
	if err != nil {
		return e.failBorrow("return_book", err)
	}

	e.logger.WithFields(logrus.Fields{
		"book_id":   record.BookID,
		"record_id": record.ID,
	}).Info("Book returned")
	metrics.RecordAction("return_book", "success")
	e.store.DispatchBorrow(store.BorrowMutated{Notice: "Book returned by " + email})

	e.refresh(ctx)
	return nil
}

// SelectBook remembers the book opened for viewing.
func (e *Engine) SelectBook(book models.Book) {
	e.store.DispatchBooks(store.BookSelected{Book: book})
}

// ClearSelectedBook drops the current selection.
func (e *Engine) ClearSelectedBook() {
	e.store.DispatchBooks(store.BookSelectionCleared{})
}

// refresh re-fetches the catalog and the admin borrow list after a mutating
// lending action. Refresh failures surface through their own slice errors;
// the mutation itself already resolved.
func (e *Engine) refresh(ctx context.Context) {
	if err := e.FetchBooks(ctx); err != nil {
		e.logger.WithError(err).Warn("Post-mutation book refresh failed")
	}
	if err := e.FetchBorrowed(ctx, store.ScopeAll); err != nil {
		e.logger.WithError(err).Warn("Post-mutation borrow refresh failed")
	}
}

func (e *Engine) failBooks(action string, err error) error {
	appErr := apperr.Normalize(err)
	e.logger.WithFields(logrus.Fields{
		"action": action,
		"code":   appErr.Code,
	}).Warn(appErr.Message)
	metrics.RecordAction(action, "failure")
	e.store.DispatchBooks(store.BooksFailed{Err: appErr})
	return appErr
}

func (e *Engine) failBorrow(action string, err error) error {
	appErr := apperr.Normalize(err)
	e.logger.WithFields(logrus.Fields{
		"action": action,
		"code":   appErr.Code,
	}).Warn(appErr.Message)
	metrics.RecordAction(action, "failure")
	e.store.DispatchBorrow(store.BorrowFailed{Err: appErr})
	return appErr
}
