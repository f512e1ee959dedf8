package lending_test

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwise/shelfwise/internal/gateway"
	"github.com/shelfwise/shelfwise/internal/lending"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/server/servertest"
	"github.com/shelfwise/shelfwise/internal/session"
	"github.com/shelfwise/shelfwise/internal/store"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

type client struct {
	manager *session.Manager
	engine  *lending.Engine
	store   *store.Store
}

func newClient(t *testing.T, gw *servertest.Gateway) *client {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gwClient, err := gateway.New(&gw.Config.Gateway, logger)
	require.NoError(t, err)

	st := store.New()
	return &client{
		manager: session.NewManager(gwClient, st, logger),
		engine:  lending.NewEngine(gwClient, st, logger),
		store:   st,
	}
}

func adminClient(t *testing.T, gw *servertest.Gateway) *client {
	t.Helper()
	c := newClient(t, gw)
	require.NoError(t, c.manager.Login(context.Background(), servertest.AdminEmail, servertest.AdminPassword))
	return c
}

func memberClient(t *testing.T, gw *servertest.Gateway, username, email, password string) *client {
	t.Helper()
	c := newClient(t, gw)
	ctx := context.Background()

	require.NoError(t, c.manager.Register(ctx, username, email, password))
	code := gw.Mailer.LastOTP(email)
	require.NoError(t, c.manager.VerifyOTP(ctx, email, code))
	return c
}

func addBook(t *testing.T, c *client, title string, quantity int) models.Book {
	t.Helper()
	require.NoError(t, c.engine.AddBook(context.Background(), models.AddBookRequest{
		Title:    title,
		Author:   "Test Author",
		Price:    9.99,
		Quantity: quantity,
	}))

	books := c.store.Snapshot().Books.Books
	require.NotEmpty(t, books)
	return books[len(books)-1]
}

func (c *client) books() store.BookState {
	return c.store.Snapshot().Books
}

func (c *client) borrows() store.BorrowState {
	return c.store.Snapshot().Borrow
}

func TestCatalogLifecycle(t *testing.T) {
	gw := servertest.Start(t)
	admin := adminClient(t, gw)
	ctx := context.Background()

	book := addBook(t, admin, "Dune", 2)
	assert.True(t, book.Available)

	require.NoError(t, admin.engine.FetchBooks(ctx))
	state := admin.books()
	require.Len(t, state.Books, 1)
	assert.Equal(t, "Dune", state.Books[0].Title)
	assert.False(t, state.Pending)

	require.NoError(t, admin.engine.DeleteBook(ctx, book.ID))
	assert.Empty(t, admin.books().Books)

	require.NoError(t, admin.engine.FetchBooks(ctx))
	assert.Empty(t, admin.books().Books, "deletion is authoritative on the gateway")
}

func TestAddBookValidation(t *testing.T) {
	gw := servertest.Start(t)
	admin := adminClient(t, gw)

	err := admin.engine.AddBook(context.Background(), models.AddBookRequest{Author: "X"})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	assert.False(t, admin.books().Pending)

	err = admin.engine.AddBook(context.Background(), models.AddBookRequest{
		Title: "Dune", Author: "X", Quantity: -1,
	})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestNonAdminCannotMutateCatalog(t *testing.T) {
	gw := servertest.Start(t)
	admin := adminClient(t, gw)
	member := memberClient(t, gw, "alice", "alice@x.com", "S3cretPass!")

	book := addBook(t, admin, "Dune", 1)

	err := member.engine.AddBook(context.Background(), models.AddBookRequest{
		Title: "Sneaky", Author: "Me", Quantity: 1,
	})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	err = member.engine.DeleteBook(context.Background(), book.ID)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	// Members can still read the catalog.
	require.NoError(t, member.engine.FetchBooks(context.Background()))
	assert.Len(t, member.books().Books, 1)
}

func TestLendRefreshesCaches(t *testing.T) {
	gw := servertest.Start(t)
	admin := adminClient(t, gw)
	memberClient(t, gw, "alice", "alice@x.com", "S3cretPass!")
	ctx := context.Background()

	book := addBook(t, admin, "Dune", 1)

	require.NoError(t, admin.engine.LendBook(ctx, book.ID, "alice@x.com"))

	// The mutation re-fetched the catalog: the last copy is gone.
	state := admin.books()
	require.Len(t, state.Books, 1)
	assert.False(t, state.Books[0].Available)

	borrow := admin.borrows()
	assert.False(t, borrow.Pending)
	require.Len(t, borrow.All, 1)
	assert.Equal(t, book.ID, borrow.All[0].BookID)
	assert.False(t, borrow.All[0].Returned)
	assert.NotEmpty(t, borrow.Notice)
}

func TestLendUnavailableBookFails(t *testing.T) {
	gw := servertest.Start(t)
	admin := adminClient(t, gw)
	memberClient(t, gw, "alice", "alice@x.com", "S3cretPass!")
	memberClient(t, gw, "bob", "bob@x.com", "S3cretPass2!")
	ctx := context.Background()

	book := addBook(t, admin, "Dune", 1)
	require.NoError(t, admin.engine.LendBook(ctx, book.ID, "alice@x.com"))

	err := admin.engine.LendBook(ctx, book.ID, "bob@x.com")
	assert.Equal(t, apperr.CodeNotAvailable, apperr.CodeOf(err))
	assert.False(t, admin.borrows().Pending)
}

func TestLastCopyRaceResolvesOnGateway(t *testing.T) {
	gw := servertest.Start(t)
	adminA := adminClient(t, gw)
	adminB := adminClient(t, gw)
	memberClient(t, gw, "alice", "alice@x.com", "S3cretPass!")
	memberClient(t, gw, "bob", "bob@x.com", "S3cretPass2!")
	ctx := context.Background()

	book := addBook(t, adminA, "Dune", 1)

	// Both admins see the copy as available in their caches; only the
	// gateway decides who gets it.
	require.NoError(t, adminB.engine.FetchBooks(ctx))
	require.True(t, adminB.books().Books[0].Available)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = adminA.engine.LendBook(ctx, book.ID, "alice@x.com")
	}()
	go func() {
		defer wg.Done()
		errs[1] = adminB.engine.LendBook(ctx, book.ID, "bob@x.com")
	}()
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.Equal(t, apperr.CodeNotAvailable, apperr.CodeOf(err))
		}
	}
	assert.Equal(t, 1, successes, "exactly one admin lends the last copy")
}

func TestReturnBook(t *testing.T) {
	gw := servertest.Start(t)
	admin := adminClient(t, gw)
	member := memberClient(t, gw, "alice", "alice@x.com", "S3cretPass!")
	ctx := context.Background()

	book := addBook(t, admin, "Dune", 1)
	require.NoError(t, admin.engine.LendBook(ctx, book.ID, "alice@x.com"))

	// The member sees their active borrow.
	require.NoError(t, member.engine.FetchBorrowed(ctx, store.ScopeSelf))
	mine := member.borrows().Mine
	require.Len(t, mine, 1)
	assert.False(t, mine[0].Returned)

	require.NoError(t, admin.engine.ReturnBook(ctx, book.ID, "alice@x.com"))

	// Post-return refresh restored availability and closed the record.
	assert.True(t, admin.books().Books[0].Available)
	all := admin.borrows().All
	require.Len(t, all, 1)
	assert.True(t, all[0].Returned)
	require.NotNil(t, all[0].ReturnedDate)

	err := admin.engine.ReturnBook(ctx, book.ID, "alice@x.com")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err), "no active borrow left to return")
}

func TestBorrowScopesStaySeparate(t *testing.T) {
	gw := servertest.Start(t)
	admin := adminClient(t, gw)
	member := memberClient(t, gw, "alice", "alice@x.com", "S3cretPass!")
	memberClient(t, gw, "bob", "bob@x.com", "S3cretPass2!")
	ctx := context.Background()

	dune := addBook(t, admin, "Dune", 2)
	require.NoError(t, admin.engine.LendBook(ctx, dune.ID, "alice@x.com"))
	require.NoError(t, admin.engine.LendBook(ctx, dune.ID, "bob@x.com"))

	require.NoError(t, member.engine.FetchBorrowed(ctx, store.ScopeSelf))
	assert.Len(t, member.borrows().Mine, 1, "self scope sees only the caller's records")

	err := member.engine.FetchBorrowed(ctx, store.ScopeAll)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err), "all scope is admin only")

	require.NoError(t, admin.engine.FetchBorrowed(ctx, store.ScopeAll))
	assert.Len(t, admin.borrows().All, 2)
}

func TestLendValidatesEmailLocally(t *testing.T) {
	gw := servertest.Start(t)
	admin := adminClient(t, gw)

	book := addBook(t, admin, "Dune", 1)

	err := admin.engine.LendBook(context.Background(), book.ID, "  ")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	assert.False(t, admin.borrows().Pending)
}

func TestLendToUnknownUser(t *testing.T) {
	gw := servertest.Start(t)
	admin := adminClient(t, gw)

	book := addBook(t, admin, "Dune", 1)

	err := admin.engine.LendBook(context.Background(), book.ID, "ghost@x.com")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestSelectedBookFollowsCatalog(t *testing.T) {
	gw := servertest.Start(t)
	admin := adminClient(t, gw)
	ctx := context.Background()

	book := addBook(t, admin, "Dune", 1)

	admin.engine.SelectBook(book)
	require.NotNil(t, admin.books().Selected)
	assert.Equal(t, book.ID, admin.books().Selected.ID)

	require.NoError(t, admin.engine.DeleteBook(ctx, book.ID))
	assert.Nil(t, admin.books().Selected, "deleting the open book closes the view")
}
