package server

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfwise/shelfwise/internal/models"
)

var (
	ErrEmailTaken     = errors.New("email already registered")
	ErrUserNotFound   = errors.New("user not found")
	ErrUserUnverified = errors.New("user account not verified")
	ErrBookNotFound   = errors.New("book not found")
	ErrNotAvailable   = errors.New("no copies available")
	ErrNoActiveBorrow = errors.New("no active borrow record")
)

// Repository holds users, books and borrow records in process memory. One
// mutex guards all three collections: the over-lending invariant (active
// borrows of a book never exceed its quantity) needs the availability check
// and the record insert to be a single atomic step.
type Repository struct {
	mu      sync.Mutex
	users   map[string]*models.User // keyed by id
	byEmail map[string]string       // lowercase email -> id
	books   map[string]*models.Book
	borrows map[string]*models.BorrowRecord
}

// NewRepository creates an empty repository
func NewRepository() *Repository {
	return &Repository{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
		books:   make(map[string]*models.Book),
		borrows: make(map[string]*models.BorrowRecord),
	}
}

// Users

// CreateUser inserts a user. Email uniqueness is enforced here.
func (r *Repository) CreateUser(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := normalizeEmail(user.Email)
	if _, exists := r.byEmail[email]; exists {
		return ErrEmailTaken
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	clone := *user
	r.users[clone.ID] = &clone
	r.byEmail[email] = clone.ID
	return nil
}

// UserByEmail returns a copy of the user registered under email.
func (r *Repository) UserByEmail(email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userByEmailLocked(email)
}

// UserByID returns a copy of the user with the given id.
func (r *Repository) UserByID(id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// MarkVerified flips the verified flag for the user behind email.
func (r *Repository) MarkVerified(email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := r.users[id]
	user.Verified = true
	user.UpdatedAt = time.Now().UTC()
	clone := *user
	return &clone, nil
}

// UpdatePasswordHash replaces the stored hash for the user with the given id.
func (r *Repository) UpdatePasswordHash(id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// ListUsers returns copies of all users sorted by creation time.
func (r *Repository) ListUsers() []models.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users
}

// Books

// CreateBook inserts a book.
func (r *Repository) CreateBook(book *models.Book) *models.Book {
	r.mu.Lock()
	defer r.mu.Unlock()

	if book.ID == "" {
		book.ID = uuid.New().String()
	}
	clone := *book
	r.books[clone.ID] = &clone

	out := clone
	out.Available = r.availableLocked(&clone)
	return &out
}

// DeleteBook removes a book by id.
func (r *Repository) DeleteBook(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.books[id]; !ok {
		return ErrBookNotFound
	}
	delete(r.books, id)
	return nil
}

// ListBooks returns copies of all books with availability derived from the
// current active borrows.
func (r *Repository) ListBooks() []models.Book {
	r.mu.Lock()
	defer r.mu.Unlock()

	books := make([]models.Book, 0, len(r.books))
	for _, b := range r.books {
		clone := *b
		clone.Available = r.availableLocked(b)
		books = append(books, clone)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].CreatedAt.Before(books[j].CreatedAt) })
	return books
}

// Borrowing

// Lend creates a borrow record for (bookID, email) if a copy is available and
// the user exists and is verified. The check and the insert happen under the
// repository lock, so concurrent lends on the last copy cannot both succeed.
func (r *Repository) Lend(bookID, email string, now time.Time, loanPeriod time.Duration) (*models.BorrowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.userByEmailLocked(email)
	if err != nil {
		return nil, err
	}
	if !user.Verified {
		return nil, ErrUserUnverified
	}

	book, ok := r.books[bookID]
	if !ok {
		return nil, ErrBookNotFound
	}
	if r.activeBorrowsLocked(bookID) >= book.Quantity {
		return nil, ErrNotAvailable
	}

	record := &models.BorrowRecord{
		ID:           uuid.New().String(),
		BookID:       book.ID,
		BookTitle:    book.Title,
		UserID:       user.ID,
		UserEmail:    user.Email,
		BorrowedDate: now,
		DueDate:      now.Add(loanPeriod),
	}
	r.borrows[record.ID] = record

	clone := *record
	return &clone, nil
}

// Return closes the active borrow of bookID held by the user behind email.
// When the user holds several active borrows of the same title, the earliest
// borrowed record is returned first.
func (r *Repository) Return(bookID, email string, now time.Time) (*models.BorrowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.userByEmailLocked(email)
	if err != nil {
		return nil, err
	}

	var oldest *models.BorrowRecord
	for _, rec := range r.borrows {
		if rec.BookID != bookID || rec.UserID != user.ID || rec.Returned {
			continue
		}
		if oldest == nil || rec.BorrowedDate.Before(oldest.BorrowedDate) {
			oldest = rec
		}
	}
	if oldest == nil {
		return nil, ErrNoActiveBorrow
	}

	returnedAt := now
	oldest.Returned = true
	oldest.ReturnedDate = &returnedAt

	clone := *oldest
	return &clone, nil
}

// ListBorrows returns copies of all borrow records, newest first.
func (r *Repository) ListBorrows() []models.BorrowRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collectBorrowsLocked(func(*models.BorrowRecord) bool { return true })
}

// ListBorrowsByUser returns copies of one user's borrow records, newest first.
func (r *Repository) ListBorrowsByUser(userID string) []models.BorrowRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collectBorrowsLocked(func(rec *models.BorrowRecord) bool { return rec.UserID == userID })
}

// ActiveBorrowCount reports how many records are not yet returned.
func (r *Repository) ActiveBorrowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.borrows {
		if !rec.Returned {
			n++
		}
	}
	return n
}

// Locked helpers

func (r *Repository) userByEmailLocked(email string) (*models.User, error) {
	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *r.users[id]
	return &clone, nil
}

func (r *Repository) activeBorrowsLocked(bookID string) int {
	n := 0
	for _, rec := range r.borrows {
		if rec.BookID == bookID && !rec.Returned {
			n++
		}
	}
	return n
}

func (r *Repository) availableLocked(book *models.Book) bool {
	return book.Quantity-r.activeBorrowsLocked(book.ID) > 0
}

func (r *Repository) collectBorrowsLocked(match func(*models.BorrowRecord) bool) []models.BorrowRecord {
	records := make([]models.BorrowRecord, 0, len(r.borrows))
	for _, rec := range r.borrows {
		if match(rec) {
			records = append(records, *rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].BorrowedDate.After(records[j].BorrowedDate)
	})
	return records
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
