package models

import "time"

// Role values for User.Role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an identity record in the lending system
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`          // Unique
	PasswordHash string    `json:"-"`              // bcrypt hash (never in JSON)
	Role         string    `json:"role"`           // user/admin
	Verified     bool      `json:"verified"`       // Set by OTP verification
	AvatarURL    string    `json:"avatar_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Book represents a title owned by the library. Availability is derived
// server-side from quantity minus active borrows and must be treated as a
// snapshot by clients.
type Book struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Quantity    int       `json:"quantity"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"created_at"`
}

// BorrowRecord represents a single lending of one copy of a book to a user.
type BorrowRecord struct {
	ID           string     `json:"id"`
	BookID       string     `json:"book_id"`
	BookTitle    string     `json:"book_title"`
	UserID       string     `json:"user_id"`
	UserEmail    string     `json:"user_email"`
	BorrowedDate time.Time  `json:"borrowed_date"`
	DueDate      time.Time  `json:"due_date"`
	Returned     bool       `json:"returned"`
	ReturnedDate *time.Time `json:"returned_date,omitempty"`
}

// Active reports whether the record still counts against the book's quantity.
func (r *BorrowRecord) Active() bool {
	return !r.Returned
}

// Request payloads

// RegisterRequest represents registration request payload
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyRequest represents OTP verification request payload
type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// LoginRequest represents login request payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordRequest represents forgot-password request payload
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents reset-password request payload. The token
// itself travels in the URL path.
type ResetPasswordRequest struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// UpdatePasswordRequest represents update-password request payload
type UpdatePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// AddBookRequest represents admin add-book request payload
type AddBookRequest struct {
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

// BorrowRequest represents lend/return request payload. The book ID travels in
// the URL path; the borrower is addressed by email.
type BorrowRequest struct {
	Email string `json:"email"`
}

// Response payloads

// MessageResponse is the generic success envelope
type MessageResponse struct {
	Message string `json:"message"`
}

// UserResponse wraps a single user snapshot
type UserResponse struct {
	Message string `json:"message,omitempty"`
	User    *User  `json:"user"`
}

// UsersResponse wraps a user list
type UsersResponse struct {
	Users []User `json:"users"`
}

// BookResponse wraps a single book
type BookResponse struct {
	Message string `json:"message,omitempty"`
	Book    *Book  `json:"book"`
}

// BooksResponse wraps a book list
type BooksResponse struct {
	Books []Book `json:"books"`
}

// BorrowResponse wraps a single borrow record
type BorrowResponse struct {
	Message string        `json:"message,omitempty"`
	Record  *BorrowRecord `json:"record"`
}

// BorrowsResponse wraps a borrow record list
type BorrowsResponse struct {
	Records []BorrowRecord `json:"records"`
}
