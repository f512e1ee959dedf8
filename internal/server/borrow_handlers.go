package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/shelfwise/shelfwise/internal/config"
	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// BorrowHandler handles lending endpoints
type BorrowHandler struct {
	cfg    *config.Config
	repo   *Repository
	logger *logrus.Logger
}

// NewBorrowHandler creates a new borrow handler
func NewBorrowHandler(cfg *config.Config, repo *Repository, logger *logrus.Logger) *BorrowHandler {
	return &BorrowHandler{cfg: cfg, repo: repo, logger: logger}
}

// Lend creates a borrow record for one copy of a book (admin). Availability
// is checked and the record inserted atomically in the repository, so two
// concurrent lends on the last copy resolve to one success and one
// NOT_AVAILABLE.
func (h *BorrowHandler) Lend(c *fiber.Ctx) error {
	bookID := c.Params("bookID")

	var req models.BorrowRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.New(apperr.CodeValidation, "invalid request body"))
	}
	if req.Email == "" {
		return writeError(c, apperr.New(apperr.CodeValidation, "borrower email is required"))
	}

	loanPeriod := time.Duration(h.cfg.Lending.LoanPeriodDays) * 24 * time.Hour
	record, err := h.repo.Lend(bookID, req.Email, time.Now().UTC(), loanPeriod)
	if err != nil {
		metrics.RecordLendingOperation("lend", "failure")
		switch err {
		case ErrUserNotFound:
			return writeError(c, apperr.New(apperr.CodeNotFound, "user not found"))
		case ErrUserUnverified:
			return writeError(c, apperr.New(apperr.CodeValidation, "user account not verified"))
		case ErrBookNotFound:
			return writeError(c, apperr.New(apperr.CodeNotFound, "book not found"))
		case ErrNotAvailable:
			return writeError(c, apperr.New(apperr.CodeNotAvailable, "no copies of this book are available"))
		default:
			h.logger.WithError(err).Error("Lend failed")
			return writeError(c, apperr.New(apperr.CodeInternal, "lend failed"))
		}
	}

	metrics.RecordLendingOperation("lend", "success")
	metrics.SetActiveBorrows(h.repo.ActiveBorrowCount())

	h.logger.WithFields(logrus.Fields{
		"record_id": record.ID,
		"book_id":   record.BookID,
		"user_id":   record.UserID,
		"due_date":  record.DueDate,
	}).Info("Book lent")

	return c.Status(fiber.StatusCreated).JSON(models.BorrowResponse{
		Message: "Book lent",
		Record:  record,
	})
}

// Return closes the borrower's oldest active record for the book (admin)
func (h *BorrowHandler) Return(c *fiber.Ctx) error {
	bookID := c.Params("bookID")

	var req models.BorrowRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.New(apperr.CodeValidation, "invalid request body"))
	}
	if req.Email == "" {
		return writeError(c, apperr.New(apperr.CodeValidation, "borrower email is required"))
	}

	record, err := h.repo.Return(bookID, req.Email, time.Now().UTC())
	if err != nil {
		metrics.RecordLendingOperation("return", "failure")
		switch err {
		case ErrUserNotFound:
			return writeError(c, apperr.New(apperr.CodeNotFound, "user not found"))
		case ErrNoActiveBorrow:
			return writeError(c, apperr.New(apperr.CodeNotFound, "no active borrow record for this book and user"))
		default:
			h.logger.WithError(err).Error("Return failed")
			return writeError(c, apperr.New(apperr.CodeInternal, "return failed"))
		}
	}

	metrics.RecordLendingOperation("return", "success")
	metrics.SetActiveBorrows(h.repo.ActiveBorrowCount())

	h.logger.WithFields(logrus.Fields{
		"record_id": record.ID,
		"book_id":   record.BookID,
		"user_id":   record.UserID,
	}).Info("Book returned")

	return c.JSON(models.BorrowResponse{
		Message: "Book returned",
		Record:  record,
	})
}

// ListAll returns every borrow record (admin)
func (h *BorrowHandler) ListAll(c *fiber.Ctx) error {
	return c.JSON(models.BorrowsResponse{Records: h.repo.ListBorrows()})
}

// ListMine returns the calling user's borrow records
func (h *BorrowHandler) ListMine(c *fiber.Ctx) error {
	user := CurrentUser(c)
	return c.JSON(models.BorrowsResponse{Records: h.repo.ListBorrowsByUser(user.ID)})
}
