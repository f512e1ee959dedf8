package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// BookHandler handles catalog endpoints
type BookHandler struct {
	repo   *Repository
	logger *logrus.Logger
}

// NewBookHandler creates a new book handler
func NewBookHandler(repo *Repository, logger *logrus.Logger) *BookHandler {
	return &BookHandler{repo: repo, logger: logger}
}

// List returns the full catalog with derived availability
func (h *BookHandler) List(c *fiber.Ctx) error {
	return c.JSON(models.BooksResponse{Books: h.repo.ListBooks()})
}

// Create adds a book (admin)
func (h *BookHandler) Create(c *fiber.Ctx) error {
	var req models.AddBookRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.New(apperr.CodeValidation, "invalid request body"))
	}
	if req.Title == "" || req.Author == "" {
		return writeError(c, apperr.New(apperr.CodeValidation, "title and author are required"))
	}
	if req.Price < 0 || req.Quantity < 0 {
		return writeError(c, apperr.New(apperr.CodeValidation, "price and quantity must not be negative"))
	}

	book := h.repo.CreateBook(&models.Book{
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
		CreatedAt:   time.Now().UTC(),
	})

	h.logger.WithFields(logrus.Fields{
		"book_id":  book.ID,
		"title":    book.Title,
		"quantity": book.Quantity,
	}).Info("Book created")

	return c.Status(fiber.StatusCreated).JSON(models.BookResponse{
		Message: "Book added",
		Book:    book,
	})
}

// Delete removes a book by id (admin)
func (h *BookHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.repo.DeleteBook(id); err != nil {
		return writeError(c, apperr.New(apperr.CodeNotFound, "book not found"))
	}

	h.logger.WithField("book_id", id).Info("Book deleted")

	return c.JSON(models.MessageResponse{Message: "Book deleted"})
}
