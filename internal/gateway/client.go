// Package gateway is the HTTP+JSON client of the lending gateway. The session
// credential is an opaque cookie; the client only knows it as present or
// absent in its jar.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shelfwise/shelfwise/internal/config"
	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/pkg/apperr"
)

// Client handles communication with the lending gateway
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// New creates a new gateway client with its own cookie jar
func New(cfg *config.GatewayConfig, logger *logrus.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Jar:     jar,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxConnsPerHost:     10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Auth endpoints

// Register creates an unverified account and triggers an OTP challenge.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	var resp models.UserResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// VerifyOTP consumes the OTP challenge for the email and opens a session.
func (c *Client) VerifyOTP(ctx context.Context, req models.VerifyRequest) (*models.User, error) {
	var resp models.UserResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/verify", req, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Login authenticates credentials. It only establishes the session cookie;
// the authoritative user snapshot comes from a follow-up ValidateToken.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) error {
	return c.do(ctx, http.MethodPost, "/api/auth/login", req, nil)
}

// Logout invalidates the session credential server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// ValidateToken exchanges the session credential for the current user.
func (c *Client) ValidateToken(ctx context.Context) (*models.User, error) {
	var resp models.UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/validate-token", nil, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// ForgotPassword requests a reset token. The gateway answers generically
// whether or not the email exists.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	var resp models.MessageResponse
	req := models.ForgotPasswordRequest{Email: email}
	if err := c.do(ctx, http.MethodPost, "/api/auth/forgot-password", req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ResetPassword consumes a reset token exactly once.
func (c *Client) ResetPassword(ctx context.Context, token string, req models.ResetPasswordRequest) (string, error) {
	var resp models.MessageResponse
	path := fmt.Sprintf("/api/auth/reset-password/%s", token)
	if err := c.do(ctx, http.MethodPut, path, req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// UpdatePassword changes the authenticated user's password.
func (c *Client) UpdatePassword(ctx context.Context, req models.UpdatePasswordRequest) (string, error) {
	var resp models.MessageResponse
	if err := c.do(ctx, http.MethodPut, "/api/auth/update-password", req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Book endpoints

// ListBooks fetches the full catalog.
func (c *Client) ListBooks(ctx context.Context) ([]models.Book, error) {
	var resp models.BooksResponse
	if err := c.do(ctx, http.MethodGet, "/api/books", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Books, nil
}

// AddBook creates a book (admin).
func (c *Client) AddBook(ctx context.Context, req models.AddBookRequest) (*models.Book, error) {
	var resp models.BookResponse
	if err := c.do(ctx, http.MethodPost, "/api/books", req, &resp); err != nil {
		return nil, err
	}
	return resp.Book, nil
}

// DeleteBook removes a book by id (admin).
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/books/%s", id), nil, nil)
}

// Borrow endpoints

// LendBook lends one copy of a book to the user addressed by email (admin).
func (c *Client) LendBook(ctx context.Context, bookID, email string) (*models.BorrowRecord, error) {
	var resp models.BorrowResponse
	req := models.BorrowRequest{Email: email}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/borrow/lend/%s", bookID), req, &resp); err != nil {
		return nil, err
	}
	return resp.Record, nil
}

// ReturnBook closes the matching active borrow record (admin).
func (c *Client) ReturnBook(ctx context.Context, bookID, email string) (*models.BorrowRecord, error) {
	var resp models.BorrowResponse
	req := models.BorrowRequest{Email: email}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/borrow/return/%s", bookID), req, &resp); err != nil {
		return nil, err
	}
	return resp.Record, nil
}

// ListBorrows fetches all borrow records (admin).
func (c *Client) ListBorrows(ctx context.Context) ([]models.BorrowRecord, error) {
	var resp models.BorrowsResponse
	if err := c.do(ctx, http.MethodGet, "/api/borrow/all", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// ListMyBorrows fetches the calling user's borrow records.
func (c *Client) ListMyBorrows(ctx context.Context) ([]models.BorrowRecord, error) {
	var resp models.BorrowsResponse
	if err := c.do(ctx, http.MethodGet, "/api/borrow/mine", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// User administration endpoints

// ListUsers fetches the user directory (admin).
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var resp models.UsersResponse
	if err := c.do(ctx, http.MethodGet, "/api/users/all", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// RegisterAdmin creates a verified admin account (admin).
func (c *Client) RegisterAdmin(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	var resp models.UserResponse
	if err := c.do(ctx, http.MethodPost, "/api/users/admin/register", req, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// do performs a request and decodes the response into out (when non-nil).
// Failures normalize into the apperr taxonomy: a structured error payload is
// surfaced verbatim, anything else becomes CodeNetwork.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	start := time.Now()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.CodeInternal, "failed to encode request", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method": method,
			"path":   path,
		}).Warn("Gateway unreachable")
		metrics.RecordGatewayCall(method, path, 0, time.Since(start))
		return apperr.Wrap(apperr.CodeNetwork, "lending gateway unreachable", err)
	}
	defer resp.Body.Close()

	metrics.RecordGatewayCall(method, path, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.CodeNetwork, "failed to read gateway response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(method, path, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return apperr.Wrap(apperr.CodeNetwork, "failed to decode gateway response", err)
		}
	}

	return nil
}

func (c *Client) decodeError(method, path string, status int, data []byte) error {
	var wire apperr.Response
	if err := json.Unmarshal(data, &wire); err != nil || wire.Error.Code == "" {
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": status,
		}).Warn("Gateway returned unstructured error")
		return apperr.Newf(apperr.CodeNetwork, "gateway returned status %d", status)
	}

	appErr := apperr.FromResponse(wire, status)
	c.logger.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": status,
		"code":   appErr.Code,
	}).Debug("Gateway call failed")
	return appErr
}
