package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents standardized error codes shared by the client core and the
// lending gateway.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeConflict     Code = "CONFLICT"
	CodeAuth         Code = "AUTH_ERROR"
	CodeForbidden    Code = "FORBIDDEN"
	CodeExpired      Code = "EXPIRED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeNotAvailable Code = "NOT_AVAILABLE"
	CodeNetwork      Code = "NETWORK_ERROR"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// HTTPStatusMap maps error codes to HTTP status codes
var HTTPStatusMap = map[Code]int{
	CodeValidation:   http.StatusBadRequest,
	CodeConflict:     http.StatusConflict,
	CodeAuth:         http.StatusUnauthorized,
	CodeForbidden:    http.StatusForbidden,
	CodeExpired:      http.StatusGone,
	CodeNotFound:     http.StatusNotFound,
	CodeNotAvailable: http.StatusConflict,
	CodeNetwork:      http.StatusBadGateway,
	CodeInternal:     http.StatusInternalServerError,
}

// Response is the wire shape every failed gateway call carries.
type Response struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Error is an application error with a machine-distinguishable code and a
// message that is surfaced verbatim to the caller.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new Error carrying a cause
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// HTTPStatus returns the HTTP status code for this error
func (e *Error) HTTPStatus() int {
	if status, exists := HTTPStatusMap[e.Code]; exists {
		return status
	}
	return http.StatusInternalServerError
}

// ToResponse converts the error to its wire shape
func (e *Error) ToResponse() Response {
	var resp Response
	resp.Error.Code = e.Code
	resp.Error.Message = e.Message
	return resp
}

// FromResponse rebuilds an Error from a decoded wire payload. Unknown or empty
// codes normalize to CodeNetwork so callers always see a member of the taxonomy.
func FromResponse(resp Response, httpStatus int) *Error {
	code := resp.Error.Code
	if _, known := HTTPStatusMap[code]; !known {
		code = CodeNetwork
	}
	message := resp.Error.Message
	if message == "" {
		message = fmt.Sprintf("gateway returned status %d", httpStatus)
	}
	return &Error{Code: code, Message: message}
}

// CodeOf extracts the taxonomy code from any error. Errors outside the
// taxonomy report CodeNetwork: from the client's point of view they are
// indistinguishable from an unreachable gateway.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeNetwork
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// Normalize coerces any error into an *Error, wrapping foreign errors as
// CodeNetwork. It never returns nil for a non-nil input.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Code: CodeNetwork, Message: err.Error(), Cause: err}
}
