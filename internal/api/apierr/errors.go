package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mcoot/gamewallet/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Stable error codes
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeDuplicateUsername    = "DUPLICATE_USERNAME"
	CodeInvalidReferralCode  = "INVALID_REFERRAL_CODE"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInsufficientBalance  = "INSUFFICIENT_BALANCE"
	CodeUnknownItem          = "UNKNOWN_ITEM"
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	CodeAccountBusy          = "ACCOUNT_BUSY"
	CodeIdempotencyKeyReused = "IDEMPOTENCY_KEY_REUSED"
	CodeNotFound             = "NOT_FOUND"
	CodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	CodeInternalError        = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// IsInternal reports whether err maps to a 500 response
func IsInternal(err error) bool {
	return toHTTPError(err).status == http.StatusInternalServerError
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, model.ErrDuplicateUsername):
		return &httpError{http.StatusConflict, APIError{CodeDuplicateUsername, "Username already exists"}}
	case errors.Is(err, model.ErrInvalidReferralCode):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidReferralCode, "Referral code does not exist"}}
	case errors.Is(err, model.ErrInvalidCredentials):
		return &httpError{http.StatusUnauthorized, APIError{CodeInvalidCredentials, "Invalid username or password"}}
	case errors.Is(err, model.ErrUnauthorized):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid or expired token"}}
	case errors.Is(err, model.ErrInsufficientBalance):
		return &httpError{http.StatusPaymentRequired, APIError{CodeInsufficientBalance, "Insufficient balance"}}
	case errors.Is(err, model.ErrUnknownItem):
		return &httpError{http.StatusBadRequest, APIError{CodeUnknownItem, "Unknown item"}}
	case errors.Is(err, model.ErrInvalidAmount):
		// Amount errors carry the reason (non-positive, over the limit, overflow)
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidAmount, "Invalid amount: " + reason(err, model.ErrInvalidAmount)}}
	case errors.Is(err, model.ErrAccountNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeAccountNotFound, "Account not found"}}
	case errors.Is(err, model.ErrAccountBusy):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeAccountBusy, "Account is busy, retry shortly"}}
	case errors.Is(err, model.ErrIdempotencyKeyReused):
		return &httpError{http.StatusConflict, APIError{CodeIdempotencyKeyReused, "Idempotency key was already used for a different request"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// reason returns the context added when sentinel was wrapped as
// "<sentinel>: <reason>", or the sentinel text alone
func reason(err, sentinel error) string {
	if rest, ok := strings.CutPrefix(err.Error(), sentinel.Error()+": "); ok && rest != "" {
		return rest
	}
	return sentinel.Error()
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewNotFoundError creates a not found error for unknown routes
func NewNotFoundError() error {
	return &httpError{http.StatusNotFound, APIError{CodeNotFound, "Route not found"}}
}

// NewMethodNotAllowedError creates a method not allowed error
func NewMethodNotAllowedError() error {
	return &httpError{http.StatusMethodNotAllowed, APIError{CodeMethodNotAllowed, "Method not allowed"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
