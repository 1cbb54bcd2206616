package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// AppError is the boundary error shape. Status drives the HTTP code; Code is
// the optional machine-readable discriminator clients branch on; Details
// carries structured context for actionable denials (quota/payment).
type AppError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`

	// RetryAfter, in seconds, becomes a Retry-After header when set.
	RetryAfter int `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

// Machine-readable error codes.
const (
	CodePaymentFailed  = "PAYMENT_FAILED"
	CodeLimitReached   = "LIMIT_REACHED"
	CodeInviteRequired = "INVITE_REQUIRED"
	CodeInviteInvalid  = "INVITE_INVALID"
)

var (
	ErrBadRequest         = &AppError{Status: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized       = &AppError{Status: http.StatusUnauthorized, Message: "not authenticated"}
	ErrForbidden          = &AppError{Status: http.StatusForbidden, Message: "forbidden"}
	ErrNotFound           = &AppError{Status: http.StatusNotFound, Message: "not found"}
	ErrConflict           = &AppError{Status: http.StatusConflict, Message: "conflict"}
	ErrInternalServer     = &AppError{Status: http.StatusInternalServerError, Message: "internal server error"}
	ErrInvalidCredentials = &AppError{Status: http.StatusUnauthorized, Message: "invalid email or password"}
	ErrEmailAlreadyExists = &AppError{Status: http.StatusConflict, Message: "email already registered"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Message: msg}
}

func NewForbiddenError(msg, code string) *AppError {
	return &AppError{Status: http.StatusForbidden, Message: msg, Code: code}
}

// NewPaymentRequiredError denies usage while the subscription is past due.
func NewPaymentRequiredError() *AppError {
	return &AppError{
		Status:  http.StatusForbidden,
		Message: "your subscription payment failed, please update your payment method",
		Code:    CodePaymentFailed,
	}
}

// LimitDetails is the structured payload of a LIMIT_REACHED denial.
type LimitDetails struct {
	Used     int       `json:"used"`
	Limit    int       `json:"limit"`
	Tier     string    `json:"tier"`
	ResetsAt time.Time `json:"resets_at"`
}

// NewLimitReachedError denies usage for an exhausted monthly allowance.
func NewLimitReachedError(used, limit int, tier string, resetsAt time.Time) *AppError {
	return &AppError{
		Status:  http.StatusForbidden,
		Message: "monthly summary limit reached",
		Code:    CodeLimitReached,
		Details: LimitDetails{Used: used, Limit: limit, Tier: tier, ResetsAt: resetsAt},
	}
}

// NewUpstreamBusyError reports a retryable upstream overload. The caller is
// not charged and may simply try again.
func NewUpstreamBusyError() *AppError {
	return &AppError{
		Status:     http.StatusServiceUnavailable,
		Message:    "the summarization service is busy, please try again in a moment",
		RetryAfter: 30,
	}
}

// NewUpstreamError reports an unreachable or failing upstream.
func NewUpstreamError() *AppError {
	return &AppError{
		Status:  http.StatusBadGateway,
		Message: "the summarization service is currently unavailable",
	}
}

// HandleError writes err as structured JSON. Unknown error types are
// flattened to a generic 500 so no internal detail leaks to the caller.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		w.Header().Set("Content-Type", "application/json")
		if appErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
		}
		w.WriteHeader(appErr.Status)
		json.NewEncoder(w).Encode(appErr)
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
