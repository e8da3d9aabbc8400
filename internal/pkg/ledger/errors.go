package ledger

import (
	"fmt"
	"net/http"
)

// Category is the failure class of a ledger call.
type Category string

const (
	CategoryNetwork     Category = "NETWORK"
	CategoryAuth        Category = "AUTHENTICATION"
	CategoryValidation  Category = "VALIDATION"
	CategoryConflict    Category = "CONFLICT"
	CategoryNotFound    Category = "NOT_FOUND"
	CategoryServer      Category = "SERVER"
	CategoryCircuitOpen Category = "CIRCUIT_OPEN"
)

// Error is a classified ledger failure carrying the correlation id of
// the call that produced it.
type Error struct {
	Category      Category
	StatusCode    int
	Message       string
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ledger %s (%d): %s [correlation %s]", e.Category, e.StatusCode, e.Message, e.CorrelationID)
	}
	return fmt.Sprintf("ledger %s: %s [correlation %s]", e.Category, e.Message, e.CorrelationID)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure class may be retried locally.
func (e *Error) Retryable() bool {
	switch e.Category {
	case CategoryNetwork, CategoryServer, CategoryCircuitOpen:
		return true
	case CategoryValidation:
		// Request timeout and rate limiting are transient.
		return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// countsAsBreakerFailure reports whether the failure should trip the
// circuit. Client errors do not, except request-timeout and rate-limit.
func (e *Error) countsAsBreakerFailure() bool {
	switch e.Category {
	case CategoryNetwork, CategoryServer, CategoryAuth:
		return true
	case CategoryValidation, CategoryConflict, CategoryNotFound:
		return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func classifyStatus(status int) Category {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryAuth
	case status == http.StatusNotFound:
		return CategoryNotFound
	case status == http.StatusConflict:
		return CategoryConflict
	case status >= 400 && status < 500:
		return CategoryValidation
	default:
		return CategoryServer
	}
}
