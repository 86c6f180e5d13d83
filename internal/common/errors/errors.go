// Package errors provides standardized error handling for the conversation core.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeMerchantNotFound ErrorCode = "MERCHANT_NOT_FOUND"
	ErrCodeInvalidSession   ErrorCode = "INVALID_SESSION"
	ErrCodeEmptyMessage     ErrorCode = "EMPTY_MESSAGE"

	ErrCodeClassifierUnavailable ErrorCode = "CLASSIFIER_UNAVAILABLE"
	ErrCodeClassifierTimeout     ErrorCode = "CLASSIFIER_TIMEOUT"

	ErrCodeStoreUnavailable  ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeRepositoryFailure ErrorCode = "REPOSITORY_FAILURE"

	ErrCodeBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"

	ErrCodeStoreNotConnected   ErrorCode = "STORE_NOT_CONNECTED"
	ErrCodeProductSearchFailed ErrorCode = "PRODUCT_SEARCH_FAILED"
	ErrCodeCartUpdateFailed    ErrorCode = "CART_UPDATE_FAILED"
	ErrCodeCheckoutFailed      ErrorCode = "CHECKOUT_FAILED"

	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeHandlerNotFound  ErrorCode = "HANDLER_NOT_FOUND"

	ErrCodeAuditIndexFailed   ErrorCode = "AUDIT_INDEX_FAILED"
	ErrCodeNotificationFailed ErrorCode = "NOTIFICATION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// AsStandard extracts a *StandardError from err, or wraps it as an
// internal error when it is anything else.
func AsStandard(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewMerchantNotFoundError creates a non-retryable entry validation error.
func NewMerchantNotFoundError(merchantID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMerchantNotFound,
		Message:   "Merchant not found",
		Details:   fmt.Sprintf("merchantId: %s", merchantID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidSessionError creates a non-retryable entry validation error.
func NewInvalidSessionError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidSession,
		Message:   "Invalid session identifier",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmptyMessageError creates a non-retryable entry validation error.
func NewEmptyMessageError() *StandardError {
	return &StandardError{
		Code:      ErrCodeEmptyMessage,
		Message:   "Inbound message is empty",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewClassifierUnavailableError creates a retryable classifier boundary error.
func NewClassifierUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeClassifierUnavailable,
		Message:   "Intent classifier unreachable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewClassifierTimeoutError creates a retryable classifier timeout error.
func NewClassifierTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeClassifierTimeout,
		Message:   "Intent classifier timed out",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreUnavailableError creates a retryable key-value store error.
func NewStoreUnavailableError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Key-value store unreachable",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRepositoryFailureError creates a retryable merchant repository error.
func NewRepositoryFailureError(query string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRepositoryFailure,
		Message:   "Merchant repository query failed",
		Details:   fmt.Sprintf("query: %s, error: %s", query, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewBudgetExceededError creates a non-retryable budget gate error.
func NewBudgetExceededError(merchantID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBudgetExceeded,
		Message:   "Merchant monthly budget exhausted",
		Details:   fmt.Sprintf("merchantId: %s", merchantID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreNotConnectedError creates a non-retryable commerce provider error.
func NewStoreNotConnectedError(merchantID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreNotConnected,
		Message:   "Merchant has no connected store",
		Details:   fmt.Sprintf("merchantId: %s", merchantID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProductSearchFailedError creates a retryable commerce provider error.
func NewProductSearchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProductSearchFailed,
		Message:   "Product search failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCartUpdateFailedError creates a retryable commerce provider error.
func NewCartUpdateFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCartUpdateFailed,
		Message:   "Cart update failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCheckoutFailedError creates a retryable commerce provider error.
func NewCheckoutFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCheckoutFailed,
		Message:   "Checkout creation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(personality, kind string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Response template not found",
		Details:   fmt.Sprintf("personality: %s, kind: %s", personality, kind),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewHandlerNotFoundError creates a non-retryable dispatch error.
func NewHandlerNotFoundError(intent string) *StandardError {
	return &StandardError{
		Code:      ErrCodeHandlerNotFound,
		Message:   "No handler registered for intent",
		Details:   fmt.Sprintf("intent: %s", intent),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Error Classification
// ==========================

// GetErrorCategory returns a coarse category for metrics and logging.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeMerchantNotFound, ErrCodeInvalidSession, ErrCodeEmptyMessage:
		return "validation"
	case ErrCodeBudgetExceeded:
		return "budget"
	case ErrCodeClassifierUnavailable, ErrCodeClassifierTimeout:
		return "classifier"
	case ErrCodeStoreUnavailable, ErrCodeRepositoryFailure:
		return "storage"
	case ErrCodeStoreNotConnected, ErrCodeProductSearchFailed,
		ErrCodeCartUpdateFailed, ErrCodeCheckoutFailed:
		return "commerce"
	case ErrCodeTemplateNotFound, ErrCodeHandlerNotFound:
		return "dispatch"
	default:
		return "internal"
	}
}

// IsTransient reports whether an error is a transient dependency failure
// that the pipeline converts to the generic-failure path.
func IsTransient(err error) bool {
	return AsStandard(err).Retryable
}
