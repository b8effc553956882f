// Package apperror provides structured errors rendered as RFC 7807 style
// problem bodies. Every error a client may act on is an *AppError.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeInternal = "INTERNAL_ERROR"

	CodeValidation = "VALIDATION_ERROR"

	// Import file problems the operator can fix by exporting again.
	CodeHeaderNotFound = "HEADER_NOT_FOUND"
	CodeMissingColumns = "MISSING_COLUMNS"
	CodeNoValidRows    = "NO_VALID_ROWS"

	CodeBusinessRule           = "BUSINESS_RULE_VIOLATION"
	CodeInvalidState           = "INVALID_STATE"
	CodeAlreadyRolledBack      = "ALREADY_ROLLED_BACK"
	CodeRefundExceedsRemaining = "REFUND_EXCEEDS_REMAINING"

	CodeGateway = "GATEWAY_ERROR"

	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeDuplicate    = "DUPLICATE_ENTRY"
	CodeIdempotency  = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error type for the service.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	Message string `json:"message"`

	// Details carries fields, ids and quantities the client can show.
	Details map[string]any `json:"details,omitempty"`

	HTTPStatus int `json:"-"`

	// Err is the cause. Logged, never sent to the client.
	Err error `json:"-"`
}

func newError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// Body is the JSON problem body sent to clients.
func (e *AppError) Body() map[string]any {
	return map[string]any{
		"code":    e.Code,
		"message": e.Message,
		"details": e.Details,
	}
}

// NewValidation rejects malformed input before anything is persisted (400).
func NewValidation(message string) *AppError {
	return newError(http.StatusBadRequest, CodeValidation, message)
}

// NewImportFile reports an unusable export file (400). code is one of
// CodeHeaderNotFound, CodeMissingColumns or CodeNoValidRows.
func NewImportFile(code, message string) *AppError {
	return newError(http.StatusBadRequest, code, message)
}

// NewUnauthorized creates an authentication error (401).
func NewUnauthorized(message string) *AppError {
	return newError(http.StatusUnauthorized, CodeUnauthorized, message)
}

// NewForbidden creates an authorization error (403).
func NewForbidden(message string) *AppError {
	return newError(http.StatusForbidden, CodeForbidden, message)
}

// NewNotFound creates a not found error (404).
func NewNotFound(entity string, id any) *AppError {
	return newError(http.StatusNotFound, CodeNotFound, entity+" not found").
		WithDetail("entity", entity).
		WithDetail("id", id)
}

// NewDuplicate creates a duplicate entry error (409).
func NewDuplicate(entity, field, value string) *AppError {
	return newError(http.StatusConflict, CodeDuplicate, fmt.Sprintf("%s with this %s already exists", entity, field)).
		WithDetail("entity", entity).
		WithDetail("field", field).
		WithDetail("value", value)
}

// NewInvalidState rejects an operation the entity's status does not allow (409).
func NewInvalidState(entity string, status string) *AppError {
	return newError(http.StatusConflict, CodeInvalidState, fmt.Sprintf("%s cannot be changed in status %q", entity, status)).
		WithDetail("entity", entity).
		WithDetail("status", status)
}

// NewAlreadyRolledBack is returned when an import batch was already reversed (409).
func NewAlreadyRolledBack(batchID any) *AppError {
	return newError(http.StatusConflict, CodeAlreadyRolledBack, "Import batch has already been rolled back").
		WithDetail("import_batch_id", batchID)
}

// NewIdempotencyConflict is returned while the first request with key is still running (409).
func NewIdempotencyConflict(key string) *AppError {
	return newError(http.StatusConflict, CodeIdempotency, "Operation already in progress or completed").
		WithDetail("idempotency_key", key)
}

// NewIdempotencyMismatch is returned when a key is reused for a different
// operator, route or body (409).
func NewIdempotencyMismatch(key string) *AppError {
	return newError(http.StatusConflict, CodeIdempotency, "Idempotency key mismatch").
		WithDetail("idempotency_key", key)
}

// NewBusinessRule creates a business rule violation error (422).
func NewBusinessRule(code, message string) *AppError {
	return newError(http.StatusUnprocessableEntity, code, message)
}

// NewInternal hides err behind a generic message (500).
func NewInternal(err error) *AppError {
	return newError(http.StatusInternalServerError, CodeInternal, "Internal server error").WithCause(err)
}

// NewGateway wraps a payment provider failure (502).
func NewGateway(err error) *AppError {
	return newError(http.StatusBadGateway, CodeGateway, "Payment gateway request failed").WithCause(err)
}

// IsAppError checks if err has an AppError in its chain.
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError extracts AppError from error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given AppError code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound.
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsDuplicate checks if error is CodeDuplicate.
func IsDuplicate(err error) bool {
	return HasCode(err, CodeDuplicate)
}
