package errors

import "fmt"

// ErrorCode identifies a class of store error.
type ErrorCode string

const (
	ErrValidation         ErrorCode = "VALIDATION"          // 400, malformed or out-of-range input, not retried
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrConflict           ErrorCode = "CONFLICT"            // 409
	ErrIntegrity          ErrorCode = "INTEGRITY"           // 500, referential inconsistency, fatal to the operation
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE" // 503, transient, eligible for bounded retry at the storage boundary
	ErrIndexSync          ErrorCode = "INDEX_SYNC"          // 500, primary write succeeded, derived index did not
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// StoreError is a structured error with code, HTTP status, and details.
// Deduplicated ingestion is not represented here; it is a normal result,
// surfaced as {id, deduplicated: true} by the engine.
type StoreError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidation creates a 400 error for malformed or out-of-range input.
func NewValidation(msg string) *StoreError {
	return &StoreError{Code: ErrValidation, Status: 400, Message: msg}
}

// NewValidationf creates a 400 error with a formatted message.
func NewValidationf(format string, args ...any) *StoreError {
	return &StoreError{Code: ErrValidation, Status: 400, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound creates a 404 error for a missing record.
func NewNotFound(what string, id any) *StoreError {
	return &StoreError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %v", what, id),
		Details: map[string]any{"identifier": id},
	}
}

// NewConflict creates a 409 error.
func NewConflict(msg string) *StoreError {
	return &StoreError{Code: ErrConflict, Status: 409, Message: msg}
}

// NewIntegrity creates an integrity-violation error, e.g. an edge referencing
// a segment that does not exist. Never silently dropped.
func NewIntegrity(msg string) *StoreError {
	return &StoreError{Code: ErrIntegrity, Status: 500, Message: msg}
}

// NewStorageUnavailable wraps a transient storage failure.
func NewStorageUnavailable(err error) *StoreError {
	return &StoreError{Code: ErrStorageUnavailable, Status: 503, Message: err.Error()}
}

// NewIndexSync records a derived-index write failure. The primary write
// stands; the inconsistency must be reconciled by a repair pass.
func NewIndexSync(err error) *StoreError {
	return &StoreError{Code: ErrIndexSync, Status: 500, Message: err.Error()}
}

// NewInternal creates a 500 error for unexpected failures.
func NewInternal(err error) *StoreError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &StoreError{Code: ErrInternal, Status: 500, Message: msg}
}

// Is checks whether err is a StoreError carrying the given code.
func Is(err error, code ErrorCode) bool {
	if se, ok := err.(*StoreError); ok {
		return se.Code == code
	}
	return false
}

// StatusOf returns the HTTP status for an error, defaulting to 500.
func StatusOf(err error) int {
	if se, ok := err.(*StoreError); ok {
		return se.Status
	}
	return 500
}
