package errors

import (
	"errors"
	"fmt"
)

// Domain-specific error types
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateEntry indicates a unique constraint violation
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")

	// ErrAccountNotFound indicates the email account was not found
	ErrAccountNotFound = errors.New("account not found")

	// ErrMessageNotFound indicates the message was not found
	ErrMessageNotFound = errors.New("message not found")

	// ErrThreadNotFound indicates the thread was not found
	ErrThreadNotFound = errors.New("thread not found")

	// ErrAccountInactive indicates the account has been disabled
	ErrAccountInactive = errors.New("account is not active")

	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates forbidden access
	ErrForbidden = errors.New("forbidden")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal server error")

	// Sync-specific errors

	// ErrCredentialsExpired indicates the provider rejected the account's
	// credentials; sync must stop until the user re-authenticates
	ErrCredentialsExpired = errors.New("provider credentials expired")

	// ErrCursorExpired indicates the provider no longer honors the stored
	// resume token; a historical sync must rebuild it
	ErrCursorExpired = errors.New("sync cursor expired")

	// ErrSyncAlreadyRunning indicates another sync holds the account lock
	ErrSyncAlreadyRunning = errors.New("sync already running for account")

	// ErrTransient indicates a retryable provider failure
	ErrTransient = errors.New("transient provider error")

	// ErrMalformedWebhook indicates a webhook payload that could not be parsed
	ErrMalformedWebhook = errors.New("malformed webhook payload")
)

// Error codes for API responses
const (
	CodeNotFound           = "NOT_FOUND"
	CodeDuplicateEntry     = "DUPLICATE_ENTRY"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeAccountInactive    = "ACCOUNT_INACTIVE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeCredentialsExpired = "CREDENTIALS_EXPIRED"
	CodeCursorExpired      = "CURSOR_EXPIRED"
	CodeSyncRunning        = "SYNC_ALREADY_RUNNING"
	CodeMalformedWebhook   = "MALFORMED_WEBHOOK"
)

// AppError represents an application error with context
type AppError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(err error, message string, code string) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrMessageNotFound) ||
		errors.Is(err, ErrThreadNotFound)
}

// IsDuplicateEntry checks if the error is a duplicate entry error
func IsDuplicateEntry(err error) bool {
	return errors.Is(err, ErrDuplicateEntry)
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsCredentialsExpired checks if the error is a credentials expiry error
func IsCredentialsExpired(err error) bool {
	return errors.Is(err, ErrCredentialsExpired)
}

// IsCursorExpired checks if the error is a cursor expiry error
func IsCursorExpired(err error) bool {
	return errors.Is(err, ErrCursorExpired)
}

// IsTransient reports whether a sync failure is worth retrying.
// Constraint violations and credential problems are never transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// GetErrorCode returns the appropriate error code for an error
func GetErrorCode(err error) string {
	switch {
	case IsNotFound(err):
		return CodeNotFound
	case IsDuplicateEntry(err):
		return CodeDuplicateEntry
	case IsInvalidInput(err):
		return CodeInvalidInput
	case errors.Is(err, ErrAccountInactive):
		return CodeAccountInactive
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrCredentialsExpired):
		return CodeCredentialsExpired
	case errors.Is(err, ErrCursorExpired):
		return CodeCursorExpired
	case errors.Is(err, ErrSyncAlreadyRunning):
		return CodeSyncRunning
	case errors.Is(err, ErrMalformedWebhook):
		return CodeMalformedWebhook
	default:
		return CodeInternalError
	}
}
