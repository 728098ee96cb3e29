// Package apperror defines the application's error taxonomy.
//
// Every failure a request can hit is one of the sentinel kinds below. Services
// return *AppError values that wrap a kind; the HTTP layer maps the kind to a
// status code and a stable machine-readable code in exactly one place
// (handler.writeError). Nothing outside this package compares error strings.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrDuplicateAccount   = errors.New("duplicate account")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrUploadRejected     = errors.New("upload rejected")
	ErrPersistence        = errors.New("persistence error")
	ErrUpstream           = errors.New("upstream error")
)

// Upload rejection reason codes. They are part of the public API response.
const (
	ReasonBadExtension = "bad_extension"
	ReasonTooManyFiles = "too_many_files"
	ReasonTooLarge     = "too_large"
)

type AppError struct {
	Err     error  // one of the sentinel kinds above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Reason  string // Optional: machine-readable sub-code (upload rejections)
	cause   error  // Optional: underlying error, kept for logs only
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Err, e.cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// DuplicateAccount is returned when an email is already registered.
// The message never includes the email.
func DuplicateAccount() *AppError {
	return &AppError{
		Err:     ErrDuplicateAccount,
		Message: "User already exists",
	}
}

// InvalidCredentials is used for every login failure, whether the email is
// unknown or the password is wrong, so callers cannot enumerate accounts.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Invalid credentials",
	}
}

func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// UploadRejected reports an attachment policy violation. reason is one of the
// Reason* constants.
func UploadRejected(reason, message string) *AppError {
	return &AppError{
		Err:     ErrUploadRejected,
		Message: message,
		Reason:  reason,
	}
}

// Persistence wraps a storage failure. The cause is kept for logging; the
// message shown to clients stays generic.
func Persistence(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrPersistence,
		Message: "failed to " + op,
		cause:   cause,
	}
}

// Upstream wraps a failure of the external responder.
func Upstream(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: message,
		cause:   cause,
	}
}

// ReasonOf returns the reason code carried by err, or "" if there is none.
func ReasonOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}
