package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so cloned errors still compare equal
// to their predefined template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// WrapAs wraps err using the code and status of template.
func WrapAs(err error, template *Error, message string) *Error {
	if message == "" {
		message = template.Message
	}
	return Wrap(err, template.Code, template.Status, message)
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// ErrConfiguration marks a missing or invalid required credential.
	ErrConfiguration = New("CONFIGURATION_ERROR", http.StatusServiceUnavailable, "feature is not configured")
	// ErrAuthentication covers challenge, signature and token exchange failures.
	ErrAuthentication = New("AUTHENTICATION_FAILED", http.StatusUnauthorized, "authentication with storage service failed")
	// ErrTransport covers network failures against the ledger or storage service.
	ErrTransport = New("TRANSPORT_ERROR", http.StatusBadGateway, "upstream request failed")
	// ErrLedgerRejected marks a transaction or call refused by the ledger program.
	ErrLedgerRejected = New("LEDGER_REJECTED", http.StatusUnprocessableEntity, "ledger rejected the operation")
	// ErrDataIntegrity marks malformed data returned by the ledger.
	ErrDataIntegrity = New("DATA_INTEGRITY", http.StatusBadGateway, "ledger returned inconsistent data")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// HasCode reports whether err normalises to an *Error with the given code.
func HasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	return FromError(err).Code == code
}
