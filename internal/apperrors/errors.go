package apperrors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies an application error independently of the transport
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindInvalidState     Kind = "INVALID_STATE"
	KindConflict         Kind = "CONFLICT"
	KindForbidden        Kind = "FORBIDDEN"
	KindCapacityExceeded Kind = "CAPACITY_EXCEEDED"
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindValidation       Kind = "VALIDATION_ERROR"
	KindStorage          Kind = "STORAGE_ERROR"
	KindInternal         Kind = "INTERNAL_ERROR"
)

// Backend names the store an error originated from
type Backend string

const (
	BackendNone        Backend = ""
	BackendRecordStore Backend = "RECORD_STORE"
	BackendSearchIndex Backend = "SEARCH_INDEX"
	BackendBlob        Backend = "BLOB"
)

// Error is the single error type returned by the domain layer
type Error struct {
	Kind    Kind
	Backend Backend
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Backend != BackendNone {
		msg = fmt.Sprintf("%s [%s]", msg, e.Backend)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the cause to errors.Is / errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so sentinels like ErrConflict work
// with errors.Is regardless of message or backend.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is comparisons
var (
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrInvalidState     = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrConflict         = &Error{Kind: KindConflict, Message: "resource already exists"}
	ErrForbidden        = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded, Message: "capacity exceeded"}
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated, Message: "unauthenticated"}
	ErrValidation       = &Error{Kind: KindValidation, Message: "validation error"}
	ErrStorage          = &Error{Kind: KindStorage, Message: "storage error"}
	ErrInternal         = &Error{Kind: KindInternal, Message: "internal server error"}
)

// NotFound reports a missing resource in the given backend
func NotFound(backend Backend, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Backend: backend, Message: fmt.Sprintf(format, args...)}
}

// InvalidState reports an operation not allowed in the current lifecycle state
func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness violation
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports a principal acting outside its rights
func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotInvited is the Forbidden variant raised when no invitation exists
func NotInvited() *Error {
	return Forbidden("user not invited to the event")
}

// CapacityExceeded reports a full event or exhausted reserved slots
func CapacityExceeded(format string, args ...interface{}) *Error {
	return &Error{Kind: KindCapacityExceeded, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated reports a missing or invalid credential
func Unauthenticated(cause error) *Error {
	return &Error{Kind: KindUnauthenticated, Message: "invalid or missing credentials", Cause: cause}
}

// Validation reports malformed input
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps a backend failure
func Storage(backend Backend, cause error) *Error {
	return &Error{Kind: KindStorage, Backend: backend, Message: "storage error", Cause: cause}
}

// Internal wraps an unexpected failure
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Cause: cause}
}

// As extracts an *Error from err, following wrapped causes
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsDomain reports whether err carries a taxonomy kind other than Internal
func IsDomain(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind != KindInternal
}

// HTTPStatus maps an error to the status code returned at the boundary
func HTTPStatus(err error) int {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState:
		return http.StatusUnprocessableEntity
	case KindConflict, KindCapacityExceeded:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindStorage:
		if appErr.Backend == BackendBlob {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// DBContext returns the short backend label sent in the DB-Context header
func DBContext(err error) string {
	appErr, ok := As(err)
	if !ok {
		return ""
	}
	switch appErr.Backend {
	case BackendRecordStore:
		return "PSQL"
	case BackendSearchIndex:
		return "ES"
	case BackendBlob:
		return "BLOB"
	}
	return ""
}
