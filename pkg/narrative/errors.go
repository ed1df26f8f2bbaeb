package narrative

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is a machine-readable error category.
type ErrorKind string

const (
	KindValidation   ErrorKind = "VALIDATION"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindConflict     ErrorKind = "CONFLICT"
	KindInvalidState ErrorKind = "INVALID_STATE"
	KindInternal     ErrorKind = "INTERNAL"
)

// HTTPStatus maps an error kind to the status code the API returns for it.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the engine's domain error type.
type Error struct {
	Kind     ErrorKind         // Machine-readable category
	Message  string            // Human-readable message
	Metadata map[string]string // Identifiers involved (user_id, quest_id, ...)
	Cause    error             // Wrapped underlying error
}

// Sentinels for errors.Is checks. Matching is by Kind only.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrInvalidState = &Error{Kind: KindInvalidState}
)

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// With returns a copy of e carrying an extra metadata pair.
func (e *Error) With(key, value string) *Error {
	cloned := *e
	cloned.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		cloned.Metadata[k] = v
	}
	cloned.Metadata[key] = value
	return &cloned
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a ValidationError: malformed input or definition.
func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// NotFoundf builds a NotFoundError.
func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// Conflictf builds a ConflictError.
func Conflictf(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

// InvalidStatef builds an InvalidStateError for a disallowed transition.
func InvalidStatef(format string, args ...any) *Error {
	return newError(KindInvalidState, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
