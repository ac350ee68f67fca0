package fieldstore

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrIO           ErrorKind = "io"
	ErrSQL          ErrorKind = "sql"
	ErrSchema       ErrorKind = "schema"
	ErrConflict     ErrorKind = "conflict"
	ErrCycle        ErrorKind = "cycle"
	ErrTypeMismatch ErrorKind = "type_mismatch"
	ErrNotFound     ErrorKind = "not_found"
	ErrFeature      ErrorKind = "feature_missing"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	base := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Field != "" {
		base = fmt.Sprintf("%s (field=%s)", base, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the error represents a transient storage
// failure; the task queue uses it to decide on retry.
func (e *Error) Retryable() bool {
	return e.Kind == ErrSQL || e.Kind == ErrIO
}

func Wrap(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func New(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func SchemaError(msg string) *Error {
	return &Error{Kind: ErrSchema, Message: msg}
}

func ConflictError(fullPath string) *Error {
	return &Error{Kind: ErrConflict, Field: fullPath, Message: "full_path already exists in blueprint"}
}

func CycleError(msg string) *Error {
	return &Error{Kind: ErrCycle, Message: msg}
}

func NotFoundError(what string) *Error {
	return &Error{Kind: ErrNotFound, Message: what + " not found"}
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
