package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNotProcessing     = errors.New("dictation is no longer processing")
	ErrWrongState        = errors.New("dictation is not in the required state")
	ErrExtractionClaimed = errors.New("extraction already in progress")
	ErrAlreadyExtracted  = errors.New("structured note already exists")
	ErrInvalidJSON       = errors.New("invalid JSON from extraction engine")
	ErrSchemaValidation  = errors.New("schema validation failed")
	ErrUnauthenticated   = errors.New("caller identity is required")
	ErrForbidden         = errors.New("access denied")
	ErrSignatureMismatch = errors.New("signed url is invalid or expired")
)

// Kind classifies an error for the API boundary.
type Kind string

const (
	KindInput           Kind = "input"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindStorage         Kind = "storage"
	KindState           Kind = "state"
	KindConflict        Kind = "conflict"
	KindTooLarge        Kind = "too_large"
	KindUpstream        Kind = "upstream"
	KindTimeout         Kind = "timeout"
	KindContent         Kind = "content"
	KindInternal        Kind = "internal"
)

// Error carries a machine-readable reason alongside the human message.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

func Wrap(err error, kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason of the first *Error in err's chain, or "internal_error".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return "internal_error"
}

// ValidationError lists every field that failed a schema check.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("schema validation failed: %s", strings.Join(e.Fields, ", "))
}

func (e ValidationError) Unwrap() error {
	return ErrSchemaValidation
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
