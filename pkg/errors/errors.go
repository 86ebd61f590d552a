// Package errors defines the error taxonomy shared by the indexer and the
// searcher. Every failure surfaced to a caller wraps one of the sentinels
// below so it can be inspected with errors.Is.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrIOFailure      = errors.New("io failure")
	ErrLockHeld       = errors.New("index write lock held")
	ErrParse          = errors.New("query parse error")
	ErrCorruptSegment = errors.New("corrupt segment")
	ErrValidation     = errors.New("validation error")
	ErrClosed         = errors.New("index closed")
	ErrNotFound       = errors.New("not found")
)

// AppError pairs a sentinel with a human readable message.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// IO wraps a storage error so it matches ErrIOFailure while keeping the
// underlying cause reachable through errors.Is / errors.As.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ioError{op: op, err: err}
}

type ioError struct {
	op  string
	err error
}

func (e *ioError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrIOFailure, e.op, e.err)
}

func (e *ioError) Unwrap() []error {
	return []error{ErrIOFailure, e.err}
}

// ParseError reports malformed query syntax. Offset is a byte offset into
// the query string.
type ParseError struct {
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", ErrParse, e.Offset, e.Message)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DocumentError records why a single document of a batch was skipped.
type DocumentError struct {
	Index int
	Err   error
}

func (e DocumentError) Error() string {
	return fmt.Sprintf("document %d: %v", e.Index, e.Err)
}

// BatchError is returned by batch operations when some documents failed.
// The documents that succeeded remain valid.
type BatchError struct {
	Failures []DocumentError
}

func (e *BatchError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("1 document skipped: %v", e.Failures[0])
	}
	return fmt.Sprintf("%d documents skipped, first: %v", len(e.Failures), e.Failures[0])
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Kind maps an error onto a short label for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrLockHeld):
		return "lock_held"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrCorruptSegment):
		return "corrupt_segment"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIOFailure):
		return "io"
	default:
		return "internal"
	}
}

// Is, As and Join re-export the standard helpers so callers importing this
// package under the name "errors" do not need a second import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
