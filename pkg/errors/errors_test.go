package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{New(ErrLockHeld, "held by pid 12"), "lock_held"},
		{&ParseError{Offset: 3, Message: "unexpected )"}, "parse"},
		{fmt.Errorf("opening segment: %w", Newf(ErrCorruptSegment, "seg %d", 4)), "corrupt_segment"},
		{&ValidationError{Fields: map[string]string{"fields": "required"}}, "validation"},
		{New(ErrClosed, "index is closed"), "closed"},
		{Newf(ErrNotFound, "document %d", 9), "not_found"},
		{IO("writing manifest", fs.ErrPermission), "io"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestIOKeepsCause(t *testing.T) {
	err := IO("opening file", fs.ErrNotExist)
	if !errors.Is(err, ErrIOFailure) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("%v does not match both ErrIOFailure and the cause", err)
	}
	if IO("noop", nil) != nil {
		t.Error("IO(nil) is not nil")
	}
}

func TestValidationErrorMessageSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "second", "a": "first"}}
	msg := err.Error()
	if strings.Index(msg, "a:first") > strings.Index(msg, "b:second") {
		t.Errorf("fields not sorted in %q", msg)
	}
}

func TestBatchError(t *testing.T) {
	err := &BatchError{Failures: []DocumentError{
		{Index: 1, Err: &ValidationError{Fields: map[string]string{"fields": "required"}}},
		{Index: 4, Err: New(ErrClosed, "closing")},
	}}
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrClosed) {
		t.Errorf("%v does not unwrap to its failures", err)
	}
	if !strings.HasPrefix(err.Error(), "2 documents skipped") {
		t.Errorf("Error() = %q", err.Error())
	}
}
