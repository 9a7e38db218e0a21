package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for transfer failures. Use errors.Is to test for them.
var (
	// ErrNotFound indicates the key is absent from the bucket.
	ErrNotFound = errors.New("storage: object not found")

	// ErrAccessDenied indicates the credentials lack permission for the operation.
	ErrAccessDenied = errors.New("storage: access denied")

	// ErrTransfer covers every other transport or protocol failure.
	ErrTransfer = errors.New("storage: transfer failed")

	// ErrSerialization indicates an artifact could not be encoded before upload.
	ErrSerialization = errors.New("storage: serialization failed")

	// ErrInvalidPath indicates a string that is not bucket/key shaped.
	ErrInvalidPath = errors.New("storage: invalid object path")
)

// ErrorKind names the class of a transfer failure.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindNotFound      ErrorKind = "not_found"
	KindAccessDenied  ErrorKind = "access_denied"
	KindTransfer      ErrorKind = "transfer_error"
	KindSerialization ErrorKind = "serialization_error"
	KindInvalidPath   ErrorKind = "invalid_path"
)

// Error is a failed operation against one object.
type Error struct {
	// Op is the operation that failed, e.g. "download" or "head".
	Op string
	// Path is the object involved; empty for listings.
	Path string
	// Kind is one of the sentinel errors above.
	Kind error
	// Err is the underlying cause, may be nil.
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an *Error of the given kind.
func NewError(op, path string, kind, cause error) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Err: cause}
}

// KindOf classifies err against the sentinel errors.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, ErrSerialization):
		return KindSerialization
	case errors.Is(err, ErrInvalidPath):
		return KindInvalidPath
	default:
		return KindTransfer
	}
}
