// Package errors defines the error taxonomy shared by the resolvers, the
// bucket operations and the HTTP layer. Operations return *Error values; the
// HTTP layer is the only place a Kind becomes a status code.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an operation failure by cause.
type Kind int

const (
	// KindInternal covers storage transport failures and local IO failures.
	KindInternal Kind = iota
	// KindBadRequest means the caller referenced something invalid, such as
	// a bucket that does not exist.
	KindBadRequest
	// KindConflict means the request collides with existing state: a
	// duplicate create, a non-empty delete, an existing file.
	KindConflict
	// KindNotFound means a looked-up entity is absent.
	KindNotFound
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to the status code surfaced to callers. Conflicts
// share 400 with bad requests.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is an operation failure with a machine-readable code, a kind, a
// human-readable message and an optional cause.
type Error struct {
	// Code identifies the condition (e.g., "NoSuchBucket", "BucketNotEmpty").
	Code string
	// Kind decides the status code at the HTTP boundary.
	Kind Kind
	// Message is a human-readable description of the error.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, ErrBucketExists) works on copies carrying a cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Pre-defined errors for the conditions the operations distinguish.
var (
	// ErrNoSuchBucket is returned when an operation requires a bucket that
	// does not exist. It is a bad request, not a not-found.
	ErrNoSuchBucket = &Error{
		Code:    "NoSuchBucket",
		Kind:    KindBadRequest,
		Message: "The specified bucket does not exist",
	}

	// ErrNoSuchObject is returned when a required object is absent.
	ErrNoSuchObject = &Error{
		Code:    "NoSuchObject",
		Kind:    KindBadRequest,
		Message: "The specified object does not exist in the bucket",
	}

	// ErrBucketExists is returned when creating a bucket that already exists.
	ErrBucketExists = &Error{
		Code:    "BucketAlreadyExists",
		Kind:    KindConflict,
		Message: "The requested bucket already exists",
	}

	// ErrBucketNotEmpty is returned when deleting a bucket that still holds objects.
	ErrBucketNotEmpty = &Error{
		Code:    "BucketNotEmpty",
		Kind:    KindConflict,
		Message: "The bucket you tried to delete is not empty",
	}

	// ErrBucketAlreadyEmpty is returned when emptying a bucket with no objects.
	ErrBucketAlreadyEmpty = &Error{
		Code:    "BucketAlreadyEmpty",
		Kind:    KindConflict,
		Message: "The bucket is already empty",
	}

	// ErrObjectExists is returned when uploading a file whose name is already in the bucket.
	ErrObjectExists = &Error{
		Code:    "ObjectAlreadyExists",
		Kind:    KindConflict,
		Message: "A matching object is already in the bucket",
	}

	// ErrAlreadyDownloaded is returned when the download target exists locally.
	ErrAlreadyDownloaded = &Error{
		Code:    "AlreadyDownloaded",
		Kind:    KindConflict,
		Message: "The file already exists in the downloads directory",
	}

	// ErrInvalidArgument is returned when a request field is missing or malformed.
	ErrInvalidArgument = &Error{
		Code:    "InvalidArgument",
		Kind:    KindBadRequest,
		Message: "Invalid Argument",
	}

	// ErrNotFound is returned by lookups that came up empty.
	ErrNotFound = &Error{
		Code:    "NotFound",
		Kind:    KindNotFound,
		Message: "Nothing matched the request",
	}

	// ErrInternal is returned for storage and local IO failures.
	ErrInternal = &Error{
		Code:    "InternalError",
		Kind:    KindInternal,
		Message: "We encountered an internal error. Please try again.",
	}
)

// Internal wraps cause as an internal error.
func Internal(cause error) *Error {
	return ErrInternal.WithCause(cause)
}

// KindOf returns the kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus returns the status code for err; nil maps to 200.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return KindOf(err).HTTPStatus()
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }
