// Package apierror classifies failures into the small set of outcomes the
// HTTP surface reports to clients.
package apierror

import (
	"errors"
	"fmt"

	"github.com/splax/backendless/internal/repository"
)

// Kind identifies the class of a failure.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindPreconditionFailed Kind = "precondition_failed"
	KindNotComplete        Kind = "not_complete"
	KindUnsupportedMedia   Kind = "unsupported_media"
	KindPayloadTooLarge    Kind = "payload_too_large"
	KindInternal           Kind = "internal"
)

// Error is a classified failure. Message is safe to show to clients for
// every kind except KindInternal; Err carries the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(message string) *Error   { return New(KindValidation, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func PreconditionFailed(message string) *Error {
	return New(KindPreconditionFailed, message)
}
func NotComplete(message string) *Error      { return New(KindNotComplete, message) }
func UnsupportedMedia(message string) *Error { return New(KindUnsupportedMedia, message) }
func PayloadTooLarge(message string) *Error  { return New(KindPayloadTooLarge, message) }

// Internal wraps an unexpected failure. The message is for logs only.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// From classifies any error. Already classified errors pass through,
// repository sentinels map to their kinds and everything else is internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: "record not found", Err: err}
	case errors.Is(err, repository.ErrConflict):
		return &Error{Kind: KindConflict, Message: "record already exists", Err: err}
	case errors.Is(err, repository.ErrInvalidArgument):
		return &Error{Kind: KindValidation, Message: "invalid value", Err: err}
	}
	return Internal("unexpected error", err)
}

// KindOf returns the kind of err after classification.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}
