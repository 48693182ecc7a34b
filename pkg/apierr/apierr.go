// Package apierr defines the closed set of failure kinds produced by the
// request pipeline. Callers branch on Kind, never on raw status codes.
package apierr

import (
	"errors"
	"time"
)

// Kind categorizes a pipeline failure.
type Kind string

const (
	NetworkError       Kind = "network_error"
	BadRequest         Kind = "bad_request"
	Unauthorized       Kind = "unauthorized"
	Forbidden          Kind = "forbidden"
	NotFound           Kind = "not_found"
	ValidationFailed   Kind = "validation_failed"
	RateLimited        Kind = "rate_limited"
	ServerError        Kind = "server_error"
	SessionExpired     Kind = "session_expired"
	StorageUnavailable Kind = "storage_unavailable"
	Unknown            Kind = "unknown"
)

// Kinds lists every member of the taxonomy.
var Kinds = []Kind{
	NetworkError, BadRequest, Unauthorized, Forbidden, NotFound,
	ValidationFailed, RateLimited, ServerError, SessionExpired,
	StorageUnavailable, Unknown,
}

// Transient reports whether the failure is worth retrying later without
// touching any session state.
func (k Kind) Transient() bool {
	switch k {
	case NetworkError, ServerError, RateLimited:
		return true
	}
	return false
}

// Error is a classified pipeline failure.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, zero when no response was received
	Message string // server or local message, may be empty
	// Fields carries field-level validation detail keyed by field name.
	Fields     map[string][]string
	RetryAfter time.Duration
	Err        error // optional underlying error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return string(e.Kind) + ": " + e.Message
	case e.Err != nil:
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified error.
func New(k Kind, msg string, err error) *Error { return &Error{Kind: k, Message: msg, Err: err} }

// KindOf returns the kind of the first *Error in err's chain. Errors that were
// never classified report Unknown; a nil error reports the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err is classified as k.
func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// FieldErrors returns the field-level detail carried by err, if any.
func FieldErrors(err error) map[string][]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
