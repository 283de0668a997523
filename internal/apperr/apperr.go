// Package apperr defines the single tagged error type shared by all
// identity, 2FA and token flows. Services return *Error values; the bus
// layer serializes the Kind into the reply envelope and the gateway maps
// each Kind to an HTTP status exactly once.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping. The zero value is not a
// valid kind.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindInvalidCode        Kind = "invalid_code"
	KindConflict           Kind = "conflict"
	KindNotFound           Kind = "not_found"
	KindOAuthExchange      Kind = "oauth_exchange"
	KindUpstreamTimeout    Kind = "upstream_timeout"
	KindInternal           Kind = "internal"
)

// Error is the tagged error carried across service boundaries.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New constructs an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetail returns the error with an extra key added to Details.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// KindOf extracts the Kind from err, unwrapping as needed. Errors that are
// not *Error report KindInternal so unknown failures never leak details.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
