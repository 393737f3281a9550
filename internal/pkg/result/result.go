// Package result provides the error classification and the response envelope
// shared by the progression store, the HTTP API and the API client.
package result

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a failure. The set is closed: every error that reaches a
// caller maps to exactly one of these values.
type Kind string

const (
	KindBackend      Kind = "backend"
	KindValidation   Kind = "validation"
	KindInsufficient Kind = "insufficient_resource"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindInFlight     Kind = "in_flight"
)

// Kinds lists every valid Kind.
func Kinds() []Kind {
	return []Kind{
		KindBackend,
		KindValidation,
		KindInsufficient,
		KindNotFound,
		KindConflict,
		KindUnauthorized,
		KindForbidden,
		KindInFlight,
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Error is a classified error. Sentinels are declared with New and compared
// with errors.Is, which matches on identity.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, keeping it reachable through errors.Unwrap.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
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

// KindOf returns the kind of the first *Error in err's chain, or KindBackend
// for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBackend
}

// MessageOf returns the user-facing message for err. Unclassified errors
// are reported generically so infrastructure details do not leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// Result is the envelope returned by store actions and API endpoints:
// {"ok":true,"value":...} or {"ok":false,"kind":"...","message":"..."}.
type Result[T any] struct {
	OK      bool   `json:"ok"`
	Value   T      `json:"value"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// MarshalJSON emits only the fields of the active variant.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.OK {
		return json.Marshal(struct {
			OK    bool `json:"ok"`
			Value T    `json:"value"`
		}{OK: true, Value: r.Value})
	}
	return json.Marshal(struct {
		OK      bool   `json:"ok"`
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
	}{Kind: r.Kind, Message: r.Message})
}

// OK wraps a successful value.
func OK[T any](value T) Result[T] {
	return Result[T]{OK: true, Value: value}
}

// Fail builds a failed result.
func Fail[T any](kind Kind, message string) Result[T] {
	return Result[T]{Kind: kind, Message: message}
}

// FromError builds a failed result from err.
func FromError[T any](err error) Result[T] {
	return Fail[T](KindOf(err), MessageOf(err))
}

// From builds a result from a (value, error) pair.
func From[T any](value T, err error) Result[T] {
	if err != nil {
		return FromError[T](err)
	}
	return OK(value)
}

// Err converts a failed result back into an error, or nil when ok.
func (r Result[T]) Err() error {
	if r.OK {
		return nil
	}
	return New(r.Kind, r.Message)
}
