// Package errors provides the status-carrying error type used at the HTTP
// boundary.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable machine-readable label for a class of failure.
type Kind string

const (
	KindInvalidURL      Kind = "invalid_url"
	KindFeedUnreachable Kind = "feed_unreachable"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

// Error carries an HTTP status and a kind alongside the wrapped error.
type Error struct {
	Status int
	Kind   Kind
	Err    error // The error this wraps
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type transport struct {
	Message string `json:"message"`
	Kind    Kind   `json:"kind"`
	Status  int    `json:"status"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(transport{
		Message: e.Err.Error(),
		Kind:    e.Kind,
		Status:  e.Status,
	})
}

// E builds an *Error from its arguments: a string or error becomes the
// wrapped error, an int the status, a Kind the kind. Unset fields default to
// an internal server error.
func E(args ...any) *Error {
	ret := &Error{
		Status: http.StatusInternalServerError,
		Kind:   KindInternal,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		case Kind:
			ret.Kind = arg
		}
	}

	return ret
}
