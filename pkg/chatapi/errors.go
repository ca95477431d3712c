package chatapi

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorKind string

const (
	// NetworkError means the request could not be completed (DNS, connection, timeout).
	NetworkError ErrorKind = "network"
	// ServerError means the backend answered with a non-success status or an unreadable body.
	ServerError ErrorKind = "server"
)

// Error is the only error type returned by Client operations.
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Op
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		msg += fmt.Sprintf(": server returned %d: %s", e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		msg += fmt.Sprintf(": server returned %d", e.StatusCode)
	case e.Detail != "":
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func IsNetworkError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == NetworkError
}

func IsServerError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == ServerError
}
