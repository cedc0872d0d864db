package remote

import (
	"errors"
	"fmt"
)

// Sentinel errors for server calls.
var (
	ErrUnauthorized      = errors.New("remote: unauthorized")
	ErrNetwork           = errors.New("remote: network unreachable")
	ErrMalformedResponse = errors.New("remote: malformed response")
	ErrNotFound          = errors.New("remote: not found")
	ErrBookDeleted       = errors.New("remote: book deleted")
	ErrBadRequest        = errors.New("remote: bad request")
	ErrRateLimited       = errors.New("remote: rate limited by server")
	ErrServer            = errors.New("remote: server error")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op      string // Operation: "listDeletedIds", "getBook", ...
	Status  int    // HTTP status, zero when no response arrived
	Message string // Server-supplied error message, if any
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s [%d]: %v: %s", e.Op, e.Status, e.Err, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s [%d]: %v", e.Op, e.Status, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err means the session must be discarded.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNetwork reports whether err means the server could not be reached.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}
