package service

import (
	"errors"

	"github.com/xiaot623/gigchat/internal/protocol"
)

// Error is a request failure reported back to the originating connection.
// Reason is the client-visible text; Cause is only logged.
type Error struct {
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Reason + ": " + e.Cause.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func fail(reason string, cause error) *Error {
	return &Error{Reason: reason, Cause: cause}
}

// ReasonOf returns the client-visible reason for err. Errors that did not come
// from the relay map to a generic internal error.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return protocol.ReasonInternal
}
