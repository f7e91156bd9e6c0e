package transport

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is the single failure shape returned by Client. Backend error bodies,
// unexpected status codes, network failures and malformed responses all end
// up here so callers only ever show Message.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// AsError extracts the *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Message returns the user-facing message for err: the backend text for
// transport errors, err.Error() otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if te, ok := AsError(err); ok {
		return te.Message
	}
	return err.Error()
}

func newError(op string, status int, msg string, cause error) *Error {
	return &Error{Op: op, StatusCode: status, Message: msg, cause: cause}
}
