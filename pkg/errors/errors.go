package errors

import (
	goerrors "errors"
	"fmt"
)

// New returns an error that formats as the given text.
func New(msg string) error {
	return goerrors.New(msg)
}

// Errorf formats according to a format specifier and returns the string as
// an error.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// Is and As are re-exported so that callers don't need to import both this
// package and the standard library's.
var (
	Is = goerrors.Is
	As = goerrors.As
)

type withContext struct {
	context string
	err     error
}

// WithContext annotates `err` with a short description of what was being
// done when it occurred. The resulting message reads `context: err`.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return withContext{context, err}
}

func (err withContext) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err withContext) Unwrap() error {
	return err.err
}

// RootCause returns the error at the bottom of a chain created by
// WithContext.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(withContext)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// FriendlyError is implemented by errors whose message is meant to be shown
// directly to users.
type FriendlyError interface {
	error
	FriendlyMessage() string
}

type friendlyError struct {
	msg string
}

// NewFriendlyError creates an error whose message is printed verbatim by the
// CLI instead of the full context chain.
func NewFriendlyError(format string, args ...interface{}) error {
	return friendlyError{fmt.Sprintf(format, args...)}
}

func (err friendlyError) Error() string {
	return err.msg
}

func (err friendlyError) FriendlyMessage() string {
	return err.msg
}

// GetFriendlyMessage returns the message of the outermost FriendlyError in
// the chain, if any.
func GetFriendlyMessage(err error) (string, bool) {
	var friendly FriendlyError
	if goerrors.As(err, &friendly) {
		return friendly.FriendlyMessage(), true
	}
	return "", false
}
