package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
func New(msg string) error {
	return errors.New(msg)
}

// Is and As are re-exported so that callers don't need to import both this
// package and the standard library's.
var (
	Is = errors.Is
	As = errors.As
)

// FriendlyError is an error with a message that is meant to be shown
// directly to the user, without any of the context wrapped around it.
type FriendlyError interface {
	error
	FriendlyMessage() string
}

type friendlyError struct {
	msg string
}

// NewFriendlyError creates an error whose message is printed verbatim when
// the error reaches the top of the CLI.
func NewFriendlyError(msgFmt string, args ...interface{}) error {
	return friendlyError{fmt.Sprintf(msgFmt, args...)}
}

func (err friendlyError) Error() string {
	return err.msg
}

func (err friendlyError) FriendlyMessage() string {
	return err.msg
}

type contextError struct {
	context string
	err     error
}

// WithContext annotates the error with a short description of what was
// happening when it occurred.
func WithContext(err error, context string) error {
	return contextError{context, err}
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// RootCause strips the context added by WithContext and returns the
// underlying error.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// GetPrintableMessage returns the message that should be shown to the user
// for the given error. Friendly errors are shown without context.
func GetPrintableMessage(err error) string {
	var friendly FriendlyError
	if errors.As(err, &friendly) {
		return friendly.FriendlyMessage()
	}
	return err.Error()
}

// ExitCoder is implemented by errors that map to a specific process exit
// code.
type ExitCoder interface {
	ExitCode() int
}

// ExitCode returns the exit code associated with the error, or 1 if none of
// the errors in the chain specify one.
func ExitCode(err error) int {
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}
