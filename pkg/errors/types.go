package errors

import (
	"fmt"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// ConfigError marks a failure to load or validate the user's configuration.
// These are fatal before any resource is processed, and exit with a
// distinct code.
type ConfigError struct {
	Err error
}

func (err ConfigError) Error() string {
	return err.Err.Error()
}

func (err ConfigError) Unwrap() error {
	return err.Err
}

// ExitCode implements ExitCoder.
func (err ConfigError) ExitCode() int {
	return 2
}
