package errors

import (
	"fmt"
	"strings"
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

// ConfigError is returned when the application settings are missing or
// invalid. It's fatal for a reconciliation cycle and isn't retried
// automatically.
type ConfigError struct {
	Reason string
}

func (err ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", err.Reason)
}

// CredentialError is returned when the daemon's API key can't be obtained.
type CredentialError struct {
	Reason string
}

func (err CredentialError) Error() string {
	return fmt.Sprintf("API key unavailable: %s", err.Reason)
}

// ScanError is returned when marker discovery fails. Stderr holds whatever
// diagnostic output the transport captured.
type ScanError struct {
	Reason string
	Stderr string
}

func (err ScanError) Error() string {
	msg := fmt.Sprintf("scan failed: %s", err.Reason)
	if stderr := strings.TrimSpace(err.Stderr); stderr != "" {
		msg += fmt.Sprintf(" (%s)", stderr)
	}
	return msg
}

// APIError is returned by the daemon client for any transport or HTTP-level
// failure.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Err        error
}

func (err *APIError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("%s %s: %s", err.Method, err.Endpoint, err.Err)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", err.Method, err.Endpoint, err.StatusCode)
}

func (err *APIError) Unwrap() error {
	return err.Err
}
