package client

import (
	"errors"
	"fmt"
)

// ErrorClass represents a classification of call failures.
type ErrorClass string

const (
	// ErrorClassConfig represents missing or invalid configuration, detected
	// before any network I/O.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassAuth represents 401/403 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassService represents any other non-2xx response.
	ErrorClassService ErrorClass = "service"

	// ErrorClassNetwork represents transport failures such as timeouts or refused connections.
	ErrorClassNetwork ErrorClass = "network"
)

// Error is a classified call failure.
type Error struct {
	Class      ErrorClass
	StatusCode int
	Message    string
	// Hint tells the user how to fix an authorization failure.
	Hint string
	// Body is a snippet of the response body.
	Body string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("web service %s error", e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of err, or "" when err is not a classified call error.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return ClassOf(err) == ErrorClassConfig }

// IsAuth reports whether err is an authorization error.
func IsAuth(err error) bool { return ClassOf(err) == ErrorClassAuth }

// IsService reports whether err is a service error.
func IsService(err error) bool { return ClassOf(err) == ErrorClassService }

// IsNetwork reports whether err is a transport error.
func IsNetwork(err error) bool { return ClassOf(err) == ErrorClassNetwork }

// configError wraps a validation failure.
func configError(msg string, err error) *Error {
	return &Error{Class: ErrorClassConfig, Message: msg, Err: err}
}

// Remediation hints for 401/403 responses.
const (
	hintWindows = "Check that the account may access the web service, or enter credentials in the node settings"
	hintUnix    = "Interactive NTLM sign-on is not available on this platform; configure a stored credential with username and password"
)

func authHint(goos string) string {
	if goos == "windows" {
		return hintWindows
	}
	return hintUnix
}
