package scanner

import (
	"errors"
	"fmt"
)

// Error codes for machine-readable error classification.
const (
	// CodeDaemonUnavailable means no connection to clamd could be established
	// after all creation attempts.
	CodeDaemonUnavailable = "daemon_unavailable"
	// CodePoolExhausted means the pool and its wait queue were both full at
	// acquisition time.
	CodePoolExhausted = "pool_exhausted"
	// CodeConnectionLost means a transport fault occurred mid-scan.
	CodeConnectionLost = "connection_lost"
	// CodeProtocolUnsupported means clamd rejected the streaming command.
	CodeProtocolUnsupported = "protocol_unsupported"
	// CodeTimeout means the scan exceeded its configured deadline.
	CodeTimeout = "timeout"
)

// Error is the base error type for all scan errors.
type Error struct {
	// Code is a machine-readable error code.
	Code string
	// Message is a human-readable error description.
	Message string
	// Attempts is the number of scan attempts made before the error was
	// surfaced. Zero when the error did not pass through the retry layer.
	Attempts int
	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	msg := e.Message
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s (after %d attempts)", msg, e.Attempts)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewDaemonUnavailableError creates an error indicating clamd could not be reached.
func NewDaemonUnavailableError(msg string, cause error) *Error {
	return &Error{Code: CodeDaemonUnavailable, Message: msg, Cause: cause}
}

// NewPoolExhaustedError creates an error indicating the pool and queue are saturated.
func NewPoolExhaustedError(msg string) *Error {
	return &Error{Code: CodePoolExhausted, Message: msg}
}

// NewConnectionLostError creates an error indicating a mid-scan transport fault.
func NewConnectionLostError(msg string, cause error) *Error {
	return &Error{Code: CodeConnectionLost, Message: msg, Cause: cause}
}

// NewProtocolUnsupportedError creates an error indicating clamd rejected the
// streaming scan mode.
func NewProtocolUnsupportedError(msg string) *Error {
	return &Error{Code: CodeProtocolUnsupported, Message: msg}
}

// NewTimeoutError creates an error indicating the scan deadline expired.
func NewTimeoutError(msg string, cause error) *Error {
	return &Error{Code: CodeTimeout, Message: msg, Cause: cause}
}

// withAttempts returns a copy of err annotated with the attempt count, leaving
// the code, message and cause unchanged.
func withAttempts(err *Error, attempts int) *Error {
	return &Error{
		Code:     err.Code,
		Message:  err.Message,
		Attempts: attempts,
		Cause:    err.Cause,
	}
}

func is(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsDaemonUnavailable reports whether err is or wraps a daemon-unavailable error.
func IsDaemonUnavailable(err error) bool { return is(err, CodeDaemonUnavailable) }

// IsPoolExhausted reports whether err is or wraps a pool-exhausted error.
func IsPoolExhausted(err error) bool { return is(err, CodePoolExhausted) }

// IsConnectionLost reports whether err is or wraps a connection-lost error.
func IsConnectionLost(err error) bool { return is(err, CodeConnectionLost) }

// IsProtocolUnsupported reports whether err is or wraps a protocol-unsupported error.
func IsProtocolUnsupported(err error) bool { return is(err, CodeProtocolUnsupported) }

// IsTimeout reports whether err is or wraps a timeout error.
func IsTimeout(err error) bool { return is(err, CodeTimeout) }
