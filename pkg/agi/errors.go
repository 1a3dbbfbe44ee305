package agi

import "fmt"

// ErrorType classifies control-channel failures.
type ErrorType string

const (
	// ErrorTypeDisconnected means the call is gone and no further commands
	// will be issued.
	ErrorTypeDisconnected ErrorType = "disconnected"
	// ErrorTypeTimeout means the switch did not reply within the deadline.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeTransport covers read/write failures on the channel streams.
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeProtocol covers replies that could not be parsed.
	ErrorTypeProtocol ErrorType = "protocol"
	// ErrorTypeRecording covers recording stream lifecycle violations.
	ErrorTypeRecording ErrorType = "recording"
)

// Error is a typed control-channel error.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed error without a cause.
func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// WrapError creates a typed error wrapping an underlying cause.
func WrapError(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// IsErrorType reports whether err is (or wraps) a typed error of type t.
func IsErrorType(err error, t ErrorType) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Type == t {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
