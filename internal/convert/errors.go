package convert

import (
	"errors"
	"fmt"
)

// Kind classifies conversion failures.
type Kind string

const (
	// KindUnsupportedFormat means no converter can produce the target format.
	KindUnsupportedFormat Kind = "unsupported_format"
	// KindToolUnavailable means a required external tool is not installed.
	KindToolUnavailable Kind = "tool_unavailable"
	// KindProcessingError means the converter failed on otherwise valid input.
	KindProcessingError Kind = "processing_error"
	// KindTimeout means the conversion exceeded its deadline.
	KindTimeout Kind = "timeout"
)

// Error is a typed conversion failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UnsupportedFormat creates an unsupported-format error.
func UnsupportedFormat(message string) *Error {
	return &Error{Kind: KindUnsupportedFormat, Message: message}
}

// ToolUnavailable creates a tool-unavailable error.
func ToolUnavailable(message string, err error) *Error {
	return &Error{Kind: KindToolUnavailable, Message: message, Err: err}
}

// ProcessingError creates a processing error.
func ProcessingError(message string, err error) *Error {
	return &Error{Kind: KindProcessingError, Message: message, Err: err}
}

// Timeout creates a timeout error.
func Timeout(message string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: message, Err: err}
}

// KindOf extracts the failure kind from an error chain. Untyped errors
// classify as processing errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindProcessingError
}
