package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks failures to reach the search or AI backend.
	ErrTransport = errors.New("transport failure")

	// ErrParse marks AI output that does not decode into the expected structure.
	ErrParse = errors.New("parse failure")

	// ErrValidation marks decoded output that violates a stage invariant.
	ErrValidation = errors.New("validation failure")

	// ErrNotFound marks a referenced article or quiz that does not exist.
	ErrNotFound = errors.New("not found")
)

// TransportError wraps a failed call to an external collaborator.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ParseError reports AI output that could not be decoded.
type ParseError struct {
	Processor string
	Reason    string
	Raw       string
	Err       error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: cannot parse response: %s", e.Processor, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Raw != "" {
		msg += fmt.Sprintf(" (response: %.200q)", e.Raw)
	}
	return msg
}

func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ValidationError reports well-formed output that breaks a processor rule.
type ValidationError struct {
	Processor string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid response: %s", e.Processor, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
