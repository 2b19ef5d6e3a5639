// Package errors provides the error taxonomy shared by the ad runtime
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying every failure an ad cycle can meet
var (
	// ErrIdentityUnavailable indicates no host or persisted screen identity exists
	ErrIdentityUnavailable = errors.New("identity unavailable")

	// ErrNoOfferAvailable indicates the exchange has no inventory for this screen.
	// It is a normal outcome rather than a fault.
	ErrNoOfferAvailable = errors.New("no offer available")

	// ErrTransport indicates a network failure or timeout talking to the exchange
	ErrTransport = errors.New("transport failure")

	// ErrServer indicates the exchange kept answering 5xx after all retries
	ErrServer = errors.New("server failure")

	// ErrClientRejected indicates the exchange answered with a 4xx status
	ErrClientRejected = errors.New("client rejected")

	// ErrMalformedDescriptor indicates the ad descriptor root is absent or unparsable
	ErrMalformedDescriptor = errors.New("malformed descriptor")

	// ErrMediaAcquisition indicates the selected media could not be loaded or played
	ErrMediaAcquisition = errors.New("media acquisition failure")

	// ErrTrackingDelivery indicates a tracking beacon could not be delivered
	ErrTrackingDelivery = errors.New("tracking delivery failure")

	// ErrConfirmation indicates the playout confirmation was not acknowledged
	ErrConfirmation = errors.New("confirmation failure")

	// ErrLifecycleTimeout indicates a cycle exceeded its maximum duration
	ErrLifecycleTimeout = errors.New("lifecycle timeout")

	// ErrInvalidState indicates an operation was attempted in the wrong state
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound indicates a requested record does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a record already exists
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates a record failed validation
	ErrInvalidInput = errors.New("invalid input")
)

// Error represents a domain error with additional context
type Error struct {
	// Code is a machine-readable error code
	Code string
	// Message is a human-readable error description
	Message string
	// Op describes the operation that failed
	Op string
	// Err is the underlying error
	Err error
}

// Error implements the error interface with a formatted message
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain handling
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given details
func NewError(code string, message string, op string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

// IsRetryable returns true if err may succeed when the call is repeated
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrServer)
}
