package ride

import "fmt"

// Code classifies a rejected operation so the protocol layer can send a
// structured error event back to the originating client.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeForbidden          Code = "forbidden"
	CodeInvalidState       Code = "invalid_state"
	CodeInvalidInput       Code = "invalid_input"
	CodeBidNotFound        Code = "bid_not_found"
	CodeAlreadyRegistered Code = "already_registered"
	CodeNotRegistered     Code = "not_registered"
	// CodeDuplicateBid is part of the wire error vocabulary for deployments
	// that reject repeat bids; the default policy replaces them in place, so
	// the coordinator never emits it.
	CodeDuplicateBid       Code = "duplicate_bid"
	CodeStorageUnavailable Code = "storage_unavailable"
)

type Error struct {
	Code    Code
	Message string
	// Retryable is set for transient failures (storage timeouts) where the
	// in-memory state was rolled back and the client may try again.
	Retryable bool
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func Errf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the domain code from err, defaulting to invalid_input
// for errors that did not originate in the coordinator.
func CodeOf(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeInvalidInput
}

// IsRetryable reports whether the client may retry the operation.
func IsRetryable(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Retryable
}
