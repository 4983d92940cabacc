package chat

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the gateway, the relay and the store drivers.
var (
	// ErrInvalidRequest marks malformed or incomplete input. Not retryable.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStoreUnavailable marks a transient store failure. Safe to retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrTransportDisconnected marks a push subscriber whose channel is gone.
	ErrTransportDisconnected = errors.New("transport disconnected")
)

// Validation errors.
var (
	ErrRoomIDRequired  = fmt.Errorf("%w: room id is required", ErrInvalidRequest)
	ErrRoomIDTooLong   = fmt.Errorf("%w: room id exceeds maximum length", ErrInvalidRequest)
	ErrMessageEmpty    = fmt.Errorf("%w: message content cannot be empty", ErrInvalidRequest)
	ErrMessageTooLong  = fmt.Errorf("%w: message exceeds maximum length", ErrInvalidRequest)
	ErrUsernameTooLong = fmt.Errorf("%w: username exceeds maximum length", ErrInvalidRequest)
	ErrUserIDTooLong   = fmt.Errorf("%w: user id exceeds maximum length", ErrInvalidRequest)
)

// Error codes used on the wire (HTTP bodies, push error events and
// request-reply responses).
const (
	CodeInvalidRequest   = "invalid_request"
	CodeStoreUnavailable = "store_unavailable"
	CodeInternal         = "internal_error"
)

// ErrorCode classifies err into one of the wire error codes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	default:
		return CodeInternal
	}
}

// ErrorFromCode rebuilds an error that matches the sentinel of code.
// Unknown codes are treated as store failures.
func ErrorFromCode(code, message string) error {
	if code == CodeInvalidRequest {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, message)
	}
	return fmt.Errorf("%w: %s", ErrStoreUnavailable, message)
}
