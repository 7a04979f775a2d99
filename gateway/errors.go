package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrEndpointRequired  = errors.New("gateway: endpoint is required")
	ErrOperationRequired = errors.New("gateway: operation name is required")
	ErrInvalidDocument   = errors.New("gateway: invalid operation document")
)

// NetworkError means the request never produced a usable server answer:
// transport failure, timeout, or a body that could not be decoded.
type NetworkError struct {
	Operation string
	RequestID string
	Err       error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway: %s: network: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a failure reported by the server, either as a non-2xx
// status or as a GraphQL error entry.
type ServerError struct {
	Operation string
	RequestID string
	Status    int
	Code      string
	Message   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("gateway: %s: server: %s: %s", e.Operation, e.Code, e.Message)
}

// Code extracts a ServerError code from err, or "" when err is not one.
func Code(err error) string {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
