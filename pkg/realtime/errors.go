package realtime

import (
	"errors"
	"fmt"
)

// Sentinel errors for the realtime package.
var (
	// ErrMissingAPIKey indicates the API credential was not provided.
	ErrMissingAPIKey = errors.New("realtime: API key is required")

	// ErrNotConnected indicates the client is not connected.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrAlreadyConnected indicates the client is already connected.
	ErrAlreadyConnected = errors.New("realtime: already connected")

	// ErrConnectionClosed indicates the connection was closed unexpectedly.
	ErrConnectionClosed = errors.New("realtime: connection closed")

	// ErrSessionNotReady indicates audio was sent before session.updated
	// confirmed the session configuration. The API rejects or ignores such
	// audio, so the client refuses to send it.
	ErrSessionNotReady = errors.New("realtime: session not ready")

	// ErrSessionNotConfigured indicates ConfigureSession was not called.
	ErrSessionNotConfigured = errors.New("realtime: session not configured")

	// ErrInvalidMessage indicates a malformed message was received.
	ErrInvalidMessage = errors.New("realtime: invalid message")
)

// APIError represents an error event reported by the realtime API.
type APIError struct {
	// Code is the error code from the API.
	Code string

	// Type is the error type/category.
	Type string

	// Message is the human-readable error message.
	Message string

	// EventID identifies the client event that caused the error, if any.
	EventID string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: API error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("realtime: API error: %s", e.Message)
}

// NewAPIError creates a new APIError.
func NewAPIError(code, typ, message string) *APIError {
	return &APIError{Code: code, Type: typ, Message: message}
}

// ConnectionError represents a WebSocket transport error.
type ConnectionError struct {
	// Reason describes why the connection failed.
	Reason string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("realtime: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("realtime: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error) *ConnectionError {
	return &ConnectionError{Reason: reason, Cause: cause}
}

// IsNotConnected returns true if the error indicates no usable connection.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConnectionClosed)
}
