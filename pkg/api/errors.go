package api

import (
	"fmt"
)

// Error represents a failure reported by the Plantora backend or by the
// transport layer on the way there.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrInvalidRequest is a caller error (bad arguments, illegal state).
	ErrInvalidRequest ErrorType = "invalid_request_error"
	// ErrAuthentication means the backend rejected the device credentials.
	ErrAuthentication ErrorType = "authentication_error"
	// ErrPermission means a platform permission (microphone) was denied.
	ErrPermission ErrorType = "permission_error"
	// ErrCredential means the ephemeral realtime token could not be issued.
	ErrCredential ErrorType = "credential_error"
	// ErrConnection means the realtime socket could not be established or died.
	ErrConnection ErrorType = "connection_error"
	// ErrTransport means the request never produced a response at all.
	// Distinct from ErrAPI so callers can tell "server said no" from
	// "never reached server".
	ErrTransport ErrorType = "transport_error"
	// ErrAPI is an in-band error reported by the backend.
	ErrAPI ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{Type: ErrAuthentication, Message: message}
}

// NewPermissionError creates a permission error.
func NewPermissionError(message string) *Error {
	return &Error{Type: ErrPermission, Message: message}
}

// NewCredentialError creates a credential issuance error.
func NewCredentialError(message string) *Error {
	return &Error{Type: ErrCredential, Message: message}
}

// NewConnectionError creates a connection error.
func NewConnectionError(message string) *Error {
	return &Error{Type: ErrConnection, Message: message}
}

// NewTransportError creates a transport error.
func NewTransportError(message string) *Error {
	return &Error{Type: ErrTransport, Message: message}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// IsRetryable returns true if the user can reasonably retry the operation.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrPermission, ErrCredential, ErrConnection, ErrTransport:
		return true
	default:
		return false
	}
}
