// Package protocol defines the handshake messages exchanged by SRP-6a peers
// and the error codes reported to callers.
package protocol

import "fmt"

// ErrorCode represents a standardized error code reported to the peer.
type ErrorCode string

// Error codes.
const (
	// ErrCodeAuthenticationFailed covers unknown identities and proof
	// mismatches alike so the peer cannot tell them apart.
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	// ErrCodeRateLimitExceeded indicates the identity is locked out.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// ErrCodeInvalidRequest indicates the message is malformed.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	// ErrCodeInvalidPublicValue indicates A or B was rejected.
	ErrCodeInvalidPublicValue ErrorCode = "INVALID_PUBLIC_VALUE"
	// ErrCodeHandshakeExpired indicates the handshake ID is unknown, used or expired.
	ErrCodeHandshakeExpired ErrorCode = "HANDSHAKE_EXPIRED"

	// ErrCodeSystemError indicates an internal failure.
	ErrCodeSystemError ErrorCode = "SYSTEM_ERROR"
	// ErrCodeConfigurationError indicates the service is misconfigured.
	ErrCodeConfigurationError ErrorCode = "CONFIGURATION_ERROR"
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ErrorResponse) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new ErrorResponse.
func NewError(code ErrorCode, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithDetails creates a new ErrorResponse with details.
func NewErrorWithDetails(code ErrorCode, message, details string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAuthenticationFailedError creates an authentication failed error.
// It never carries details.
func NewAuthenticationFailedError() *ErrorResponse {
	return NewError(ErrCodeAuthenticationFailed, "Authentication failed")
}

// NewRateLimitExceededError creates a rate limit exceeded error.
func NewRateLimitExceededError(retryAfter int) *ErrorResponse {
	return NewErrorWithDetails(ErrCodeRateLimitExceeded, "Rate limit exceeded", fmt.Sprintf("Retry after %d seconds", retryAfter))
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(details string) *ErrorResponse {
	return NewErrorWithDetails(ErrCodeInvalidRequest, "Invalid request", details)
}

// NewInvalidPublicValueError creates an invalid public value error.
func NewInvalidPublicValueError() *ErrorResponse {
	return NewError(ErrCodeInvalidPublicValue, "Invalid public ephemeral value")
}

// NewHandshakeExpiredError creates a handshake expired error.
func NewHandshakeExpiredError() *ErrorResponse {
	return NewError(ErrCodeHandshakeExpired, "Handshake not found or expired")
}

// NewSystemError creates a system error.
func NewSystemError(details string) *ErrorResponse {
	return NewErrorWithDetails(ErrCodeSystemError, "System error", details)
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(details string) *ErrorResponse {
	return NewErrorWithDetails(ErrCodeConfigurationError, "Configuration error", details)
}
