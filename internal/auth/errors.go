package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/fzdarsky/srp6a/pkg/protocol"
	"github.com/fzdarsky/srp6a/pkg/srp"
)

var (
	// ErrIdentityNotFound is returned by a VerifierStore for unregistered identities.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrHandshakeNotFound is returned when a handshake ID is unknown, used or expired.
	ErrHandshakeNotFound = errors.New("handshake not found or expired")

	// ErrAuthenticationFailed is returned when the client proof does not verify.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrLockedOut is matched by *LockoutError.
	ErrLockedOut = errors.New("identity locked out")

	// ErrRecordMismatch is returned when a stored record was provisioned for
	// a different group than the one in use.
	ErrRecordMismatch = errors.New("verifier record does not match configured group")
)

// LockoutError reports a throttled identity and when it may retry.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrLockedOut, e.RetryAfter.Round(time.Second))
}

// Unwrap lets errors.Is match ErrLockedOut.
func (e *LockoutError) Unwrap() error { return ErrLockedOut }

// ErrorResponse maps an Authenticator error to the response sent to the peer.
// Unknown identities and bad proofs share one code; internal failures carry no detail.
func ErrorResponse(err error) *protocol.ErrorResponse {
	var resp *protocol.ErrorResponse
	if errors.As(err, &resp) {
		return resp
	}

	var lockout *LockoutError
	switch {
	case errors.As(err, &lockout):
		return protocol.NewRateLimitExceededError(FormatRetryAfter(lockout.RetryAfter))
	case errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrIdentityNotFound),
		errors.Is(err, srp.ErrProofMismatch),
		errors.Is(err, srp.ErrInvalidScramblingParameter):
		return protocol.NewAuthenticationFailedError()
	case errors.Is(err, srp.ErrInvalidPublicValue):
		return protocol.NewInvalidPublicValueError()
	case errors.Is(err, ErrHandshakeNotFound), errors.Is(err, srp.ErrInvalidState):
		return protocol.NewHandshakeExpiredError()
	case errors.Is(err, ErrRecordMismatch),
		errors.Is(err, srp.ErrInvalidGroup),
		errors.Is(err, srp.ErrInvalidParams):
		return protocol.NewConfigurationError("")
	default:
		return protocol.NewSystemError("")
	}
}
