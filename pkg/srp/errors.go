package srp

import "errors"

var (
	// ErrInvalidGroup is returned when N is not a safe prime or g is not a valid generator.
	ErrInvalidGroup = errors.New("invalid SRP group")

	// ErrUnknownGroup is returned when a group name is not in the catalog.
	ErrUnknownGroup = errors.New("unknown SRP group")

	// ErrInvalidPublicValue is returned for A or B that is malformed, out of range, or ≡ 0 mod N.
	ErrInvalidPublicValue = errors.New("invalid public ephemeral value")

	// ErrInvalidScramblingParameter is returned when u = H(PAD(A) | PAD(B)) is zero.
	ErrInvalidScramblingParameter = errors.New("invalid scrambling parameter")

	// ErrProofMismatch is returned when M1 or M2 does not verify.
	// It carries no detail about the cause.
	ErrProofMismatch = errors.New("proof mismatch")

	// ErrInvalidState is returned when a session method is called out of order
	// or after the session has failed.
	ErrInvalidState = errors.New("invalid session state")

	// ErrInvalidParams is returned for unusable engine parameters (hash, KDF, sizes).
	ErrInvalidParams = errors.New("invalid SRP parameters")
)
