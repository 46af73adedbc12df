package srp

import (
	"crypto"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SessionKey is the shared key K = H(PAD(S)) produced by a successful handshake.
// Its String and GoString methods never reveal the key material.
type SessionKey []byte

// Equal reports whether k and other hold the same key, in constant time.
func (k SessionKey) Equal(other SessionKey) bool {
	return subtle.ConstantTimeCompare(k, other) == 1
}

// Expand derives length bytes of keying material for a channel bound to info,
// using HKDF with h and K as input keying material.
func (k SessionKey) Expand(h crypto.Hash, info []byte, length int) ([]byte, error) {
	if len(k) == 0 {
		return nil, fmt.Errorf("%w: empty session key", ErrInvalidState)
	}
	if !h.Available() {
		return nil, fmt.Errorf("%w: hash %v is not available", ErrInvalidParams, h)
	}

	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(h.New, k, nil, info), out); err != nil {
		return nil, fmt.Errorf("failed to expand session key: %w", err)
	}
	return out, nil
}

// Wipe overwrites the key with zeros.
func (k SessionKey) Wipe() { wipe(k) }

func (k SessionKey) String() string { return fmt.Sprintf("SessionKey(%d bytes)", len(k)) }

// GoString keeps %#v output free of key material.
func (k SessionKey) GoString() string { return k.String() }

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
