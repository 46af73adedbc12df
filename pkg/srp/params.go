package srp

import (
	"crypto"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/cronokirby/saferith"
)

const (
	// DefaultGroupBits selects the RFC 5054 2048-bit group.
	DefaultGroupBits = 2048

	// DefaultEphemeralBytes is the size of a and b (256 bits).
	DefaultEphemeralBytes = 32

	// MinEphemeralBytes is the smallest accepted size for a and b.
	MinEphemeralBytes = 32

	// DefaultSaltBytes is the salt size used by NewVerifier when none is given.
	DefaultSaltBytes = 16

	// MinSaltBytes is the smallest salt NewVerifier will generate.
	MinSaltBytes = 16

	maxScalarDraws = 8
)

// Params selects the group, digest, key derivation and randomness for a
// deployment. Client and server must agree on Group, Hash and KDF.
type Params struct {
	Group *Group
	Hash  crypto.Hash

	// KDF derives the private key x. Defaults to RFC5054.
	KDF KeyDerivation

	// Rand supplies ephemeral scalars and salts. Defaults to crypto/rand.Reader.
	Rand io.Reader

	// EphemeralBytes is the size of a and b. Defaults to DefaultEphemeralBytes.
	EphemeralBytes int
}

// DefaultParams returns the 2048-bit group with SHA-256 and RFC 5054 key derivation.
func DefaultParams() (Params, error) {
	g, err := GroupByBits(DefaultGroupBits)
	if err != nil {
		return Params{}, err
	}
	return Params{
		Group:          g,
		Hash:           crypto.SHA256,
		KDF:            RFC5054{},
		Rand:           rand.Reader,
		EphemeralBytes: DefaultEphemeralBytes,
	}, nil
}

// normalize fills defaults and rejects unusable parameters.
func (p Params) normalize() (Params, error) {
	if p.Group == nil || p.Group.modulus == nil {
		return p, fmt.Errorf("%w: no validated group", ErrInvalidGroup)
	}

	if p.Hash == 0 {
		p.Hash = crypto.SHA256
	}
	if !p.Hash.Available() {
		return p, fmt.Errorf("%w: hash %v is not available", ErrInvalidParams, p.Hash)
	}
	if p.Hash.Size() >= p.Group.ByteLen() {
		return p, fmt.Errorf("%w: digest is as wide as the group", ErrInvalidParams)
	}

	if p.KDF == nil {
		p.KDF = RFC5054{}
	}
	if p.Rand == nil {
		p.Rand = rand.Reader
	}

	switch {
	case p.EphemeralBytes == 0:
		p.EphemeralBytes = DefaultEphemeralBytes
	case p.EphemeralBytes < MinEphemeralBytes:
		return p, fmt.Errorf("%w: ephemeral size %d below %d bytes", ErrInvalidParams, p.EphemeralBytes, MinEphemeralBytes)
	case p.EphemeralBytes > p.Group.ByteLen():
		return p, fmt.Errorf("%w: ephemeral size %d exceeds group size", ErrInvalidParams, p.EphemeralBytes)
	}

	return p, nil
}

// randomScalar draws a non-zero private exponent of n bytes from r.
func randomScalar(r io.Reader, n int) (*saferith.Nat, error) {
	buf := make([]byte, n)
	defer wipe(buf)

	for range maxScalarDraws {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("failed to read ephemeral scalar: %w", err)
		}
		x := new(saferith.Nat).SetBytes(buf)
		if x.EqZero() != 1 {
			return x, nil
		}
	}

	return nil, errors.New("random source produced only zero scalars")
}
