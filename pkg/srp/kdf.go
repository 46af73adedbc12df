package srp

import (
	"crypto"
	"fmt"
	"io"
	"math/big"

	"github.com/cronokirby/saferith"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// Defaults for the memory-hard derivations, applied when a field is zero.
const (
	DefaultPBKDF2Iterations = 600_000

	DefaultScryptN = 1 << 15
	DefaultScryptR = 8
	DefaultScryptP = 1

	DefaultArgon2Time    = 1
	DefaultArgon2Memory  = 64 * 1024 // KiB
	DefaultArgon2Threads = 4
)

// KeyDerivation turns (identity, password, salt) into the private key x.
// Implementations must be deterministic and must not retain their inputs.
type KeyDerivation interface {
	PrivateKey(h crypto.Hash, identity, password string, salt []byte) (*big.Int, error)
}

// RFC5054 derives x = H(salt | H(identity | ":" | password)).
type RFC5054 struct{}

// PrivateKey implements KeyDerivation.
func (RFC5054) PrivateKey(h crypto.Hash, identity, password string, salt []byte) (*big.Int, error) {
	inner := digest(h, []byte(identity), []byte(":"), []byte(password))
	defer wipe(inner)
	return outerKey(h, salt, inner), nil
}

// PBKDF2 derives x = H(salt | PBKDF2(identity ":" password, salt)).
type PBKDF2 struct {
	Iterations int
}

// PrivateKey implements KeyDerivation.
func (k PBKDF2) PrivateKey(h crypto.Hash, identity, password string, salt []byte) (*big.Int, error) {
	iter := k.Iterations
	if iter == 0 {
		iter = DefaultPBKDF2Iterations
	}
	if iter < 0 {
		return nil, fmt.Errorf("%w: negative PBKDF2 iteration count", ErrInvalidParams)
	}

	secret := credentials(identity, password)
	defer wipe(secret)

	inner := pbkdf2.Key(secret, salt, iter, h.Size(), h.New)
	defer wipe(inner)
	return outerKey(h, salt, inner), nil
}

// Scrypt derives x = H(salt | scrypt(identity ":" password, salt)).
type Scrypt struct {
	N, R, P int
}

// PrivateKey implements KeyDerivation.
func (k Scrypt) PrivateKey(h crypto.Hash, identity, password string, salt []byte) (*big.Int, error) {
	n, r, p := k.N, k.R, k.P
	if n == 0 {
		n = DefaultScryptN
	}
	if r == 0 {
		r = DefaultScryptR
	}
	if p == 0 {
		p = DefaultScryptP
	}

	secret := credentials(identity, password)
	defer wipe(secret)

	inner, err := scrypt.Key(secret, salt, n, r, p, h.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: scrypt: %w", ErrInvalidParams, err)
	}
	defer wipe(inner)
	return outerKey(h, salt, inner), nil
}

// Argon2id derives x = H(salt | Argon2id(identity ":" password, salt)).
// Memory is expressed in KiB.
type Argon2id struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// PrivateKey implements KeyDerivation.
func (k Argon2id) PrivateKey(h crypto.Hash, identity, password string, salt []byte) (*big.Int, error) {
	t, m, p := k.Time, k.Memory, k.Threads
	if t == 0 {
		t = DefaultArgon2Time
	}
	if m == 0 {
		m = DefaultArgon2Memory
	}
	if p == 0 {
		p = DefaultArgon2Threads
	}

	secret := credentials(identity, password)
	defer wipe(secret)

	//nolint:gosec // G115: digest sizes fit in uint32
	inner := argon2.IDKey(secret, salt, t, m, p, uint32(h.Size()))
	defer wipe(inner)
	return outerKey(h, salt, inner), nil
}

func credentials(identity, password string) []byte {
	b := make([]byte, 0, len(identity)+1+len(password))
	b = append(b, identity...)
	b = append(b, ':')
	return append(b, password...)
}

func outerKey(h crypto.Hash, salt, inner []byte) *big.Int {
	xb := digest(h, salt, inner)
	defer wipe(xb)
	return new(big.Int).SetBytes(xb)
}

// DeriveVerifier computes v = g^x mod N. x is processed at a width of at least
// the group's bit length.
func DeriveVerifier(x *big.Int, g *Group) *big.Int {
	e := new(saferith.Nat).SetBig(x, max(x.BitLen(), g.Bits()))
	defer wipeNat(e)
	return new(saferith.Nat).Exp(g.gen, e, g.modulus).Big()
}

// ComputeVerifier derives the padded verifier for identity and password under salt.
func ComputeVerifier(p Params, identity, password string, salt []byte) ([]byte, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, err
	}

	x, err := p.KDF.PrivateKey(p.Hash, identity, password, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive private key: %w", err)
	}
	defer x.SetInt64(0)

	return p.Group.Encode(DeriveVerifier(x, p.Group))
}

// NewVerifier draws a fresh salt of saltLen bytes (DefaultSaltBytes when zero)
// and returns it together with the matching verifier. It is the registration
// step; both values are stored by the server.
func NewVerifier(p Params, identity, password string, saltLen int) (salt, verifier []byte, err error) {
	p, err = p.normalize()
	if err != nil {
		return nil, nil, err
	}

	if saltLen == 0 {
		saltLen = DefaultSaltBytes
	}
	if saltLen < MinSaltBytes {
		return nil, nil, fmt.Errorf("%w: salt length %d below %d bytes", ErrInvalidParams, saltLen, MinSaltBytes)
	}

	salt = make([]byte, saltLen)
	if _, err := io.ReadFull(p.Rand, salt); err != nil {
		return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	verifier, err = ComputeVerifier(p, identity, password, salt)
	if err != nil {
		return nil, nil, err
	}
	return salt, verifier, nil
}
