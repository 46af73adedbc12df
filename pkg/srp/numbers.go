package srp

import (
	"crypto"
	"errors"
	"fmt"
	"math/big"

	"github.com/cronokirby/saferith"
)

// PowMod returns base^exp mod modulus. The exponent is processed at a width of
// at least the modulus bit length, so the running time does not depend on the
// bit length of a secret exponent below N. modulus must be positive and exp
// non-negative; otherwise ErrInvalidParams is returned.
func PowMod(base, exp, modulus *big.Int) (*big.Int, error) {
	if modulus.Sign() <= 0 {
		return nil, fmt.Errorf("%w: modulus must be positive", ErrInvalidParams)
	}
	if exp.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative exponent", ErrInvalidParams)
	}

	bits := modulus.BitLen()
	m := saferith.ModulusFromNat(new(saferith.Nat).SetBig(modulus, bits))
	b := new(saferith.Nat).SetBig(new(big.Int).Mod(base, modulus), bits)
	e := new(saferith.Nat).SetBig(exp, max(exp.BitLen(), bits))
	defer wipeNat(e)

	return new(saferith.Nat).Exp(b, e, m).Big(), nil
}

// Pad returns the big-endian encoding of v left-padded with zeros to size bytes.
func Pad(v *big.Int, size int) ([]byte, error) {
	if v.Sign() < 0 {
		return nil, errors.New("cannot encode negative value")
	}
	if (v.BitLen()+7)/8 > size {
		return nil, fmt.Errorf("value needs %d bytes, have %d", (v.BitLen()+7)/8, size)
	}
	return v.FillBytes(make([]byte, size)), nil
}

// Encode returns v in the canonical fixed-width form for this group.
// v must satisfy 0 <= v < N.
func (g *Group) Encode(v *big.Int) ([]byte, error) {
	if v.Sign() < 0 || v.Cmp(g.n) >= 0 {
		return nil, fmt.Errorf("%w: value out of range [0, N)", ErrInvalidPublicValue)
	}
	return Pad(v, g.size)
}

// Decode parses a canonical fixed-width value. It rejects encodings whose
// length differs from ByteLen and values that are not below N.
func (g *Group) Decode(b []byte) (*big.Int, error) {
	if len(b) != g.size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPublicValue, len(b), g.size)
	}
	v := new(big.Int).SetBytes(b)
	if v.Cmp(g.n) >= 0 {
		return nil, fmt.Errorf("%w: value not below N", ErrInvalidPublicValue)
	}
	return v, nil
}

// decodePublic parses a peer's ephemeral value and rejects A or B ≡ 0 mod N.
func (g *Group) decodePublic(b []byte) (*saferith.Nat, error) {
	v, err := g.Decode(b)
	if err != nil {
		return nil, err
	}
	if v.Sign() == 0 {
		return nil, fmt.Errorf("%w: value is 0 mod N", ErrInvalidPublicValue)
	}
	return new(saferith.Nat).SetBig(v, g.Bits()), nil
}

// pad encodes a value already reduced mod N.
func (g *Group) pad(x *saferith.Nat) []byte {
	return x.Big().FillBytes(make([]byte, g.size))
}

// ComputeK returns the SRP-6a multiplier k = H(PAD(N) | PAD(g)).
func ComputeK(h crypto.Hash, g *Group) *big.Int {
	return new(big.Int).SetBytes(multiplier(h, g))
}

func multiplier(h crypto.Hash, g *Group) []byte {
	return digest(h, g.n.FillBytes(make([]byte, g.size)), g.g.FillBytes(make([]byte, g.size)))
}

// ComputeU returns the scrambling parameter u = H(PAD(A) | PAD(B)).
// A zero u is rejected with ErrInvalidScramblingParameter.
func ComputeU(h crypto.Hash, g *Group, a, b *big.Int) (*big.Int, error) {
	aPad, err := g.Encode(a)
	if err != nil {
		return nil, err
	}
	bPad, err := g.Encode(b)
	if err != nil {
		return nil, err
	}

	u, err := scramble(h, aPad, bPad)
	if err != nil {
		return nil, err
	}
	return u.Big(), nil
}

// scramble hashes two already padded public values.
func scramble(h crypto.Hash, aPad, bPad []byte) (*saferith.Nat, error) {
	u := new(saferith.Nat).SetBytes(digest(h, aPad, bPad))
	if u.EqZero() == 1 {
		return nil, ErrInvalidScramblingParameter
	}
	return u, nil
}

// wipe overwrites b with zeros.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// wipeNat zeroes the limbs of n in place.
func wipeNat(n *saferith.Nat) {
	if n == nil {
		return
	}
	n.SetBytes(make([]byte, (n.AnnouncedLen()+7)/8))
}
