package srp

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"

	"github.com/cronokirby/saferith"
)

// ServerSession is the server side of one SRP-6a handshake.
// A session is not safe for concurrent use and is discarded after it reaches
// StateAuthenticated or StateFailed.
type ServerSession struct {
	params   Params
	identity string
	salt     []byte
	state    State

	v    *saferith.Nat
	b    *saferith.Nat // ephemeral private value
	peer *saferith.Nat // A
	aPad []byte
	bPad []byte
}

// StartServer validates the client's PAD(A), draws the ephemeral private value b
// and returns the session with PAD(B) = PAD(k*v + g^b mod N). A is checked
// before any computation involving the verifier; an invalid A yields
// ErrInvalidPublicValue and no session.
func StartServer(p Params, identity string, salt, verifier, a []byte) (*ServerSession, []byte, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, nil, err
	}
	grp := p.Group

	A, err := grp.decodePublic(a)
	if err != nil {
		return nil, nil, err
	}

	if len(salt) == 0 {
		return nil, nil, fmt.Errorf("%w: empty salt", ErrInvalidParams)
	}
	v, err := grp.decodeVerifier(verifier)
	if err != nil {
		return nil, nil, err
	}

	k := new(saferith.Nat).SetBytes(multiplier(p.Hash, grp))
	kv := new(saferith.Nat).ModMul(k, v, grp.modulus)
	defer wipeNat(kv)

	// B is redrawn in the negligible case k*v + g^b ≡ 0 mod N.
	var b, B *saferith.Nat
	for range maxScalarDraws {
		b, err = randomScalar(p.Rand, p.EphemeralBytes)
		if err != nil {
			return nil, nil, err
		}
		gb := new(saferith.Nat).Exp(grp.gen, b, grp.modulus)
		B = new(saferith.Nat).ModAdd(kv, gb, grp.modulus)
		wipeNat(gb)
		if B.EqZero() != 1 {
			break
		}
		wipeNat(b)
		b = nil
	}
	if b == nil {
		return nil, nil, errors.New("failed to draw an ephemeral value with non-zero B")
	}

	s := &ServerSession{
		params:   p,
		identity: identity,
		salt:     clone(salt),
		state:    StateAwaitingProof,
		v:        v,
		b:        b,
		peer:     A,
		aPad:     clone(a),
		bPad:     grp.pad(B),
	}
	return s, clone(s.bPad), nil
}

// decodeVerifier accepts a stored verifier in padded or minimal form and
// requires 0 < v < N.
func (g *Group) decodeVerifier(verifier []byte) (*saferith.Nat, error) {
	if len(verifier) == 0 || len(verifier) > g.size {
		return nil, fmt.Errorf("%w: verifier is %d bytes", ErrInvalidParams, len(verifier))
	}
	v := new(big.Int).SetBytes(verifier)
	defer v.SetInt64(0)
	if v.Sign() == 0 || v.Cmp(g.n) >= 0 {
		return nil, fmt.Errorf("%w: verifier out of range (0, N)", ErrInvalidParams)
	}
	return new(saferith.Nat).SetBig(v, g.Bits()), nil
}

// State returns the current handshake state.
func (s *ServerSession) State() State { return s.state }

// Identity returns the identity being authenticated.
func (s *ServerSession) Identity() string { return s.identity }

// Salt returns the salt to send alongside B.
func (s *ServerSession) Salt() []byte { return clone(s.salt) }

// VerifyClientProof checks M1 = H(PAD(A) | PAD(B) | K). On success it returns
// the server proof M2 = H(PAD(A) | M1 | K) and the session key. On mismatch the
// session fails with ErrProofMismatch and no M2 is produced.
func (s *ServerSession) VerifyClientProof(m1 []byte) ([]byte, SessionKey, error) {
	if s.state != StateAwaitingProof {
		return nil, nil, stateError("verify client proof", s.state)
	}

	m2, key, err := s.verifyClientProof(m1)
	if err != nil {
		s.fail()
		return nil, nil, err
	}

	s.state = StateAuthenticated
	s.wipe()
	return m2, key, nil
}

func (s *ServerSession) verifyClientProof(m1 []byte) ([]byte, SessionKey, error) {
	grp, h := s.params.Group, s.params.Hash

	u, err := scramble(h, s.aPad, s.bPad)
	if err != nil {
		return nil, nil, err
	}

	// S = (A * v^u) ^ b mod N
	vu := new(saferith.Nat).Exp(s.v, u, grp.modulus)
	avu := new(saferith.Nat).ModMul(s.peer, vu, grp.modulus)
	S := new(saferith.Nat).Exp(avu, s.b, grp.modulus)
	secret := grp.pad(S)

	key := SessionKey(digest(h, secret))
	expected := digest(h, s.aPad, s.bPad, key)

	wipe(secret)
	for _, n := range []*saferith.Nat{vu, avu, S} {
		wipeNat(n)
	}

	if subtle.ConstantTimeCompare(expected, m1) != 1 {
		key.Wipe()
		return nil, nil, ErrProofMismatch
	}

	return digest(h, s.aPad, m1, key), key, nil
}

// Close wipes the session's secrets. A session closed before authentication
// moves to StateFailed.
func (s *ServerSession) Close() {
	if s.state != StateAuthenticated {
		s.state = StateFailed
	}
	s.wipe()
}

func (s *ServerSession) fail() {
	s.state = StateFailed
	s.wipe()
}

func (s *ServerSession) wipe() {
	wipeNat(s.b)
	wipeNat(s.v)
	s.b, s.v = nil, nil
}
