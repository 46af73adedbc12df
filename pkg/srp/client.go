package srp

import (
	"crypto/subtle"
	"fmt"

	"github.com/cronokirby/saferith"
)

// ClientSession is the client side of one SRP-6a handshake.
// A session is not safe for concurrent use and is discarded after it reaches
// StateAuthenticated or StateFailed.
type ClientSession struct {
	params   Params
	identity string
	password []byte
	state    State

	a    *saferith.Nat // ephemeral private value
	aPad []byte        // PAD(A)
	bPad []byte        // PAD(B)

	secret []byte // PAD(S)
	key    SessionKey
	m1     []byte
}

// StartClient draws the ephemeral private value a and returns the new session
// with PAD(A) = PAD(g^a mod N) to send to the server.
func StartClient(p Params, identity, password string) (*ClientSession, []byte, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, nil, err
	}

	a, err := randomScalar(p.Rand, p.EphemeralBytes)
	if err != nil {
		return nil, nil, err
	}

	// A is never zero: g is a unit mod N and so is every power of it.
	A := new(saferith.Nat).Exp(p.Group.gen, a, p.Group.modulus)

	c := &ClientSession{
		params:   p,
		identity: identity,
		password: []byte(password),
		state:    StateAwaitingChallenge,
		a:        a,
		aPad:     p.Group.pad(A),
	}
	return c, clone(c.aPad), nil
}

// State returns the current handshake state.
func (c *ClientSession) State() State { return c.state }

// Identity returns the identity the session authenticates as.
func (c *ClientSession) Identity() string { return c.identity }

// ProcessChallenge consumes the server's salt and PAD(B), computes the shared
// secret and returns the session key K and the client proof M1.
//
// K must not be used until VerifyServerProof succeeds: at this point the
// server has not yet proven knowledge of the verifier.
func (c *ClientSession) ProcessChallenge(salt, b []byte) (SessionKey, []byte, error) {
	if c.state != StateAwaitingChallenge {
		return nil, nil, stateError("process challenge", c.state)
	}

	key, m1, err := c.processChallenge(salt, b)
	if err != nil {
		c.fail()
		return nil, nil, err
	}

	c.state = StateProofSent
	return clone(key), clone(m1), nil
}

func (c *ClientSession) processChallenge(salt, b []byte) (SessionKey, []byte, error) {
	grp, h := c.params.Group, c.params.Hash

	if len(salt) == 0 {
		return nil, nil, fmt.Errorf("%w: empty salt", ErrInvalidParams)
	}

	B, err := grp.decodePublic(b)
	if err != nil {
		return nil, nil, err
	}
	c.bPad = clone(b)

	u, err := scramble(h, c.aPad, c.bPad)
	if err != nil {
		return nil, nil, err
	}

	xBig, err := c.params.KDF.PrivateKey(h, c.identity, string(c.password), salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive private key: %w", err)
	}
	wipe(c.password)
	c.password = nil

	x := new(saferith.Nat).SetBig(xBig, max(xBig.BitLen(), 8*h.Size()))
	xBig.SetInt64(0)

	// S = (B - k*g^x) ^ (a + u*x) mod N
	k := new(saferith.Nat).SetBytes(multiplier(h, grp))
	gx := new(saferith.Nat).Exp(grp.gen, x, grp.modulus)
	kgx := new(saferith.Nat).ModMul(k, gx, grp.modulus)
	base := new(saferith.Nat).ModSub(B, kgx, grp.modulus)
	ux := new(saferith.Nat).Mul(u, x, -1)
	exp := new(saferith.Nat).Add(c.a, ux, -1)
	S := new(saferith.Nat).Exp(base, exp, grp.modulus)

	c.secret = grp.pad(S)
	c.key = digest(h, c.secret)
	c.m1 = digest(h, c.aPad, c.bPad, c.key)

	for _, n := range []*saferith.Nat{x, gx, kgx, base, ux, exp, S, c.a} {
		wipeNat(n)
	}
	c.a = nil

	return c.key, c.m1, nil
}

// VerifyServerProof checks M2 = H(PAD(A) | M1 | K). On success the session is
// authenticated and K is returned; on mismatch the session fails with
// ErrProofMismatch.
func (c *ClientSession) VerifyServerProof(m2 []byte) (SessionKey, error) {
	if c.state != StateProofSent {
		return nil, stateError("verify server proof", c.state)
	}

	expected := digest(c.params.Hash, c.aPad, c.m1, c.key)
	if subtle.ConstantTimeCompare(expected, m2) != 1 {
		c.fail()
		return nil, ErrProofMismatch
	}

	c.state = StateAuthenticated
	return clone(c.key), nil
}

// Close wipes the session's secrets. A session closed before authentication
// moves to StateFailed.
func (c *ClientSession) Close() {
	if c.state != StateAuthenticated {
		c.state = StateFailed
	}
	c.wipe()
}

func (c *ClientSession) fail() {
	c.state = StateFailed
	c.wipe()
}

func (c *ClientSession) wipe() {
	wipe(c.password)
	wipe(c.secret)
	c.key.Wipe()
	wipeNat(c.a)
	c.password, c.secret, c.key, c.a = nil, nil, nil, nil
}
