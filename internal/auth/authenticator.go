package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/fzdarsky/srp6a/internal/logging"
	"github.com/fzdarsky/srp6a/pkg/protocol"
	"github.com/fzdarsky/srp6a/pkg/srp"
	"golang.org/x/crypto/hkdf"
)

const (
	fakeSeedBytes    = 32
	minFakeSeedBytes = 16
	fakeVerifierInfo = "srp6a fake verifier"
	fakeSaltInfo     = "srp6a fake salt"
)

// Options configures an Authenticator.
type Options struct {
	Params srp.Params
	Store  VerifierStore

	HandshakeTTL time.Duration
	MaxFailures  int
	Lockout      time.Duration

	// FakeSeed keys the fake records served for unknown identities. A
	// persistent seed keeps those answers stable across restarts; a random
	// seed is drawn when empty.
	FakeSeed []byte

	// SaltLength is the size of fake salts and should match provisioning.
	SaltLength int

	Logger *logging.Logger

	// Now overrides the clock used for throttling and handshake expiry.
	Now func() time.Time
}

// Result is the outcome of a successful handshake.
type Result struct {
	Identity string
	Key      srp.SessionKey
	Proof    protocol.ServerProof
}

// Authenticator drives server-side handshakes across the two client messages.
type Authenticator struct {
	params       srp.Params
	store        VerifierStore
	pending      *PendingStore
	limiter      *RateLimiter
	fakeSeed     []byte
	fakeVerifier []byte // shared by every fake record
	saltLen      int
	logger       *logging.Logger
}

// NewAuthenticator validates opts and starts the background cleanup of the
// pending-handshake and throttling state. Call Stop when done.
func NewAuthenticator(opts Options) (*Authenticator, error) {
	if opts.Params.Group == nil {
		return nil, fmt.Errorf("%w: no group configured", srp.ErrInvalidGroup)
	}
	if opts.Store == nil {
		return nil, errors.New("verifier store is required")
	}

	seed := opts.FakeSeed
	if len(seed) == 0 {
		seed = make([]byte, fakeSeedBytes)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("failed to generate fake record seed: %w", err)
		}
	}
	if len(seed) < minFakeSeedBytes {
		return nil, fmt.Errorf("fake record seed must be at least %d bytes", minFakeSeedBytes)
	}

	fakeVerifier, err := deriveFakeVerifier(opts.Params.Group, seed)
	if err != nil {
		return nil, err
	}

	saltLen := opts.SaltLength
	if saltLen == 0 {
		saltLen = srp.DefaultSaltBytes
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Authenticator{
		params:       opts.Params,
		store:        opts.Store,
		pending:      newPendingStore(opts.HandshakeTTL, now),
		limiter:      newRateLimiter(opts.MaxFailures, opts.Lockout, now),
		fakeSeed:     bytes.Clone(seed),
		fakeVerifier: fakeVerifier,
		saltLen:      saltLen,
		logger:       logger,
	}, nil
}

// Begin answers a ClientHello with the identity's salt and the server's B.
// Unknown identities receive a fake record and fail later at Finish exactly
// like a wrong password.
func (a *Authenticator) Begin(ctx context.Context, hello *protocol.ClientHello) (*protocol.ServerChallenge, error) {
	if err := hello.Validate(); err != nil {
		return nil, err
	}

	log := a.logger.WithFields(map[string]any{"identity": hello.Identity})

	if err := a.limiter.CheckLimit(hello.Identity); err != nil {
		log.Warn("handshake refused", map[string]any{"error": err.Error()})
		return nil, err
	}

	rec, unknown, err := a.lookup(ctx, hello.Identity)
	if err != nil {
		log.Error("verifier lookup failed", map[string]any{"error": err.Error()})
		return nil, err
	}

	session, b, err := srp.StartServer(a.params, hello.Identity, rec.Salt, rec.Verifier, hello.A)
	if err != nil {
		log.Warn("handshake rejected", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("failed to start handshake: %w", err)
	}

	id, err := a.pending.Put(session, unknown)
	if err != nil {
		session.Close()
		return nil, err
	}

	log.Info("handshake started", map[string]any{
		"handshake_id": id,
		"group":        a.params.Group.Name(),
	})

	return &protocol.ServerChallenge{
		HandshakeID: id,
		Salt:        session.Salt(),
		B:           b,
	}, nil
}

// Finish verifies M1 for a pending handshake and returns M2 with the session key.
// Each handshake ID is accepted once.
func (a *Authenticator) Finish(_ context.Context, proof *protocol.ClientProof) (*Result, error) {
	if err := proof.Validate(); err != nil {
		return nil, err
	}

	session, unknown, err := a.pending.Take(proof.HandshakeID)
	if err != nil {
		a.logger.Warn("proof for unknown handshake", map[string]any{"handshake_id": proof.HandshakeID})
		return nil, err
	}
	defer session.Close()

	identity := session.Identity()
	log := a.logger.WithFields(map[string]any{
		"identity":     identity,
		"handshake_id": proof.HandshakeID,
	})

	m2, key, err := session.VerifyClientProof(proof.M1)
	if err == nil && unknown {
		key.Wipe()
		err = srp.ErrProofMismatch
	}
	if err != nil {
		delay := a.limiter.RecordFailure(identity)
		log.Warn("authentication failed", map[string]any{
			"registered":  !unknown,
			"retry_after": delay.String(),
		})
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	a.limiter.RecordSuccess(identity)
	log.Info("authentication succeeded")

	return &Result{
		Identity: identity,
		Key:      key,
		Proof:    protocol.ServerProof{M2: m2},
	}, nil
}

// PendingCount returns the number of handshakes awaiting a proof.
func (a *Authenticator) PendingCount() int { return a.pending.Count() }

// Stop ends background cleanup and discards pending handshakes.
func (a *Authenticator) Stop() {
	a.pending.Stop()
	a.limiter.Stop()
}

func (a *Authenticator) lookup(ctx context.Context, identity string) (*Record, bool, error) {
	rec, err := a.store.Lookup(ctx, identity)
	if errors.Is(err, ErrIdentityNotFound) {
		fake, err := a.fakeRecord(identity)
		return fake, true, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up verifier: %w", err)
	}

	if rec.Group != "" && rec.Group != a.params.Group.Name() {
		return nil, false, fmt.Errorf("%w: record uses %s", ErrRecordMismatch, rec.Group)
	}
	return rec, false, nil
}

// fakeRecord pairs a salt derived for identity from the fake seed with the
// precomputed fake verifier. No modular exponentiation happens per request.
func (a *Authenticator) fakeRecord(identity string) (*Record, error) {
	salt := make([]byte, a.saltLen)
	kdf := hkdf.New(sha256.New, a.fakeSeed, []byte(identity), []byte(fakeSaltInfo))
	if _, err := io.ReadFull(kdf, salt); err != nil {
		return nil, fmt.Errorf("failed to derive fake salt: %w", err)
	}

	return &Record{
		Identity: identity,
		Salt:     salt,
		Verifier: bytes.Clone(a.fakeVerifier),
	}, nil
}

// deriveFakeVerifier computes the padded verifier served for every unknown
// identity.
func deriveFakeVerifier(g *srp.Group, seed []byte) ([]byte, error) {
	xb := make([]byte, sha256.Size)
	kdf := hkdf.New(sha256.New, seed, nil, []byte(fakeVerifierInfo))
	if _, err := io.ReadFull(kdf, xb); err != nil {
		return nil, fmt.Errorf("failed to derive fake verifier: %w", err)
	}

	x := new(big.Int).SetBytes(xb)
	defer x.SetInt64(0)
	return g.Encode(srp.DeriveVerifier(x, g))
}

// NewRecord provisions a record for identity with a fresh salt.
func NewRecord(p srp.Params, identity, password string, saltLen int) (Record, error) {
	salt, verifier, err := srp.NewVerifier(p, identity, password, saltLen)
	if err != nil {
		return Record{}, fmt.Errorf("failed to compute verifier: %w", err)
	}
	return Record{
		Identity: identity,
		Salt:     salt,
		Verifier: verifier,
		Group:    p.Group.Name(),
	}, nil
}
