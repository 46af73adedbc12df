package auth_test

import (
	"context"
	"crypto"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fzdarsky/srp6a/internal/auth"
	"github.com/fzdarsky/srp6a/pkg/protocol"
	"github.com/fzdarsky/srp6a/pkg/srp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testSeed = []byte("0123456789abcdef0123456789abcdef")

// testClock is a manually advanced clock safe for use from the cleanup loops.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testParams(t *testing.T) srp.Params {
	t.Helper()

	grp, err := srp.GroupByBits(1024)
	require.NoError(t, err)
	return srp.Params{Group: grp, Hash: crypto.SHA256, KDF: srp.RFC5054{}}
}

func newTestAuthenticator(t *testing.T, store auth.VerifierStore, opts auth.Options) *auth.Authenticator {
	t.Helper()

	if opts.Params.Group == nil {
		opts.Params = testParams(t)
	}
	if opts.FakeSeed == nil {
		opts.FakeSeed = testSeed
	}
	opts.Store = store

	a, err := auth.NewAuthenticator(opts)
	require.NoError(t, err)
	t.Cleanup(a.Stop)
	return a
}

// login runs a full handshake as identity with password and returns the
// authenticator's result and the client's session key, or the first error.
func login(t *testing.T, a *auth.Authenticator, p srp.Params, identity, password string) (*auth.Result, srp.SessionKey, error) {
	t.Helper()
	ctx := context.Background()

	client, A, err := srp.StartClient(p, identity, password)
	require.NoError(t, err)
	defer client.Close()

	challenge, err := a.Begin(ctx, &protocol.ClientHello{Identity: identity, A: A})
	if err != nil {
		return nil, nil, err
	}

	_, m1, err := client.ProcessChallenge(challenge.Salt, challenge.B)
	require.NoError(t, err)

	result, err := a.Finish(ctx, &protocol.ClientProof{HandshakeID: challenge.HandshakeID, M1: m1})
	if err != nil {
		return nil, nil, err
	}

	key, err := client.VerifyServerProof(result.Proof.M2)
	require.NoError(t, err)
	return result, key, nil
}

func TestAuthenticator_Success(t *testing.T) {
	p := testParams(t)
	rec, err := auth.NewRecord(p, "alice", "correct horse", 16)
	require.NoError(t, err)
	assert.Equal(t, "rfc5054-1024", rec.Group)

	ctrl := gomock.NewController(t)
	store := auth.NewMockVerifierStore(ctrl)
	store.EXPECT().Lookup(gomock.Any(), "alice").Return(&rec, nil)

	a := newTestAuthenticator(t, store, auth.Options{Params: p})

	result, clientKey, err := login(t, a, p, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Identity)
	assert.True(t, result.Key.Equal(clientKey))
	assert.Len(t, result.Key, crypto.SHA256.Size())
	assert.Zero(t, a.PendingCount())
}

func TestAuthenticator_WrongPassword(t *testing.T) {
	p := testParams(t)
	rec, err := auth.NewRecord(p, "alice", "correct horse", 16)
	require.NoError(t, err)

	store, err := auth.NewMemoryStore(rec)
	require.NoError(t, err)
	a := newTestAuthenticator(t, store, auth.Options{Params: p})

	_, _, err = login(t, a, p, "alice", "battery staple")
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)
	require.ErrorIs(t, err, srp.ErrProofMismatch)
	assert.Equal(t, protocol.ErrCodeAuthenticationFailed, auth.ErrorResponse(err).Code)
}

func TestAuthenticator_UnknownIdentity(t *testing.T) {
	p := testParams(t)
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	store := auth.NewMockVerifierStore(ctrl)
	store.EXPECT().Lookup(gomock.Any(), gomock.Any()).
		Return(nil, auth.ErrIdentityNotFound).AnyTimes()

	first := newTestAuthenticator(t, store, auth.Options{Params: p})
	second := newTestAuthenticator(t, store, auth.Options{Params: p})

	begin := func(a *auth.Authenticator, identity string) *protocol.ServerChallenge {
		_, A, err := srp.StartClient(p, identity, "whatever")
		require.NoError(t, err)
		challenge, err := a.Begin(ctx, &protocol.ClientHello{Identity: identity, A: A})
		require.NoError(t, err)
		return challenge
	}

	t.Run("salt is stable for a seed", func(t *testing.T) {
		c1 := begin(first, "mallory")
		c2 := begin(first, "mallory")
		c3 := begin(second, "mallory")

		assert.Len(t, c1.Salt, srp.DefaultSaltBytes)
		assert.Equal(t, c1.Salt, c2.Salt)
		assert.Equal(t, c1.Salt, c3.Salt)
		assert.NotEqual(t, c1.B, c2.B)
	})

	t.Run("salt differs per identity", func(t *testing.T) {
		assert.NotEqual(t, begin(first, "mallory").Salt, begin(first, "trudy").Salt)
	})

	t.Run("fails like a wrong password", func(t *testing.T) {
		_, _, err := login(t, first, p, "mallory", "whatever")
		require.ErrorIs(t, err, auth.ErrAuthenticationFailed)
		assert.Equal(t, protocol.ErrCodeAuthenticationFailed, auth.ErrorResponse(err).Code)
	})
}

func TestAuthenticator_UnknownIdentityDifferentSeed(t *testing.T) {
	p := testParams(t)
	ctx := context.Background()
	store, err := auth.NewMemoryStore()
	require.NoError(t, err)

	first := newTestAuthenticator(t, store, auth.Options{Params: p})
	other := newTestAuthenticator(t, store, auth.Options{Params: p, FakeSeed: []byte("fedcba9876543210fedcba9876543210")})

	_, A, err := srp.StartClient(p, "mallory", "whatever")
	require.NoError(t, err)

	c1, err := first.Begin(ctx, &protocol.ClientHello{Identity: "mallory", A: A})
	require.NoError(t, err)
	c2, err := other.Begin(ctx, &protocol.ClientHello{Identity: "mallory", A: A})
	require.NoError(t, err)
	assert.NotEqual(t, c1.Salt, c2.Salt)
}

func TestAuthenticator_StoreFailure(t *testing.T) {
	p := testParams(t)
	ctrl := gomock.NewController(t)
	store := auth.NewMockVerifierStore(ctrl)
	store.EXPECT().Lookup(gomock.Any(), "alice").Return(nil, errors.New("disk on fire"))

	a := newTestAuthenticator(t, store, auth.Options{Params: p})

	_, _, err := login(t, a, p, "alice", "correct horse")
	require.Error(t, err)

	resp := auth.ErrorResponse(err)
	assert.Equal(t, protocol.ErrCodeSystemError, resp.Code)
	assert.NotContains(t, resp.Error(), "disk on fire")
}

func TestAuthenticator_RecordGroupMismatch(t *testing.T) {
	p := testParams(t)
	rec, err := auth.NewRecord(p, "alice", "correct horse", 16)
	require.NoError(t, err)
	rec.Group = "rfc5054-2048"

	ctrl := gomock.NewController(t)
	store := auth.NewMockVerifierStore(ctrl)
	store.EXPECT().Lookup(gomock.Any(), "alice").Return(&rec, nil)

	a := newTestAuthenticator(t, store, auth.Options{Params: p})

	_, _, err = login(t, a, p, "alice", "correct horse")
	require.ErrorIs(t, err, auth.ErrRecordMismatch)
	assert.Equal(t, protocol.ErrCodeConfigurationError, auth.ErrorResponse(err).Code)
}

func TestAuthenticator_HandshakeIDIsSingleUse(t *testing.T) {
	p := testParams(t)
	ctx := context.Background()
	rec, err := auth.NewRecord(p, "alice", "correct horse", 16)
	require.NoError(t, err)
	store, err := auth.NewMemoryStore(rec)
	require.NoError(t, err)
	a := newTestAuthenticator(t, store, auth.Options{Params: p})

	client, A, err := srp.StartClient(p, "alice", "correct horse")
	require.NoError(t, err)
	challenge, err := a.Begin(ctx, &protocol.ClientHello{Identity: "alice", A: A})
	require.NoError(t, err)
	assert.Equal(t, 1, a.PendingCount())

	_, m1, err := client.ProcessChallenge(challenge.Salt, challenge.B)
	require.NoError(t, err)

	proof := &protocol.ClientProof{HandshakeID: challenge.HandshakeID, M1: m1}
	_, err = a.Finish(ctx, proof)
	require.NoError(t, err)

	_, err = a.Finish(ctx, proof)
	require.ErrorIs(t, err, auth.ErrHandshakeNotFound)
	assert.Equal(t, protocol.ErrCodeHandshakeExpired, auth.ErrorResponse(err).Code)
}

func TestAuthenticator_FailedProofConsumesHandshake(t *testing.T) {
	p := testParams(t)
	ctx := context.Background()
	rec, err := auth.NewRecord(p, "alice", "correct horse", 16)
	require.NoError(t, err)
	store, err := auth.NewMemoryStore(rec)
	require.NoError(t, err)
	a := newTestAuthenticator(t, store, auth.Options{Params: p})

	client, A, err := srp.StartClient(p, "alice", "correct horse")
	require.NoError(t, err)
	challenge, err := a.Begin(ctx, &protocol.ClientHello{Identity: "alice", A: A})
	require.NoError(t, err)
	_, m1, err := client.ProcessChallenge(challenge.Salt, challenge.B)
	require.NoError(t, err)

	bad := append([]byte(nil), m1...)
	bad[0] ^= 0xff
	_, err = a.Finish(ctx, &protocol.ClientProof{HandshakeID: challenge.HandshakeID, M1: bad})
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)

	// The genuine proof cannot be replayed against the consumed handshake.
	_, err = a.Finish(ctx, &protocol.ClientProof{HandshakeID: challenge.HandshakeID, M1: m1})
	require.ErrorIs(t, err, auth.ErrHandshakeNotFound)
}

func TestAuthenticator_Lockout(t *testing.T) {
	p := testParams(t)
	rec, err := auth.NewRecord(p, "alice", "correct horse", 16)
	require.NoError(t, err)
	store, err := auth.NewMemoryStore(rec)
	require.NoError(t, err)

	clock := newTestClock()
	a := newTestAuthenticator(t, store, auth.Options{Params: p, MaxFailures: 2, Lockout: time.Minute, Now: clock.Now})

	_, _, err = login(t, a, p, "alice", "wrong")
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)
	clock.Advance(time.Second)
	_, _, err = login(t, a, p, "alice", "wrong")
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)

	_, _, err = login(t, a, p, "alice", "correct horse")
	require.ErrorIs(t, err, auth.ErrLockedOut)

	resp := auth.ErrorResponse(err)
	assert.Equal(t, protocol.ErrCodeRateLimitExceeded, resp.Code)
	assert.Equal(t, "Retry after 60 seconds", resp.Details)

	// Other identities are unaffected.
	_, _, err = login(t, a, p, "bob", "anything")
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)

	clock.Advance(time.Minute)
	_, _, err = login(t, a, p, "alice", "correct horse")
	require.NoError(t, err)
}

func TestAuthenticator_ThrottlesAfterFailure(t *testing.T) {
	p := testParams(t)
	rec, err := auth.NewRecord(p, "alice", "correct horse", 16)
	require.NoError(t, err)
	store, err := auth.NewMemoryStore(rec)
	require.NoError(t, err)

	clock := newTestClock()
	a := newTestAuthenticator(t, store, auth.Options{Params: p, Now: clock.Now})

	_, _, err = login(t, a, p, "alice", "wrong")
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)

	// An immediate retry is refused before any verifier work, even with the
	// right password.
	_, A, err := srp.StartClient(p, "alice", "correct horse")
	require.NoError(t, err)
	challenge, err := a.Begin(context.Background(), &protocol.ClientHello{Identity: "alice", A: A})
	require.ErrorIs(t, err, auth.ErrLockedOut)
	assert.Nil(t, challenge)
	assert.Zero(t, a.PendingCount())

	resp := auth.ErrorResponse(err)
	assert.Equal(t, protocol.ErrCodeRateLimitExceeded, resp.Code)
	assert.Equal(t, "Retry after 1 seconds", resp.Details)

	clock.Advance(time.Second)
	_, _, err = login(t, a, p, "alice", "wrong")
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)

	// The second failure doubles the delay.
	clock.Advance(time.Second)
	_, _, err = login(t, a, p, "alice", "correct horse")
	require.ErrorIs(t, err, auth.ErrLockedOut)
	assert.Equal(t, "Retry after 1 seconds", auth.ErrorResponse(err).Details)

	clock.Advance(time.Second)
	_, _, err = login(t, a, p, "alice", "correct horse")
	require.NoError(t, err)
}

func TestAuthenticator_SuccessResetsFailures(t *testing.T) {
	p := testParams(t)
	rec, err := auth.NewRecord(p, "alice", "correct horse", 16)
	require.NoError(t, err)
	store, err := auth.NewMemoryStore(rec)
	require.NoError(t, err)

	clock := newTestClock()
	a := newTestAuthenticator(t, store, auth.Options{Params: p, MaxFailures: 2, Now: clock.Now})

	_, _, err = login(t, a, p, "alice", "wrong")
	require.Error(t, err)
	clock.Advance(time.Second)
	_, _, err = login(t, a, p, "alice", "correct horse")
	require.NoError(t, err)

	// A single failure after the reset is throttled but does not lock.
	_, _, err = login(t, a, p, "alice", "wrong")
	require.ErrorIs(t, err, auth.ErrAuthenticationFailed)
	clock.Advance(time.Second)
	_, _, err = login(t, a, p, "alice", "correct horse")
	require.NoError(t, err)
}

func TestAuthenticator_InvalidPublicValue(t *testing.T) {
	p := testParams(t)
	rec, err := auth.NewRecord(p, "alice", "correct horse", 16)
	require.NoError(t, err)
	store, err := auth.NewMemoryStore(rec)
	require.NoError(t, err)
	a := newTestAuthenticator(t, store, auth.Options{Params: p})

	tests := []struct {
		name string
		A    []byte
	}{
		{"zero", make([]byte, p.Group.ByteLen())},
		{"N", p.Group.N().Bytes()},
		{"short", []byte{0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Begin(context.Background(), &protocol.ClientHello{Identity: "alice", A: tt.A})
			require.ErrorIs(t, err, srp.ErrInvalidPublicValue)
			assert.Equal(t, protocol.ErrCodeInvalidPublicValue, auth.ErrorResponse(err).Code)
		})
	}
	assert.Zero(t, a.PendingCount())
}

func TestAuthenticator_InvalidMessages(t *testing.T) {
	store, err := auth.NewMemoryStore()
	require.NoError(t, err)
	a := newTestAuthenticator(t, store, auth.Options{})
	ctx := context.Background()

	_, err = a.Begin(ctx, &protocol.ClientHello{A: []byte{0x02}})
	require.Error(t, err)
	assert.Equal(t, protocol.ErrCodeInvalidRequest, auth.ErrorResponse(err).Code)

	_, err = a.Finish(ctx, &protocol.ClientProof{M1: []byte{0x01}})
	require.Error(t, err)
	assert.Equal(t, protocol.ErrCodeInvalidRequest, auth.ErrorResponse(err).Code)

	_, err = a.Finish(ctx, &protocol.ClientProof{HandshakeID: "nope", M1: []byte{0x01}})
	require.ErrorIs(t, err, auth.ErrHandshakeNotFound)
}

func TestNewAuthenticator_Invalid(t *testing.T) {
	store, err := auth.NewMemoryStore()
	require.NoError(t, err)

	_, err = auth.NewAuthenticator(auth.Options{Store: store})
	require.ErrorIs(t, err, srp.ErrInvalidGroup)

	_, err = auth.NewAuthenticator(auth.Options{Params: testParams(t)})
	require.Error(t, err)

	_, err = auth.NewAuthenticator(auth.Options{Params: testParams(t), Store: store, FakeSeed: []byte("short")})
	require.Error(t, err)
}
