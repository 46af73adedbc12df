package auth

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fzdarsky/srp6a/pkg/srp"
)

func newTestSession(t *testing.T) *srp.ServerSession {
	t.Helper()

	g, err := srp.GroupByBits(1024)
	if err != nil {
		t.Fatalf("GroupByBits() failed: %v", err)
	}
	p := srp.Params{Group: g}
	salt := bytes.Repeat([]byte{1}, 16)

	v, err := srp.ComputeVerifier(p, "alice", "correcthorse", salt)
	if err != nil {
		t.Fatalf("ComputeVerifier() failed: %v", err)
	}
	_, a, err := srp.StartClient(p, "alice", "correcthorse")
	if err != nil {
		t.Fatalf("StartClient() failed: %v", err)
	}
	session, _, err := srp.StartServer(p, "alice", salt, v, a)
	if err != nil {
		t.Fatalf("StartServer() failed: %v", err)
	}
	return session
}

func TestPendingStore_PutAndTake(t *testing.T) {
	store := NewPendingStore(5 * time.Minute)
	defer store.Stop()

	session := newTestSession(t)

	id, err := store.Put(session, false)
	if err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if id == "" {
		t.Fatal("Put() returned empty handshake ID")
	}
	if count := store.Count(); count != 1 {
		t.Errorf("expected 1 pending handshake, got %d", count)
	}

	got, unknown, err := store.Take(id)
	if err != nil {
		t.Fatalf("Take() failed: %v", err)
	}
	if got != session {
		t.Error("Take() returned a different session")
	}
	if unknown {
		t.Error("expected a registered identity")
	}

	// One-time use.
	if _, _, err := store.Take(id); !errors.Is(err, ErrHandshakeNotFound) {
		t.Errorf("second Take() should fail with ErrHandshakeNotFound, got %v", err)
	}
	if count := store.Count(); count != 0 {
		t.Errorf("expected 0 pending handshakes, got %d", count)
	}
}

func TestPendingStore_UniqueIDs(t *testing.T) {
	store := NewPendingStore(time.Minute)
	defer store.Stop()

	session := newTestSession(t)
	seen := make(map[string]bool)
	for range 50 {
		id, err := store.Put(session, true)
		if err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate handshake ID %q", id)
		}
		seen[id] = true
	}
}

func TestPendingStore_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newPendingStore(time.Minute, clock.now)
	defer store.Stop()

	session := newTestSession(t)
	id, err := store.Put(session, false)
	if err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	clock.advance(2 * time.Minute)

	if _, _, err := store.Take(id); !errors.Is(err, ErrHandshakeNotFound) {
		t.Errorf("expected expired handshake, got %v", err)
	}
	if session.State() != srp.StateFailed {
		t.Errorf("expired session should be closed, state %s", session.State())
	}
}

func TestPendingStore_Cleanup(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newPendingStore(time.Minute, clock.now)
	defer store.Stop()

	if _, err := store.Put(newTestSession(t), false); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	clock.advance(30 * time.Second)
	if _, err := store.Put(newTestSession(t), false); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	clock.advance(45 * time.Second)
	store.cleanup()

	if count := store.Count(); count != 1 {
		t.Errorf("expected 1 handshake after cleanup, got %d", count)
	}
}

func TestPendingStore_StopDiscards(t *testing.T) {
	store := NewPendingStore(0)
	if store.ttl != DefaultHandshakeTTL {
		t.Errorf("expected default TTL, got %v", store.ttl)
	}

	session := newTestSession(t)
	if _, err := store.Put(session, false); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	store.Stop()
	store.Stop()

	if store.Count() != 0 {
		t.Error("Stop() should discard pending handshakes")
	}
	if session.State() != srp.StateFailed {
		t.Errorf("discarded session should be closed, state %s", session.State())
	}
}
