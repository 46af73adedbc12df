package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/fzdarsky/srp6a/pkg/srp"
)

const (
	// DefaultHandshakeTTL bounds the time between challenge and proof.
	DefaultHandshakeTTL = 2 * time.Minute

	// handshakeIDBytes is the size of a handshake ID (128 bits).
	handshakeIDBytes = 16

	pendingCleanupInterval = 1 * time.Minute
)

type pendingHandshake struct {
	session   *srp.ServerSession
	unknown   bool // answered with a fake record
	expiresAt time.Time
}

// PendingStore keeps server sessions between the challenge and proof messages.
// Entries are single-use and expire after the configured TTL.
type PendingStore struct {
	mu       sync.Mutex
	pending  map[string]*pendingHandshake
	ttl      time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPendingStore creates a store with the given TTL and starts its cleanup loop.
func NewPendingStore(ttl time.Duration) *PendingStore {
	return newPendingStore(ttl, time.Now)
}

func newPendingStore(ttl time.Duration, now func() time.Time) *PendingStore {
	if ttl <= 0 {
		ttl = DefaultHandshakeTTL
	}

	store := &PendingStore{
		pending: make(map[string]*pendingHandshake),
		ttl:     ttl,
		now:     now,
		stopCh:  make(chan struct{}),
	}

	go store.cleanupLoop()

	return store
}

// Put saves a server session and returns the handshake ID to hand to the client.
func (s *PendingStore) Put(session *srp.ServerSession, unknown bool) (string, error) {
	idBytes := make([]byte, handshakeIDBytes)
	if _, err := rand.Read(idBytes); err != nil {
		return "", fmt.Errorf("failed to generate handshake ID: %w", err)
	}
	id := base64.RawURLEncoding.EncodeToString(idBytes)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[id] = &pendingHandshake{
		session:   session,
		unknown:   unknown,
		expiresAt: s.now().Add(s.ttl),
	}

	return id, nil
}

// Take removes and returns the session for id. It returns ErrHandshakeNotFound
// when the ID is unknown, already used or expired.
func (s *PendingStore) Take(id string) (*srp.ServerSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.pending[id]
	if !exists {
		return nil, false, ErrHandshakeNotFound
	}
	delete(s.pending, id)

	if s.now().After(entry.expiresAt) {
		entry.session.Close()
		return nil, false, ErrHandshakeNotFound
	}

	return entry.session, entry.unknown, nil
}

// Count returns the number of pending handshakes.
func (s *PendingStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop ends the cleanup loop and discards all pending handshakes.
func (s *PendingStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)

		s.mu.Lock()
		defer s.mu.Unlock()
		for id, entry := range s.pending {
			entry.session.Close()
			delete(s.pending, id)
		}
	})
}

func (s *PendingStore) cleanupLoop() {
	ticker := time.NewTicker(pendingCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup closes and removes expired handshakes.
func (s *PendingStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, entry := range s.pending {
		if now.After(entry.expiresAt) {
			entry.session.Close()
			delete(s.pending, id)
		}
	}
}
