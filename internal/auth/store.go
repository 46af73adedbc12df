package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Record is the registration state the server keeps for one identity.
type Record struct {
	Identity string
	Salt     []byte
	Verifier []byte
	Group    string // group the verifier was computed in; empty means unchecked
}

// VerifierStore resolves identities to their verifier records.
type VerifierStore interface {
	// Lookup returns the record for identity or ErrIdentityNotFound.
	Lookup(ctx context.Context, identity string) (*Record, error)
}

func validateRecord(rec *Record) error {
	switch {
	case rec.Identity == "":
		return errors.New("identity is required")
	case len(rec.Salt) == 0:
		return errors.New("salt is required")
	case len(rec.Verifier) == 0:
		return errors.New("verifier is required")
	}
	return nil
}

func copyRecord(rec *Record) *Record {
	return &Record{
		Identity: rec.Identity,
		Salt:     slices.Clone(rec.Salt),
		Verifier: slices.Clone(rec.Verifier),
		Group:    rec.Group,
	}
}

// MemoryStore is an in-memory VerifierStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore returns a store seeded with records.
func NewMemoryStore(records ...Record) (*MemoryStore, error) {
	s := &MemoryStore{records: make(map[string]*Record, len(records))}
	for i := range records {
		if err := s.Put(context.Background(), records[i]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Lookup implements VerifierStore.
func (s *MemoryStore) Lookup(_ context.Context, identity string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[identity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, identity)
	}
	return copyRecord(rec), nil
}

// Put adds or replaces the record for rec.Identity.
func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	if err := validateRecord(&rec); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Identity] = copyRecord(&rec)
	return nil
}

// Delete removes the record for identity. Deleting an unknown identity is a no-op.
func (s *MemoryStore) Delete(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identity)
	return nil
}

// Identities lists the registered identities in sorted order.
func (s *MemoryStore) Identities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedKeys(s.records)
}

// fileRecord is the on-disk form of a Record.
type fileRecord struct {
	Identity string `yaml:"identity"`
	Group    string `yaml:"group,omitempty"`
	Salt     string `yaml:"salt"`     // Base64-encoded
	Verifier string `yaml:"verifier"` // Base64-encoded
}

type fileContents struct {
	Records []fileRecord `yaml:"records"`
}

// FileStore is a VerifierStore backed by a YAML file readable only by its owner.
// Records are loaded into memory on open; Put rewrites the file atomically.
type FileStore struct {
	path string
	mem  *MemoryStore
	mu   sync.Mutex // serializes writes to path
}

// OpenFileStore loads the records at path. A missing file yields an empty store
// that is created on the first Put.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: filepath.Clean(path),
		mem:  &MemoryStore{records: make(map[string]*Record)},
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Reload re-reads the backing file, replacing the in-memory records.
func (s *FileStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read verifier store: %w", err)
	}

	var contents fileContents
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return fmt.Errorf("failed to parse verifier store: %w", err)
	}

	records := make(map[string]*Record, len(contents.Records))
	for i, fr := range contents.Records {
		rec, err := fr.decode()
		if err != nil {
			return fmt.Errorf("verifier store record[%d]: %w", i, err)
		}
		if _, dup := records[rec.Identity]; dup {
			return fmt.Errorf("verifier store record[%d]: duplicate identity %q", i, rec.Identity)
		}
		records[rec.Identity] = rec
	}

	s.mem.mu.Lock()
	s.mem.records = records
	s.mem.mu.Unlock()
	return nil
}

// Lookup implements VerifierStore.
func (s *FileStore) Lookup(ctx context.Context, identity string) (*Record, error) {
	return s.mem.Lookup(ctx, identity)
}

// Identities lists the registered identities in sorted order.
func (s *FileStore) Identities() []string { return s.mem.Identities() }

// Put adds or replaces a record and persists the store.
func (s *FileStore) Put(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.Put(ctx, rec); err != nil {
		return err
	}
	return s.persist()
}

// Delete removes a record and persists the store.
func (s *FileStore) Delete(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.Delete(ctx, identity); err != nil {
		return err
	}
	return s.persist()
}

func (s *FileStore) persist() error {
	var contents fileContents
	s.mem.mu.RLock()
	for _, id := range sortedKeys(s.mem.records) {
		contents.Records = append(contents.Records, encodeRecord(s.mem.records[id]))
	}
	s.mem.mu.RUnlock()

	data, err := yaml.Marshal(&contents)
	if err != nil {
		return fmt.Errorf("failed to marshal verifier store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create verifier store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".verifiers-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temporary store file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to restrict store file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write verifier store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write verifier store: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace verifier store: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]*Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func encodeRecord(rec *Record) fileRecord {
	return fileRecord{
		Identity: rec.Identity,
		Group:    rec.Group,
		Salt:     base64.StdEncoding.EncodeToString(rec.Salt),
		Verifier: base64.StdEncoding.EncodeToString(rec.Verifier),
	}
}

func (fr fileRecord) decode() (*Record, error) {
	salt, err := base64.StdEncoding.DecodeString(strings.TrimSpace(fr.Salt))
	if err != nil {
		return nil, fmt.Errorf("salt must be valid base64: %w", err)
	}
	verifier, err := base64.StdEncoding.DecodeString(strings.TrimSpace(fr.Verifier))
	if err != nil {
		return nil, fmt.Errorf("verifier must be valid base64: %w", err)
	}

	rec := &Record{
		Identity: fr.Identity,
		Salt:     salt,
		Verifier: verifier,
		Group:    fr.Group,
	}
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	return rec, nil
}
