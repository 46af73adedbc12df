// Package config provides configuration loading and validation for SRP-6a deployments.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fzdarsky/srp6a/pkg/srp"
	"gopkg.in/yaml.v3"
)

// StorePathEnv overrides store.path when set.
const StorePathEnv = "SRP_STORE_PATH"

const fakeSeedBytes = 32

// Config represents an SRP-6a deployment's configuration. Client and server
// must load identical srp sections.
type Config struct {
	SRP       SRPSettings       `yaml:"srp"`
	Handshake HandshakeSettings `yaml:"handshake"`
	Store     StoreSettings     `yaml:"store"`
	Logging   LoggingSettings   `yaml:"logging"`
}

// SRPSettings selects the group, digest and key derivation.
type SRPSettings struct {
	Group          string       `yaml:"group"`
	CustomGroup    *CustomGroup `yaml:"custom_group,omitempty"`
	Hash           string       `yaml:"hash"`
	SaltLength     int          `yaml:"salt_length"`
	EphemeralBytes int          `yaml:"ephemeral_bytes"`
	KDF            KDFSettings  `yaml:"kdf"`
}

// CustomGroup is a caller-supplied group. It replaces srp.group when set.
type CustomGroup struct {
	Name string `yaml:"name"`
	N    string `yaml:"n"` // hexadecimal
	G    int64  `yaml:"g"`
}

// KDFSettings selects how the private key x is derived from the password.
// Zero tuning values select the library defaults.
type KDFSettings struct {
	Scheme     string `yaml:"scheme"`
	Iterations int    `yaml:"iterations,omitempty"`
	Time       uint32 `yaml:"time,omitempty"`
	Memory     uint32 `yaml:"memory,omitempty"` // KiB
	Threads    uint8  `yaml:"threads,omitempty"`
	N          int    `yaml:"n,omitempty"`
	R          int    `yaml:"r,omitempty"`
	P          int    `yaml:"p,omitempty"`
}

// HandshakeSettings contains server-side handshake limits.
type HandshakeSettings struct {
	TTL          string `yaml:"ttl"`
	MaxFailures  int    `yaml:"max_failures"`
	Lockout      string `yaml:"lockout"`
	FakeSeedFile string `yaml:"fake_seed_file,omitempty"`
}

// StoreSettings locates the verifier store.
type StoreSettings struct {
	Path string `yaml:"path"`
}

// LoggingSettings contains logging configuration.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// KDF schemes.
const (
	SchemeRFC5054  = "rfc5054"
	SchemePBKDF2   = "pbkdf2"
	SchemeScrypt   = "scrypt"
	SchemeArgon2id = "argon2id"
)

// Default returns the configuration used for fields a file leaves unset.
func Default() *Config {
	return &Config{
		SRP: SRPSettings{
			Group:      "rfc5054-2048",
			Hash:       "sha256",
			SaltLength: srp.DefaultSaltBytes,
			KDF:        KDFSettings{Scheme: SchemeRFC5054},
		},
		Handshake: HandshakeSettings{
			TTL:         "2m",
			MaxFailures: 5,
			Lockout:     "60s",
		},
		Store: StoreSettings{
			Path: "/var/lib/srp6a/verifiers.yaml",
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and parses the configuration file on top of Default.
//
//nolint:gosec // G304: Config path is from command-line argument
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// ApplyEnv applies environment variable overrides.
func (c *Config) ApplyEnv() {
	if storePath := os.Getenv(StorePathEnv); storePath != "" {
		c.Store.Path = storePath
	}
}

// validate performs basic validation on the configuration.
// Detailed validation is in validate.go.
func (c *Config) validate() error {
	if c.SRP.Group == "" && c.SRP.CustomGroup == nil {
		return errors.New("srp.group is required")
	}

	if c.SRP.Hash == "" {
		return errors.New("srp.hash is required")
	}

	if c.Handshake.TTL == "" {
		return errors.New("handshake.ttl is required")
	}

	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}

	return nil
}

// Group resolves the configured group.
func (c *Config) Group() (*srp.Group, error) {
	if cg := c.SRP.CustomGroup; cg != nil {
		n, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ReplaceAll(cg.N, " ", ""), "0x"), 16)
		if !ok {
			return nil, fmt.Errorf("%w: custom_group.n is not hexadecimal", srp.ErrInvalidGroup)
		}
		return srp.NewGroup(cg.Name, n, big.NewInt(cg.G))
	}
	return srp.LookupGroup(c.SRP.Group)
}

// KeyDerivation returns the configured derivation of x.
func (c *Config) KeyDerivation() (srp.KeyDerivation, error) {
	k := c.SRP.KDF
	switch strings.ToLower(k.Scheme) {
	case "", SchemeRFC5054:
		return srp.RFC5054{}, nil
	case SchemePBKDF2:
		return srp.PBKDF2{Iterations: k.Iterations}, nil
	case SchemeScrypt:
		return srp.Scrypt{N: k.N, R: k.R, P: k.P}, nil
	case SchemeArgon2id:
		return srp.Argon2id{Time: k.Time, Memory: k.Memory, Threads: k.Threads}, nil
	default:
		return nil, fmt.Errorf("unknown kdf scheme %q", k.Scheme)
	}
}

// Params builds the protocol parameters from the srp section.
func (c *Config) Params() (srp.Params, error) {
	grp, err := c.Group()
	if err != nil {
		return srp.Params{}, err
	}

	h, err := srp.ParseHash(c.SRP.Hash)
	if err != nil {
		return srp.Params{}, err
	}

	kdf, err := c.KeyDerivation()
	if err != nil {
		return srp.Params{}, err
	}

	return srp.Params{
		Group:          grp,
		Hash:           h,
		KDF:            kdf,
		EphemeralBytes: c.SRP.EphemeralBytes,
	}, nil
}

// GetHandshakeTTL parses and returns how long a handshake may await its proof.
func (c *Config) GetHandshakeTTL() (time.Duration, error) {
	duration, err := time.ParseDuration(c.Handshake.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid handshake.ttl: %w", err)
	}

	if duration < time.Second || duration > 10*time.Minute {
		return 0, errors.New("handshake.ttl must be between 1s and 10m")
	}

	return duration, nil
}

// GetLockout parses and returns the lockout duration. Empty selects the default.
func (c *Config) GetLockout() (time.Duration, error) {
	if c.Handshake.Lockout == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(c.Handshake.Lockout)
	if err != nil {
		return 0, fmt.Errorf("invalid handshake.lockout: %w", err)
	}

	if duration < time.Second {
		return 0, errors.New("handshake.lockout must be at least 1s")
	}

	return duration, nil
}

// FakeSeed returns the seed keying fake records for unknown identities. A
// missing seed file is created with a fresh random seed; no file configured
// returns nil.
func (c *Config) FakeSeed() ([]byte, error) {
	path := c.Handshake.FakeSeedFile
	if path == "" {
		return nil, nil
	}

	//nolint:gosec // G304: path is from configuration
	seed, err := os.ReadFile(path)
	if err == nil {
		return seed, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read fake seed file: %w", err)
	}

	seed = make([]byte, fakeSeedBytes)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate fake seed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create fake seed directory: %w", err)
	}
	if err := os.WriteFile(path, seed, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write fake seed file: %w", err)
	}
	return seed, nil
}
