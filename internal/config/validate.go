package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fzdarsky/srp6a/pkg/srp"
)

// Validate performs comprehensive validation on the configuration.
func Validate(cfg *Config) error {
	if err := validateSRP(cfg); err != nil {
		return fmt.Errorf("srp validation failed: %w", err)
	}

	if err := validateHandshake(cfg); err != nil {
		return fmt.Errorf("handshake validation failed: %w", err)
	}

	if err := validateStore(cfg); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}

	if err := validateLogging(cfg); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	return nil
}

func validateSRP(cfg *Config) error {
	if cfg.SRP.CustomGroup != nil && cfg.SRP.CustomGroup.N == "" {
		return fmt.Errorf("custom_group.n is required")
	}

	// Resolves the group, digest and KDF scheme.
	if _, err := cfg.Params(); err != nil {
		return err
	}

	if cfg.SRP.SaltLength != 0 && cfg.SRP.SaltLength < srp.MinSaltBytes {
		return fmt.Errorf("salt_length must be at least %d", srp.MinSaltBytes)
	}

	if cfg.SRP.EphemeralBytes != 0 && cfg.SRP.EphemeralBytes < srp.MinEphemeralBytes {
		return fmt.Errorf("ephemeral_bytes must be at least %d", srp.MinEphemeralBytes)
	}

	k := cfg.SRP.KDF
	if k.Iterations < 0 || k.N < 0 || k.R < 0 || k.P < 0 {
		return fmt.Errorf("kdf tuning values cannot be negative")
	}
	if k.N != 0 && k.N&(k.N-1) != 0 {
		return fmt.Errorf("kdf.n must be a power of two")
	}

	return nil
}

func validateHandshake(cfg *Config) error {
	if _, err := cfg.GetHandshakeTTL(); err != nil {
		return err
	}

	if _, err := cfg.GetLockout(); err != nil {
		return err
	}

	if cfg.Handshake.MaxFailures < 0 {
		return fmt.Errorf("max_failures cannot be negative")
	}

	if p := cfg.Handshake.FakeSeedFile; p != "" && !filepath.IsAbs(p) {
		return fmt.Errorf("fake_seed_file must be an absolute path")
	}

	return nil
}

func validateStore(cfg *Config) error {
	if !filepath.IsAbs(cfg.Store.Path) {
		return fmt.Errorf("store.path must be an absolute path")
	}

	if strings.Contains(cfg.Store.Path, "..") {
		return fmt.Errorf("store.path cannot contain '..'")
	}

	return nil
}

func validateLogging(cfg *Config) error {
	// Validate log level
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, cfg.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %s", strings.Join(validLevels, ", "))
	}

	// Validate log format
	validFormats := []string{"json", "human"}
	if !slices.Contains(validFormats, cfg.Logging.Format) {
		return fmt.Errorf("logging.format must be one of: %s", strings.Join(validFormats, ", "))
	}

	return nil
}
