// Package config handles configuration for the vault,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/dpetrovs/passvault/internal/common"
	"github.com/dpetrovs/passvault/internal/envelope"
	"github.com/dpetrovs/passvault/internal/store"
)

// Config holds runtime settings for the vault.
//
// Fields:
//   - DatabasePath: path of the primary SQLite store file.
//   - PBKDF2Iterations: envelope key-derivation cost (values below
//     10,000 are rejected).
//   - BcryptCost: slow-hash cost factor for identity passwords.
//   - SessionTimeout / MaxSessionsPerIdentity: session lifetime and cap.
//   - LockoutThreshold / LockoutDuration: failed-authentication lockout.
//   - SweepInterval: background session purge period.
//   - BackupRetentionDays: how long migration backups are kept.
//   - PassphraseCacheMode / PassphraseCacheTTL: opt-in plaintext
//     passphrase caching ("never", "ttl" or "session").
type Config struct {
	DatabasePath           string
	PBKDF2Iterations       int
	BcryptCost             int
	SessionTimeout         time.Duration
	MaxSessionsPerIdentity int
	LockoutThreshold       int
	LockoutDuration        time.Duration
	SweepInterval          time.Duration
	BackupRetentionDays    int
	PassphraseCacheMode    string
	PassphraseCacheTTL     time.Duration
}

// LoadDefaults populates Config with the documented defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "passvault.db"
	c.PBKDF2Iterations = envelope.DefaultIterations
	c.BcryptCost = 12
	c.SessionTimeout = 8 * time.Hour
	c.MaxSessionsPerIdentity = 3
	c.LockoutThreshold = 5
	c.LockoutDuration = 30 * time.Minute
	c.SweepInterval = 5 * time.Minute
	c.BackupRetentionDays = 30
	c.PassphraseCacheMode = "never"
	c.PassphraseCacheTTL = 5 * time.Minute
}

// Validate rejects values below the security floors.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database path is empty", common.ErrInvalidInput)
	}
	if c.PBKDF2Iterations < envelope.MinIterations {
		return fmt.Errorf("%w: pbkdf2 iterations %d below minimum %d",
			common.ErrInvalidInput, c.PBKDF2Iterations, envelope.MinIterations)
	}
	if c.BcryptCost < store.MinBcryptCost {
		return fmt.Errorf("%w: bcrypt cost %d below minimum %d",
			common.ErrInvalidInput, c.BcryptCost, store.MinBcryptCost)
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg); err != nil {
		return nil, err
	}
	parseFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
