package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dpetrovs/passvault/internal/flagx"
	"github.com/dpetrovs/passvault/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "5m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files; its fields are copied into the runtime Config.
// Absent fields leave the corresponding Config values untouched.
type JsonConfig struct {
	DatabasePath           *string         `json:"database_path"`
	PBKDF2Iterations       *int            `json:"pbkdf2_iterations"`
	BcryptCost             *int            `json:"bcrypt_cost"`
	SessionTimeout         *timex.Duration `json:"session_timeout"`
	MaxSessionsPerIdentity *int            `json:"max_sessions_per_identity"`
	LockoutThreshold       *int            `json:"lockout_threshold"`
	LockoutDuration        *timex.Duration `json:"lockout_duration"`
	SweepInterval          *timex.Duration `json:"sweep_interval"`
	BackupRetentionDays    *int            `json:"backup_retention_days"`
	PassphraseCacheMode    *string         `json:"passphrase_cache_mode"`
	PassphraseCacheTTL     *timex.Duration `json:"passphrase_cache_ttl"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config flags; when
// neither is set, no JSON file is loaded.
func parseJson(config *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if c.DatabasePath != nil {
		config.DatabasePath = *c.DatabasePath
	}
	if c.PBKDF2Iterations != nil {
		config.PBKDF2Iterations = *c.PBKDF2Iterations
	}
	if c.BcryptCost != nil {
		config.BcryptCost = *c.BcryptCost
	}
	if c.SessionTimeout != nil {
		config.SessionTimeout = time.Duration(c.SessionTimeout.Duration)
	}
	if c.MaxSessionsPerIdentity != nil {
		config.MaxSessionsPerIdentity = *c.MaxSessionsPerIdentity
	}
	if c.LockoutThreshold != nil {
		config.LockoutThreshold = *c.LockoutThreshold
	}
	if c.LockoutDuration != nil {
		config.LockoutDuration = time.Duration(c.LockoutDuration.Duration)
	}
	if c.SweepInterval != nil {
		config.SweepInterval = time.Duration(c.SweepInterval.Duration)
	}
	if c.BackupRetentionDays != nil {
		config.BackupRetentionDays = *c.BackupRetentionDays
	}
	if c.PassphraseCacheMode != nil {
		config.PassphraseCacheMode = *c.PassphraseCacheMode
	}
	if c.PassphraseCacheTTL != nil {
		config.PassphraseCacheTTL = time.Duration(c.PassphraseCacheTTL.Duration)
	}
	return nil
}
