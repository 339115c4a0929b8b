package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpetrovs/passvault/internal/common"
)

// withArgs replaces os.Args for the duration of the test.
func withArgs(t *testing.T, args ...string) {
	t.Helper()
	old := os.Args
	os.Args = append([]string{"vault"}, args...)
	t.Cleanup(func() { os.Args = old })
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, "passvault.db", cfg.DatabasePath)
	assert.Equal(t, 100000, cfg.PBKDF2Iterations)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 8*time.Hour, cfg.SessionTimeout)
	assert.Equal(t, 3, cfg.MaxSessionsPerIdentity)
	assert.Equal(t, 5, cfg.LockoutThreshold)
	assert.Equal(t, 30*time.Minute, cfg.LockoutDuration)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 30, cfg.BackupRetentionDays)
	assert.Equal(t, "never", cfg.PassphraseCacheMode)
	assert.Equal(t, 5*time.Minute, cfg.PassphraseCacheTTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty database path", mutate: func(c *Config) { c.DatabasePath = "" }},
		{name: "weak pbkdf2 iterations", mutate: func(c *Config) { c.PBKDF2Iterations = 5000 }},
		{name: "weak bcrypt cost", mutate: func(c *Config) { c.BcryptCost = 4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.LoadDefaults()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), common.ErrInvalidInput)
		})
	}

	cfg := &Config{}
	cfg.LoadDefaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_DefaultsOnly(t *testing.T) {
	withArgs(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "passvault.db", cfg.DatabasePath)
	assert.Equal(t, 8*time.Hour, cfg.SessionTimeout)
}

func TestLoadConfig_JsonOverlay(t *testing.T) {
	path := writeConfigFile(t, `{
		"database_path": "/tmp/other.db",
		"session_timeout": "2h",
		"lockout_duration": 600000000000,
		"passphrase_cache_mode": "ttl",
		"passphrase_cache_ttl": "10m"
	}`)
	withArgs(t, "-c", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.DatabasePath)
	assert.Equal(t, 2*time.Hour, cfg.SessionTimeout)
	assert.Equal(t, 10*time.Minute, cfg.LockoutDuration)
	assert.Equal(t, "ttl", cfg.PassphraseCacheMode)
	assert.Equal(t, 10*time.Minute, cfg.PassphraseCacheTTL)

	// Absent fields keep their defaults.
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 30, cfg.BackupRetentionDays)
}

func TestLoadConfig_FlagsOverrideJson(t *testing.T) {
	path := writeConfigFile(t, `{"database_path": "/tmp/from-json.db", "lockout_threshold": 10}`)
	withArgs(t, "-c", path, "-f", "/tmp/from-flag.db", "-t", "90", "-p", "session")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-flag.db", cfg.DatabasePath)
	assert.Equal(t, 90*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, "session", cfg.PassphraseCacheMode)

	// JSON values not overridden by flags stay in effect.
	assert.Equal(t, 10, cfg.LockoutThreshold)
}

func TestLoadConfig_MissingJsonFile(t *testing.T) {
	withArgs(t, "-c", filepath.Join(t.TempDir(), "nope.json"))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_RejectsWeakFlagValues(t *testing.T) {
	withArgs(t, "-i", "5000")

	_, err := LoadConfig()
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
