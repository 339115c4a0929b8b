package config

import (
	"flag"
	"os"
	"time"

	"github.com/dpetrovs/passvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-f string   path to the vault database file
//	-i int      PBKDF2 iteration count
//	-o int      bcrypt cost factor
//	-t int      session timeout, minutes
//	-m int      max concurrent sessions per identity
//	-l int      lockout threshold (failed attempts)
//	-d int      lockout duration, minutes
//	-w int      sweep interval, minutes
//	-r int      backup retention, days
//	-p string   passphrase cache mode (never|ttl|session)
//	-e int      passphrase cache TTL, minutes
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then
//     converted to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-f", "-i", "-o", "-t", "-m", "-l", "-d", "-w", "-r", "-p", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabasePath, "f", config.DatabasePath, "vault database file")
	fs.IntVar(&config.PBKDF2Iterations, "i", config.PBKDF2Iterations, "pbkdf2 iteration count")
	fs.IntVar(&config.BcryptCost, "o", config.BcryptCost, "bcrypt cost factor")

	sessionTimeout := fs.Int("t", int(config.SessionTimeout.Minutes()), "session timeout (in minutes)")
	fs.IntVar(&config.MaxSessionsPerIdentity, "m", config.MaxSessionsPerIdentity, "max sessions per identity")
	fs.IntVar(&config.LockoutThreshold, "l", config.LockoutThreshold, "lockout threshold")
	lockoutDuration := fs.Int("d", int(config.LockoutDuration.Minutes()), "lockout duration (in minutes)")
	sweepInterval := fs.Int("w", int(config.SweepInterval.Minutes()), "sweep interval (in minutes)")
	fs.IntVar(&config.BackupRetentionDays, "r", config.BackupRetentionDays, "backup retention (in days)")
	fs.StringVar(&config.PassphraseCacheMode, "p", config.PassphraseCacheMode, "passphrase cache mode (never|ttl|session)")
	cacheTTL := fs.Int("e", int(config.PassphraseCacheTTL.Minutes()), "passphrase cache TTL (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTimeout = time.Duration(*sessionTimeout) * time.Minute
	config.LockoutDuration = time.Duration(*lockoutDuration) * time.Minute
	config.SweepInterval = time.Duration(*sweepInterval) * time.Minute
	config.PassphraseCacheTTL = time.Duration(*cacheTTL) * time.Minute
}
