// Package cli implements the vault's command-line front end. It is a
// thin presentation layer: every command authenticates through the
// session manager and calls the store, migration engine or rotation
// workflow; it never touches the database directly.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dpetrovs/passvault/internal/app"
	"github.com/dpetrovs/passvault/internal/common"
	"github.com/dpetrovs/passvault/internal/config"
)

// NewRootCmd builds the vault command tree. Unknown flags are whitelisted
// so the config package can parse its own short flags from os.Args.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vault",
		Short:         "PassVault: a local encrypted credential vault",
		SilenceUsage:  true,
		SilenceErrors: true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{
			UnknownFlags: true,
		},
	}

	root.AddCommand(
		newRegisterCmd(),
		newAddCmd(),
		newListCmd(),
		newShowCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newRotateCmd(),
		newStatusCmd(),
		newMigrateCmd(),
		newBackupCmd(),
		newCleanupBackupsCmd(),
		newSessionsCmd(),
	)
	return root
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// openApp loads configuration and builds the application. Migrations run
// here, before any command logic.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// withSession prompts for credentials and issues a session. The returned
// cleanup function logs the session out and wipes the passphrase.
func withSession(ctx context.Context, a *app.App) (token string, passphrase []byte, cleanup func(), err error) {
	reader := bufio.NewReader(os.Stdin)
	username, err := GetSimpleText(reader, "Username", os.Stdout)
	if err != nil {
		return "", nil, nil, err
	}
	passphrase, err = GetPassword("Master passphrase: ", os.Stdout)
	if err != nil {
		return "", nil, nil, err
	}

	host, _ := os.Hostname()
	token, err = a.Sessions.Issue(ctx, username, string(passphrase), "cli@"+host)
	if err != nil {
		common.WipeByteArray(passphrase)
		return "", nil, nil, err
	}

	cleanup = func() {
		a.Sessions.Logout(token)
		common.WipeByteArray(passphrase)
	}
	return token, passphrase, cleanup, nil
}
