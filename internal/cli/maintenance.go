package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dpetrovs/passvault/internal/app"
	"github.com/dpetrovs/passvault/internal/clockx"
	"github.com/dpetrovs/passvault/internal/config"
	"github.com/dpetrovs/passvault/internal/logging"
	"github.com/dpetrovs/passvault/internal/migrate"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show schema version and applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			version, err := a.Migrator.CurrentVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Database: %s\nSchema version: %d\n", a.Config.DatabasePath, version)
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			db, err := app.OpenDatabase(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
			engine := migrate.NewEngine(db, cfg.DatabasePath, logger, clockx.System())
			if err := engine.EnsureBaseSchema(ctx); err != nil {
				return err
			}
			applied, err := engine.Apply(ctx)
			if err != nil {
				return err
			}
			version, err := engine.CurrentVersion(ctx)
			if err != nil {
				return err
			}
			if applied {
				fmt.Printf("Migrated to schema version %d\n", version)
			} else {
				fmt.Printf("Already up to date (schema version %d)\n", version)
			}
			return nil
		},
	}
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Create an on-demand backup of the vault file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			path, err := a.Migrator.Backup(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Backup written to %s\n", path)
			return nil
		},
	}
}

func newCleanupBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-backups",
		Short: "Delete backups older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			n, err := a.Migrator.CleanupOldBackups(ctx, a.Config.BackupRetentionDays)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d old backups\n", n)
			return nil
		},
	}
}

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List active sessions (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			token, _, cleanup, err := withSession(ctx, a)
			if err != nil {
				return err
			}
			defer cleanup()

			summaries, err := a.Sessions.ListActive(token)
			if err != nil {
				return err
			}
			for _, s := range summaries {
				fmt.Printf("%s owner=%d client=%s active=%d expires=%s\n",
					s.ID, s.OwnerID, s.ClientContext, s.ActivityCount,
					s.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}
