// Package app wires the vault together: configuration, logging, the
// SQLite store, the migration engine, the session manager and the
// rotation workflow, with signal-driven graceful shutdown.
//
// The migration engine always runs before any other component touches
// the store; a backup or migration failure aborts startup.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/dpetrovs/passvault/internal/clockx"
	"github.com/dpetrovs/passvault/internal/config"
	"github.com/dpetrovs/passvault/internal/logging"
	"github.com/dpetrovs/passvault/internal/migrate"
	"github.com/dpetrovs/passvault/internal/rotation"
	"github.com/dpetrovs/passvault/internal/session"
	"github.com/dpetrovs/passvault/internal/store"
)

// App owns the vault's long-lived components.
type App struct {
	Config   *config.Config
	Logger   logging.Logger
	Store    *store.Store
	Sessions *session.Manager
	Rotator  *rotation.Rotator
	Migrator *migrate.Engine

	db *sql.DB
}

// OpenDatabase opens the SQLite file with the pragmas the vault relies
// on: WAL for concurrent readers, foreign keys for cascade deletes and a
// busy timeout to ride out short lock contention.
func OpenDatabase(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// New builds the application from configuration. The schema is ensured
// and migrated here, before any other component is constructed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	handler := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(handler)

	db, err := OpenDatabase(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	now := clockx.System()

	migrator := migrate.NewEngine(db, cfg.DatabasePath, logger, now)
	if err := migrator.EnsureBaseSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := migrator.Apply(ctx); err != nil {
		db.Close()
		return nil, err
	}

	st, err := store.New(db, logger, now, store.Config{
		BcryptCost:       cfg.BcryptCost,
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutDuration:  cfg.LockoutDuration,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	cacheMode, err := session.ParseCacheMode(cfg.PassphraseCacheMode)
	if err != nil {
		db.Close()
		return nil, err
	}
	sessions, err := session.NewManager(st, logger, now, session.Config{
		Timeout:            cfg.SessionTimeout,
		MaxPerIdentity:     cfg.MaxSessionsPerIdentity,
		SweepInterval:      cfg.SweepInterval,
		CacheMode:          cacheMode,
		CacheTTL:           cfg.PassphraseCacheTTL,
		EnvelopeIterations: cfg.PBKDF2Iterations,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Sessions: sessions,
		Rotator:  rotation.NewRotator(st, sessions, logger),
		Migrator: migrator,
		db:       db,
	}, nil
}

// Start launches background workers.
func (a *App) Start(ctx context.Context) {
	a.Sessions.Start(ctx)
	a.Logger.Info(ctx, "vault started", "db", a.Config.DatabasePath)
}

// Close stops the sweep worker, wipes session state and closes the store.
func (a *App) Close(ctx context.Context) {
	a.Sessions.Stop()
	if err := a.db.Close(); err != nil {
		a.Logger.Error(ctx, "closing database", "error", err.Error())
	}
	a.Logger.Info(ctx, "vault stopped")
}

// Run starts the app and blocks until the context is cancelled or an OS
// signal arrives, then shuts down cleanly.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigs
		cancel()
	}()

	a.Start(ctx)
	<-ctx.Done()
	a.Close(context.Background())
}
