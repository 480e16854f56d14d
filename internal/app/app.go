// Package app wires configuration into the services the CLI and the ops
// server use.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"oncocentre/internal/auth/directory"
	"oncocentre/internal/auth/lockout"
	authMetrics "oncocentre/internal/auth/metrics"
	authModels "oncocentre/internal/auth/models"
	"oncocentre/internal/auth/secrets"
	authService "oncocentre/internal/auth/service"
	identityStore "oncocentre/internal/auth/store/identity"
	"oncocentre/internal/fieldcipher"
	"oncocentre/internal/platform/config"
	"oncocentre/internal/platform/httpserver"
	platformMetrics "oncocentre/internal/platform/metrics"
	platformRedis "oncocentre/internal/platform/redis"
	recordsMetrics "oncocentre/internal/records/metrics"
	recordsModels "oncocentre/internal/records/models"
	"oncocentre/internal/records/sequence"
	recordsService "oncocentre/internal/records/service"
	recordsStore "oncocentre/internal/records/store"
	"oncocentre/internal/storage"
	whitelistModels "oncocentre/internal/whitelist/models"
	whitelistService "oncocentre/internal/whitelist/service"
	whitelistStore "oncocentre/internal/whitelist/store"
	"oncocentre/pkg/platform/audit/publisher"
	"oncocentre/pkg/platform/audit/store/gormstore"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Models lists every table the application creates.
var Models = []any{
	&authModels.Identity{},
	&lockout.Record{},
	&whitelistModels.Entry{},
	&recordsModels.ProtectedRecord{},
	&gormstore.Row{},
}

// App holds the wired services. Close releases the connections it opened.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      *gorm.DB
	Metrics *platformMetrics.Metrics
	Redis   *platformRedis.Client

	Cipher     *fieldcipher.Cipher
	KeyCreated bool

	Audit     *publisher.Publisher
	Whitelist *whitelistService.Gate
	Auth      *authService.Service
	Lockout   *lockout.Guard
	Records   *recordsService.Service
	Directory *directory.Client
	Sequence  *sequence.Generator
}

// New opens storage, loads or creates the field key, and builds every
// service. Directory and Redis connections are only made when configured.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: platformMetrics.New(Version)}

	db, err := storage.Open(cfg.Database, Models...)
	if err != nil {
		return nil, err
	}
	a.DB = db

	if err := a.wire(ctx); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	c, created, err := fieldcipher.Open(cfg.Cipher.KeyPath)
	if err != nil {
		return fmt.Errorf("failed to load field key: %w", err)
	}
	a.Cipher, a.KeyCreated = c, created
	if created {
		a.Logger.Warn("generated a new field encryption key; back it up, records are unreadable without it",
			"path", cfg.Cipher.KeyPath, "fingerprint", c.Fingerprint())
	}

	a.Audit = publisher.NewPublisher(gormstore.New(a.DB))
	reg := a.Metrics.Registry

	a.Whitelist = whitelistService.NewGate(whitelistStore.NewGorm(a.DB), cfg.Whitelist.FallbackUsers,
		whitelistService.WithLogger(a.Logger.With("component", "whitelist")),
		whitelistService.WithAuditPublisher(a.Audit))

	locker, err := a.yearLocker(ctx)
	if err != nil {
		return err
	}
	rm := recordsMetrics.New(reg)
	records := recordsStore.NewGorm(a.DB)
	a.Sequence = sequence.NewGenerator(records, locker, cfg.Identifiers.Prefix,
		sequence.WithMaxRetries(cfg.Identifiers.MaxRetries),
		sequence.WithLogger(a.Logger.With("component", "sequence")),
		sequence.WithMetrics(rm))
	a.Records = recordsService.New(records, a.Cipher, a.Sequence,
		recordsService.WithLogger(a.Logger.With("component", "records")),
		recordsService.WithMetrics(rm),
		recordsService.WithAuditPublisher(a.Audit),
		recordsService.WithTx(storage.NewTransactor(a.DB)))

	am := authMetrics.New(reg)
	a.Lockout = lockout.New(lockout.NewGorm(a.DB), cfg.Auth.Lockout,
		lockout.WithLogger(a.Logger.With("component", "lockout")),
		lockout.WithMetrics(am),
		lockout.WithAuditPublisher(a.Audit),
		lockout.WithTx(storage.NewTransactor(a.DB)))

	authOpts := []authService.Option{
		authService.WithLogger(a.Logger.With("component", "auth")),
		authService.WithMetrics(am),
		authService.WithAuditPublisher(a.Audit),
		authService.WithRecordCounter(a.Records),
		authService.WithLockout(a.Lockout),
	}
	if cfg.Auth.DirectoryEnabled {
		a.Directory = directory.NewClient(cfg.Directory, directory.NewNetDialer(cfg.Directory),
			directory.WithLogger(a.Logger.With("component", "directory")))
		authOpts = append(authOpts, authService.WithDirectory(a.Directory))
	}
	a.Auth = authService.New(identityStore.NewGorm(a.DB), secrets.NewHasher(0), a.Whitelist,
		authService.Config{
			LocalEnabled:                cfg.Auth.LocalEnabled,
			DirectoryEnabled:            cfg.Auth.DirectoryEnabled,
			AutoProvisionDirectoryUsers: cfg.Auth.AutoProvisionDirectoryUsers,
		}, authOpts...)
	return nil
}

func (a *App) yearLocker(ctx context.Context) (sequence.YearLocker, error) {
	if a.Config.Identifiers.LockBackend != config.LockBackendRedis {
		return sequence.NewMemoryLocker(), nil
	}
	client, err := platformRedis.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	a.Redis = client
	return sequence.NewRedisLocker(client.Client, a.Config.Identifiers.LockTTL), nil
}

// ReadinessChecks are the dependencies /readyz reports on.
func (a *App) ReadinessChecks() map[string]httpserver.Check {
	checks := map[string]httpserver.Check{
		"database": func(ctx context.Context) error { return storage.Ping(ctx, a.DB) },
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Health
	}
	return checks
}

// ApplyConfig swaps the settings that may change while running: the
// whitelist fallback. Everything else needs a restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Whitelist.RefreshFallback(cfg.Whitelist.FallbackUsers)
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, storage.Close(a.DB))
	}
	return errors.Join(errs...)
}
