// Package storage opens the application database and maps driver errors onto
// the sentinel errors every store returns.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	txcontext "oncocentre/pkg/platform/tx"
)

// Open connects to the configured database and creates missing tables for
// models. Schema evolution beyond table creation is out of scope.
func Open(cfg Config, models ...any) (*gorm.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch cfg.Type {
	case DatabaseTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL allows concurrent readers; busy_timeout makes writers queue
		// instead of failing immediately with SQLITE_BUSY.
		dsn := cfg.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		dialector = sqlite.Open(dsn)
	case DatabaseTypePostgres:
		dialector = postgres.Open(cfg.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("failed to run database migration: %w", err)
		}
	}
	return db, nil
}

// Ping checks that the database answers.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RunInTx runs fn inside a transaction carried in ctx. Stores pick it up via
// pkg/platform/tx, so everything fn writes commits or rolls back together.
// A transaction already present in ctx is reused.
func RunInTx(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(txcontext.WithTx(ctx, tx))
	})
}

// Transactor exposes RunInTx bound to one database.
type Transactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunInTx(ctx, t.db, fn)
}
