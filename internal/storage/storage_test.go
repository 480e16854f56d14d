package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"oncocentre/pkg/platform/sentinel"
	txcontext "oncocentre/pkg/platform/tx"
)

func TestTranslate(t *testing.T) {
	t.Run("record not found", func(t *testing.T) {
		err := Translate(gorm.ErrRecordNotFound, "find identity")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("gorm duplicated key", func(t *testing.T) {
		err := Translate(gorm.ErrDuplicatedKey, "create identity")
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("postgres unique violation", func(t *testing.T) {
		err := Translate(&pgconn.PgError{Code: "23505"}, "create record")
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("sqlite unique violation text", func(t *testing.T) {
		err := Translate(errors.New("constraint failed: UNIQUE constraint failed: protected_records.external_id (2067)"), "create record")
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("context errors pass through", func(t *testing.T) {
		err := Translate(context.DeadlineExceeded, "list")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("anything else is unavailable", func(t *testing.T) {
		err := Translate(errors.New("connection reset by peer"), "count")
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Translate(nil, "noop"))
	})
}

type widget struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;size:64"`
}

type SQLiteSuite struct {
	suite.Suite
	db *gorm.DB
}

func TestSQLiteSuite(t *testing.T) {
	suite.Run(t, new(SQLiteSuite))
}

func (s *SQLiteSuite) SetupTest() {
	cfg := Config{Type: DatabaseTypeSQLite}
	cfg.ApplyDefaults(filepath.Join(s.T().TempDir(), "data"))
	db, err := Open(cfg, &widget{})
	s.Require().NoError(err)
	s.db = db
	s.T().Cleanup(func() { _ = Close(db) })
}

func (s *SQLiteSuite) TestPing() {
	s.Require().NoError(Ping(context.Background(), s.db))
}

func (s *SQLiteSuite) TestUniqueViolationDetected() {
	ctx := context.Background()
	s.Require().NoError(s.db.WithContext(ctx).Create(&widget{Name: "a"}).Error)
	err := s.db.WithContext(ctx).Create(&widget{Name: "a"}).Error
	s.Require().Error(err)
	s.True(IsUniqueViolation(err))
}

func (s *SQLiteSuite) TestRunInTxRollsBack() {
	ctx := context.Background()
	boom := errors.New("boom")

	err := RunInTx(ctx, s.db, func(ctx context.Context) error {
		tx, ok := txcontext.From(ctx)
		s.Require().True(ok)
		s.Require().NoError(tx.Create(&widget{Name: "rolled-back"}).Error)
		return boom
	})
	s.Require().ErrorIs(err, boom)

	var count int64
	s.Require().NoError(s.db.Model(&widget{}).Count(&count).Error)
	s.Equal(int64(0), count)
}

func (s *SQLiteSuite) TestRunInTxReusesOuterTransaction() {
	ctx := context.Background()
	err := RunInTx(ctx, s.db, func(outer context.Context) error {
		outerTx, _ := txcontext.From(outer)
		return RunInTx(outer, s.db, func(inner context.Context) error {
			innerTx, _ := txcontext.From(inner)
			s.Same(outerTx, innerTx)
			return nil
		})
	})
	s.Require().NoError(err)
}

func TestConfigValidate(t *testing.T) {
	t.Run("postgres requires host", func(t *testing.T) {
		cfg := Config{Type: DatabaseTypePostgres}
		cfg.ApplyDefaults("/tmp")
		require.Error(t, cfg.Validate())
		assert.Equal(t, 5432, cfg.Postgres.Port)
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		cfg := Config{Type: "mysql"}
		require.Error(t, cfg.Validate())
	})

	t.Run("sqlite default path under data dir", func(t *testing.T) {
		cfg := Config{}
		cfg.ApplyDefaults("/var/lib/oncocentre")
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "/var/lib/oncocentre/oncocentre.db", cfg.SQLite.Path)
	})
}
