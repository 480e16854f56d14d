package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	authModels "oncocentre/internal/auth/models"
	authService "oncocentre/internal/auth/service"
	"oncocentre/internal/platform/config"
	recordsModels "oncocentre/internal/records/models"
	dErrors "oncocentre/pkg/domain-errors"
	"oncocentre/pkg/requestcontext"
)

type AppSuite struct {
	suite.Suite
	ctx    context.Context
	cfg    *config.Config
	logger *slog.Logger
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupTest() {
	dir := s.T().TempDir()
	s.cfg = config.Default()
	s.cfg.DataDir = dir
	s.cfg.Database.SQLite.Path = filepath.Join(dir, "oncocentre.db")
	s.cfg.Cipher.KeyPath = filepath.Join(dir, "field.key")
	s.cfg.Identifiers.Prefix = "LYON"
	s.cfg.Whitelist.FallbackUsers = []string{"alice"}
	s.Require().NoError(config.Validate(s.cfg))

	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *AppSuite) open() *App {
	a, err := New(s.ctx, s.cfg, s.logger)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = a.Close() })
	return a
}

func (s *AppSuite) TestEndToEnd() {
	a := s.open()
	s.True(a.KeyCreated)
	s.Nil(a.Directory)
	s.Nil(a.Redis)

	_, err := a.Auth.CreateLocalUser(s.ctx, authModels.Operator(), authService.NewUserRequest{
		Username: "alice", Password: "correct horse",
	})
	s.Require().NoError(err)
	_, err = a.Auth.CreateLocalUser(s.ctx, authModels.Operator(), authService.NewUserRequest{
		Username: "bob", Password: "correct horse",
	})
	s.Require().NoError(err)

	_, err = a.Auth.Login(s.ctx, authService.LoginRequest{Username: "bob", Password: "correct horse"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized), "bob is not in the fallback list")

	res, err := a.Auth.Login(s.ctx, authService.LoginRequest{Username: "alice", Password: "correct horse"})
	s.Require().NoError(err)
	s.Equal(authModels.AuthSourceLocal, res.Source)

	p, err := a.Records.Create(s.ctx, res.Identity, recordsModels.PatientInput{
		IPP: "880042", FirstName: "Louise", LastName: "Bernard", BirthDate: "1950-11-30", Sex: "F",
	})
	s.Require().NoError(err)
	s.Equal("LYON_2025_00001", p.ExternalID)

	events, err := a.Audit.ListRecent(s.ctx, 10)
	s.Require().NoError(err)
	s.NotEmpty(events)

	s.Require().NoError(a.Close())

	s.Run("reopen keeps key and data", func() {
		again := s.open()
		s.False(again.KeyCreated)
		got, err := again.Records.Get(s.ctx, res.Identity, p.ExternalID)
		s.Require().NoError(err)
		s.Equal("Louise", got.FirstName)

		next, err := again.Records.PreviewNextIdentifier(s.ctx, res.Identity)
		s.Require().NoError(err)
		s.Equal("LYON_2025_00002", next)
	})
}

func (s *AppSuite) TestApplyConfigRefreshesFallback() {
	a := s.open()
	s.False(a.Whitelist.IsAuthorized(s.ctx, "carol"))

	updated := *s.cfg
	updated.Whitelist.FallbackUsers = []string{"carol"}
	a.ApplyConfig(&updated)

	s.True(a.Whitelist.IsAuthorized(s.ctx, "carol"))
	s.False(a.Whitelist.IsAuthorized(s.ctx, "alice"))
}

func (s *AppSuite) TestReadinessChecks() {
	a := s.open()
	checks := a.ReadinessChecks()
	s.Len(checks, 1)
	s.NoError(checks["database"](s.ctx))
}
