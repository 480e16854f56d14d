package identity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"oncocentre/internal/auth/models"
	"oncocentre/internal/storage"
	id "oncocentre/pkg/domain"
	"oncocentre/pkg/platform/sentinel"
)

type identityStore interface {
	FindByUsername(ctx context.Context, username string) (*models.Identity, error)
	FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
	Update(ctx context.Context, identity *models.Identity) error
	Delete(ctx context.Context, identityID id.IdentityID) error
	List(ctx context.Context) ([]*models.Identity, error)
	Stats(ctx context.Context) (models.Stats, error)
}

var (
	_ identityStore = (*InMemoryStore)(nil)
	_ identityStore = (*GormStore)(nil)
)

// StoreSuite holds behaviour every identity store must share.
type StoreSuite struct {
	suite.Suite
	newStore func() identityStore
	store    identityStore
	ctx      context.Context
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() identityStore { return NewInMemory() }})
}

func TestSQLiteStoreSuite(t *testing.T) {
	s := &StoreSuite{}
	s.newStore = func() identityStore {
		cfg := storage.Config{Type: storage.DatabaseTypeSQLite}
		cfg.ApplyDefaults(filepath.Join(s.T().TempDir(), "db"))
		db, err := storage.Open(cfg, &models.Identity{})
		s.Require().NoError(err)
		s.T().Cleanup(func() { _ = storage.Close(db) })
		return NewGorm(db)
	}
	suite.Run(t, s)
}

func (s *StoreSuite) newLocal(username string) *models.Identity {
	i, err := models.NewLocalIdentity(id.NewIdentityID(), username, "$2a$10$hash", false, false, time.Now().UTC().Truncate(time.Second))
	s.Require().NoError(err)
	return i
}

func (s *StoreSuite) TestCreateAndFind() {
	i := s.newLocal("doctor1")
	s.Require().NoError(s.store.Create(s.ctx, i))

	byName, err := s.store.FindByUsername(s.ctx, "doctor1")
	s.Require().NoError(err)
	s.Equal(i.ID, byName.ID)
	s.Equal(models.AuthSourceLocal, byName.AuthSource)
	s.True(byName.Active)

	byID, err := s.store.FindByID(s.ctx, i.ID)
	s.Require().NoError(err)
	s.Equal("doctor1", byID.Username)
}

func (s *StoreSuite) TestNotFound() {
	_, err := s.store.FindByUsername(s.ctx, "ghost")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByID(s.ctx, id.NewIdentityID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Require().ErrorIs(s.store.Update(s.ctx, s.newLocal("ghost")), sentinel.ErrNotFound)
	s.Require().ErrorIs(s.store.Delete(s.ctx, id.NewIdentityID()), sentinel.ErrNotFound)
}

func (s *StoreSuite) TestDuplicateUsernameConflicts() {
	s.Require().NoError(s.store.Create(s.ctx, s.newLocal("doctor1")))
	err := s.store.Create(s.ctx, s.newLocal("doctor1"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *StoreSuite) TestUpdatePersistsZeroValues() {
	i := s.newLocal("doctor1")
	i.IsAdministrator = true
	s.Require().NoError(s.store.Create(s.ctx, i))

	now := time.Now().UTC().Truncate(time.Second)
	i.PromoteToDirectory(models.DirectoryInfo{Username: "doctor1", Email: "d1@example.org"}, now)
	i.Active = false
	i.IsAdministrator = false
	s.Require().NoError(s.store.Update(s.ctx, i))

	got, err := s.store.FindByUsername(s.ctx, "doctor1")
	s.Require().NoError(err)
	s.False(got.Active)
	s.False(got.IsAdministrator)
	s.Empty(got.PasswordHash)
	s.Equal(models.AuthSourceDirectory, got.AuthSource)
	s.Equal("d1@example.org", got.Email)
	s.Require().NotNil(got.LastSyncAt)
	s.True(now.Equal(got.LastSyncAt.UTC()))
}

func (s *StoreSuite) TestDeleteAndList() {
	a := s.newLocal("alice")
	b := s.newLocal("bob")
	s.Require().NoError(s.store.Create(s.ctx, b))
	s.Require().NoError(s.store.Create(s.ctx, a))

	list, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("alice", list[0].Username)

	s.Require().NoError(s.store.Delete(s.ctx, a.ID))
	_, err = s.store.FindByUsername(s.ctx, "alice")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	// the username is free again
	s.Require().NoError(s.store.Create(s.ctx, s.newLocal("alice")))
}

func (s *StoreSuite) TestStats() {
	admin := s.newLocal("admin")
	admin.IsAdministrator = true
	pi := s.newLocal("pi")
	pi.IsPrincipalInvestigator = true
	inactive := s.newLocal("gone")
	inactive.Active = false
	dir, err := models.NewDirectoryIdentity(id.NewIdentityID(), models.DirectoryInfo{Username: "jdoe"}, time.Now().UTC())
	s.Require().NoError(err)

	for _, i := range []*models.Identity{admin, pi, inactive, dir} {
		s.Require().NoError(s.store.Create(s.ctx, i))
	}

	st, err := s.store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Stats{Total: 4, Active: 3, Administrators: 1, PrincipalInvestigators: 1, Directory: 1}, st)
}

func (s *StoreSuite) TestStatsEmpty() {
	st, err := s.store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Stats{}, st)
}
