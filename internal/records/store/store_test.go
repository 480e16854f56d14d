package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"oncocentre/internal/records/models"
	"oncocentre/internal/storage"
	id "oncocentre/pkg/domain"
	"oncocentre/pkg/platform/sentinel"
)

type recordStore interface {
	Create(ctx context.Context, rec *models.ProtectedRecord) error
	FindByExternalID(ctx context.Context, externalID string) (*models.ProtectedRecord, error)
	ListExternalIDs(ctx context.Context, prefix string) ([]string, error)
	FindByIPPIndex(ctx context.Context, creator id.IdentityID, index string) ([]*models.ProtectedRecord, error)
	List(ctx context.Context) ([]*models.ProtectedRecord, error)
	ListByCreator(ctx context.Context, creator id.IdentityID) ([]*models.ProtectedRecord, error)
	CountByCreator(ctx context.Context, creator id.IdentityID) (int, error)
	Count(ctx context.Context) (int, error)
}

var (
	_ recordStore = (*InMemoryStore)(nil)
	_ recordStore = (*GormStore)(nil)
)

type StoreSuite struct {
	suite.Suite
	newStore func() recordStore
	store    recordStore
	ctx      context.Context
	base     time.Time
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
	s.base = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() recordStore { return NewInMemory() }})
}

func TestSQLiteStoreSuite(t *testing.T) {
	s := &StoreSuite{}
	s.newStore = func() recordStore {
		cfg := storage.Config{Type: storage.DatabaseTypeSQLite}
		cfg.ApplyDefaults(filepath.Join(s.T().TempDir(), "db"))
		db, err := storage.Open(cfg, &models.ProtectedRecord{})
		s.Require().NoError(err)
		s.T().Cleanup(func() { _ = storage.Close(db) })
		return NewGorm(db)
	}
	suite.Run(t, s)
}

func (s *StoreSuite) record(externalID string, creator id.IdentityID, ippIndex string, offset time.Duration) *models.ProtectedRecord {
	return &models.ProtectedRecord{
		ID:                  id.NewRecordID(),
		ExternalID:          externalID,
		IPPCiphertext:       "enc1:00000000:ipp",
		IPPIndex:            ippIndex,
		FirstNameCiphertext: "enc1:00000000:first",
		LastNameCiphertext:  "enc1:00000000:last",
		BirthDateCiphertext: "enc1:00000000:birth",
		Sex:                 "F",
		CreatedBy:           creator,
		CreatedAt:           s.base.Add(offset),
	}
}

func (s *StoreSuite) TestCreateAndFind() {
	creator := id.NewIdentityID()
	rec := s.record("ONCOCENTRE_2025_00001", creator, "idx", 0)
	s.Require().NoError(s.store.Create(s.ctx, rec))

	got, err := s.store.FindByExternalID(s.ctx, "ONCOCENTRE_2025_00001")
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)
	s.Equal(creator, got.CreatedBy)
	s.Equal("enc1:00000000:ipp", got.IPPCiphertext)

	_, err = s.store.FindByExternalID(s.ctx, "ONCOCENTRE_2025_00002")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestExternalIDIsUnique() {
	s.Require().NoError(s.store.Create(s.ctx, s.record("ONCOCENTRE_2025_00001", id.NewIdentityID(), "a", 0)))
	err := s.store.Create(s.ctx, s.record("ONCOCENTRE_2025_00001", id.NewIdentityID(), "b", time.Minute))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *StoreSuite) TestListExternalIDsMatchesPrefixLiterally() {
	creator := id.NewIdentityID()
	for i, externalID := range []string{"ONCOCENTRE_2025_00001", "ONCOCENTRE_2025_00002", "ONCOCENTRE_2024_00009", "ONCOCENTREX2025X00003"} {
		s.Require().NoError(s.store.Create(s.ctx, s.record(externalID, creator, "x", time.Duration(i)*time.Minute)))
	}
	got, err := s.store.ListExternalIDs(s.ctx, "ONCOCENTRE_2025_")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"ONCOCENTRE_2025_00001", "ONCOCENTRE_2025_00002"}, got)
}

func (s *StoreSuite) TestListingsAreNewestFirst() {
	alice, bob := id.NewIdentityID(), id.NewIdentityID()
	s.Require().NoError(s.store.Create(s.ctx, s.record("ONCOCENTRE_2025_00001", alice, "a1", 0)))
	s.Require().NoError(s.store.Create(s.ctx, s.record("ONCOCENTRE_2025_00002", bob, "b1", time.Hour)))
	s.Require().NoError(s.store.Create(s.ctx, s.record("ONCOCENTRE_2025_00003", alice, "a2", 2*time.Hour)))

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("ONCOCENTRE_2025_00003", all[0].ExternalID)
	s.Equal("ONCOCENTRE_2025_00001", all[2].ExternalID)

	mine, err := s.store.ListByCreator(s.ctx, alice)
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal("ONCOCENTRE_2025_00003", mine[0].ExternalID)

	n, err := s.store.CountByCreator(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal(2, n)
	n, err = s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *StoreSuite) TestFindByIPPIndexIsScopedToCreator() {
	alice, bob := id.NewIdentityID(), id.NewIdentityID()
	s.Require().NoError(s.store.Create(s.ctx, s.record("ONCOCENTRE_2025_00001", alice, "same", 0)))
	s.Require().NoError(s.store.Create(s.ctx, s.record("ONCOCENTRE_2025_00002", bob, "same", time.Minute)))

	got, err := s.store.FindByIPPIndex(s.ctx, alice, "same")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("ONCOCENTRE_2025_00001", got[0].ExternalID)

	got, err = s.store.FindByIPPIndex(s.ctx, alice, "other")
	s.Require().NoError(err)
	s.Empty(got)
}

func TestGormColumnNames(t *testing.T) {
	cfg := storage.Config{Type: storage.DatabaseTypeSQLite}
	cfg.ApplyDefaults(filepath.Join(t.TempDir(), "db"))
	db, err := storage.Open(cfg, &models.ProtectedRecord{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = storage.Close(db) })

	for _, column := range []string{"external_id", "ipp_ciphertext", "ipp_index", "created_by"} {
		if !db.Migrator().HasColumn(&models.ProtectedRecord{}, column) {
			t.Errorf("protected_records has no %s column", column)
		}
	}
}
