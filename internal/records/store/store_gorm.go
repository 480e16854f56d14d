package store

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"oncocentre/internal/records/models"
	"oncocentre/internal/storage"
	id "oncocentre/pkg/domain"
	txcontext "oncocentre/pkg/platform/tx"
)

const newestFirst = "created_at DESC, external_id DESC"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// GormStore persists records in the protected_records table.
type GormStore struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return txcontext.DB(ctx, s.db)
}

func (s *GormStore) Create(ctx context.Context, rec *models.ProtectedRecord) error {
	return storage.Translate(s.conn(ctx).Create(rec).Error, "create record")
}

func (s *GormStore) FindByExternalID(ctx context.Context, externalID string) (*models.ProtectedRecord, error) {
	var r models.ProtectedRecord
	if err := s.conn(ctx).Where("external_id = ?", externalID).First(&r).Error; err != nil {
		return nil, storage.Translate(err, "find record")
	}
	return &r, nil
}

// ListExternalIDs returns identifiers starting with prefix. The prefix is
// matched literally; its underscores are not wildcards.
func (s *GormStore) ListExternalIDs(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := s.conn(ctx).Model(&models.ProtectedRecord{}).
		Where(`external_id LIKE ? ESCAPE '\'`, likeEscaper.Replace(prefix)+"%").
		Pluck("external_id", &out).Error
	if err != nil {
		return nil, storage.Translate(err, "list record identifiers")
	}
	return out, nil
}

func (s *GormStore) FindByIPPIndex(ctx context.Context, creator id.IdentityID, index string) ([]*models.ProtectedRecord, error) {
	var out []*models.ProtectedRecord
	err := s.conn(ctx).Where("created_by = ? AND ipp_index = ?", creator, index).
		Order(newestFirst).Find(&out).Error
	if err != nil {
		return nil, storage.Translate(err, "find records by ipp")
	}
	return out, nil
}

func (s *GormStore) List(ctx context.Context) ([]*models.ProtectedRecord, error) {
	var out []*models.ProtectedRecord
	if err := s.conn(ctx).Order(newestFirst).Find(&out).Error; err != nil {
		return nil, storage.Translate(err, "list records")
	}
	return out, nil
}

func (s *GormStore) ListByCreator(ctx context.Context, creator id.IdentityID) ([]*models.ProtectedRecord, error) {
	var out []*models.ProtectedRecord
	if err := s.conn(ctx).Where("created_by = ?", creator).Order(newestFirst).Find(&out).Error; err != nil {
		return nil, storage.Translate(err, "list records by creator")
	}
	return out, nil
}

func (s *GormStore) CountByCreator(ctx context.Context, creator id.IdentityID) (int, error) {
	var n int64
	if err := s.conn(ctx).Model(&models.ProtectedRecord{}).Where("created_by = ?", creator).Count(&n).Error; err != nil {
		return 0, storage.Translate(err, "count records by creator")
	}
	return int(n), nil
}

func (s *GormStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.conn(ctx).Model(&models.ProtectedRecord{}).Count(&n).Error; err != nil {
		return 0, storage.Translate(err, "count records")
	}
	return int(n), nil
}
