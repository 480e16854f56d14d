package identity

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"oncocentre/internal/auth/models"
	"oncocentre/internal/storage"
	id "oncocentre/pkg/domain"
	"oncocentre/pkg/platform/sentinel"
	txcontext "oncocentre/pkg/platform/tx"
)

// GormStore persists identities in the application database.
type GormStore struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return txcontext.DB(ctx, s.db)
}

func (s *GormStore) FindByUsername(ctx context.Context, username string) (*models.Identity, error) {
	var i models.Identity
	if err := s.conn(ctx).Where("username = ?", username).First(&i).Error; err != nil {
		return nil, storage.Translate(err, "find identity by username")
	}
	return &i, nil
}

func (s *GormStore) FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error) {
	var i models.Identity
	if err := s.conn(ctx).Where("id = ?", identityID).First(&i).Error; err != nil {
		return nil, storage.Translate(err, "find identity by id")
	}
	return &i, nil
}

func (s *GormStore) Create(ctx context.Context, identity *models.Identity) error {
	return storage.Translate(s.conn(ctx).Create(identity).Error, "create identity")
}

// Update writes every column, including false flags and cleared hashes.
func (s *GormStore) Update(ctx context.Context, identity *models.Identity) error {
	res := s.conn(ctx).Model(&models.Identity{}).
		Where("id = ?", identity.ID).
		Select("*").
		Omit("created_at").
		Updates(identity)
	if res.Error != nil {
		return storage.Translate(res.Error, "update identity")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update identity %s: %w", identity.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, identityID id.IdentityID) error {
	res := s.conn(ctx).Where("id = ?", identityID).Delete(&models.Identity{})
	if res.Error != nil {
		return storage.Translate(res.Error, "delete identity")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete identity %s: %w", identityID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *GormStore) List(ctx context.Context) ([]*models.Identity, error) {
	var out []*models.Identity
	if err := s.conn(ctx).Order("username ASC").Find(&out).Error; err != nil {
		return nil, storage.Translate(err, "list identities")
	}
	return out, nil
}

func (s *GormStore) Stats(ctx context.Context) (models.Stats, error) {
	var row struct {
		Total                  int
		Active                 int
		Administrators         int
		PrincipalInvestigators int
		Directory              int
	}
	err := s.conn(ctx).Model(&models.Identity{}).Select(
		"COUNT(*) AS total, " +
			"COALESCE(SUM(CASE WHEN active THEN 1 ELSE 0 END), 0) AS active, " +
			"COALESCE(SUM(CASE WHEN is_administrator THEN 1 ELSE 0 END), 0) AS administrators, " +
			"COALESCE(SUM(CASE WHEN is_principal_investigator THEN 1 ELSE 0 END), 0) AS principal_investigators, " +
			"COALESCE(SUM(CASE WHEN auth_source = 'directory' THEN 1 ELSE 0 END), 0) AS directory",
	).Scan(&row).Error
	if err != nil {
		return models.Stats{}, storage.Translate(err, "identity stats")
	}
	return models.Stats{
		Total:                  row.Total,
		Active:                 row.Active,
		Administrators:         row.Administrators,
		PrincipalInvestigators: row.PrincipalInvestigators,
		Directory:              row.Directory,
	}, nil
}
