package lockout

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"oncocentre/internal/storage"
	txcontext "oncocentre/pkg/platform/tx"
)

// GormStore persists records in the login_lockouts table.
type GormStore struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return txcontext.DB(ctx, s.db)
}

func (s *GormStore) Get(ctx context.Context, username string) (*Record, error) {
	var r Record
	if err := s.conn(ctx).Where("username = ?", username).First(&r).Error; err != nil {
		return nil, storage.Translate(err, "find lockout")
	}
	return &r, nil
}

func (s *GormStore) Save(ctx context.Context, record *Record) error {
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		UpdateAll: true,
	}).Create(record).Error
	return storage.Translate(err, "save lockout")
}

func (s *GormStore) Delete(ctx context.Context, username string) (bool, error) {
	res := s.conn(ctx).Where("username = ?", username).Delete(&Record{})
	if res.Error != nil {
		return false, storage.Translate(res.Error, "delete lockout")
	}
	return res.RowsAffected > 0, nil
}
