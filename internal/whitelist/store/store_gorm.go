package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"oncocentre/internal/storage"
	"oncocentre/internal/whitelist/models"
	"oncocentre/pkg/platform/sentinel"
	txcontext "oncocentre/pkg/platform/tx"
)

// GormStore persists entries in the whitelist_entries table.
type GormStore struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return txcontext.DB(ctx, s.db)
}

func (s *GormStore) FindByUsername(ctx context.Context, username string) (*models.Entry, error) {
	var e models.Entry
	if err := s.conn(ctx).Where("username = ?", username).First(&e).Error; err != nil {
		return nil, storage.Translate(err, "find whitelist entry")
	}
	return &e, nil
}

func (s *GormStore) Create(ctx context.Context, entry *models.Entry) error {
	return storage.Translate(s.conn(ctx).Create(entry).Error, "create whitelist entry")
}

func (s *GormStore) Update(ctx context.Context, entry *models.Entry) error {
	res := s.conn(ctx).Model(&models.Entry{}).
		Where("id = ?", entry.ID).
		Select("*").
		Omit("created_at").
		Updates(entry)
	if res.Error != nil {
		return storage.Translate(res.Error, "update whitelist entry")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update whitelist entry %q: %w", entry.Username, sentinel.ErrNotFound)
	}
	return nil
}

func (s *GormStore) List(ctx context.Context) ([]*models.Entry, error) {
	var out []*models.Entry
	if err := s.conn(ctx).Order("username ASC").Find(&out).Error; err != nil {
		return nil, storage.Translate(err, "list whitelist entries")
	}
	return out, nil
}

func (s *GormStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.conn(ctx).Model(&models.Entry{}).Count(&n).Error; err != nil {
		return 0, storage.Translate(err, "count whitelist entries")
	}
	return int(n), nil
}
