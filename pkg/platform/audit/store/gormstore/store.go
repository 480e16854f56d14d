// Package gormstore persists audit events in the application database.
package gormstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	id "oncocentre/pkg/domain"
	audit "oncocentre/pkg/platform/audit"
	txcontext "oncocentre/pkg/platform/tx"
)

// Row is the persisted form of audit.Event.
type Row struct {
	ID        id.AuditEventID `gorm:"primaryKey;size:36"`
	Category  string          `gorm:"size:32;not null;index"`
	Timestamp time.Time       `gorm:"not null;index"`
	Subject   string          `gorm:"size:255;index"`
	Action    string          `gorm:"size:64;not null"`
	ActorID   string          `gorm:"size:255"`
	Decision  string          `gorm:"size:32"`
	Reason    string          `gorm:"size:255"`
	RequestID string          `gorm:"size:64"`
}

func (Row) TableName() string { return "audit_events" }

// Store implements audit.Store on GORM. Appends join the transaction in ctx
// when there is one, so an event is never recorded for a rolled back write.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	row := Row{
		ID:        event.ID,
		Category:  string(event.Category),
		Timestamp: event.Timestamp.UTC(),
		Subject:   event.Subject,
		Action:    event.Action,
		ActorID:   event.ActorID,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
	}
	if row.ID == (id.AuditEventID{}) {
		row.ID = id.NewAuditEventID()
	}
	if err := txcontext.DB(ctx, s.db).Create(&row).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	var rows []Row
	err := s.db.WithContext(ctx).
		Where("subject = ?", subject).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list audit events by subject: %w", err)
	}
	return toEvents(rows), nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	var rows []Row
	q := s.db.WithContext(ctx).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list recent audit events: %w", err)
	}
	return toEvents(rows), nil
}

func toEvents(rows []Row) []audit.Event {
	out := make([]audit.Event, len(rows))
	for i, r := range rows {
		out[i] = audit.Event{
			ID:        r.ID,
			Category:  audit.EventCategory(r.Category),
			Timestamp: r.Timestamp,
			Subject:   r.Subject,
			Action:    r.Action,
			ActorID:   r.ActorID,
			Decision:  r.Decision,
			Reason:    r.Reason,
			RequestID: r.RequestID,
		}
	}
	return out
}
