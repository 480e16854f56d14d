package models

import (
	"strings"
	"time"

	authModels "oncocentre/internal/auth/models"
	id "oncocentre/pkg/domain"
	dErrors "oncocentre/pkg/domain-errors"
)

// Entry permits one username to use the application. Entries are never
// removed; deactivation keeps who added them and why.
type Entry struct {
	ID          id.WhitelistEntryID `gorm:"primaryKey;size:36"`
	Username    string              `gorm:"uniqueIndex;size:80;not null"`
	Active      bool                `gorm:"not null;index"`
	Note        string              `gorm:"size:255"`
	AddedBy     id.IdentityID       `gorm:"size:36"`
	AddedByName string              `gorm:"size:80"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Entry) TableName() string { return "whitelist_entries" }

// NewEntry builds an active entry attributed to addedBy. A nil addedBy means
// the entry came from configuration rather than a person.
func NewEntry(entryID id.WhitelistEntryID, username, note string, addedBy *authModels.Identity, now time.Time) (*Entry, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username cannot be empty")
	}
	if len(username) > authModels.MaxUsernameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username must be 80 characters or less")
	}
	e := &Entry{
		ID:        entryID,
		Username:  username,
		Active:    true,
		Note:      strings.TrimSpace(note),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if addedBy != nil {
		e.AddedBy = addedBy.ID
		e.AddedByName = addedBy.Username
	}
	return e, nil
}

// Reactivate re-enables a removed entry. Attribution stays with whoever
// created it; a non-empty note replaces the old one.
func (e *Entry) Reactivate(note string, now time.Time) {
	e.Active = true
	if note = strings.TrimSpace(note); note != "" {
		e.Note = note
	}
	e.UpdatedAt = now
}

func (e *Entry) Deactivate(now time.Time) {
	e.Active = false
	e.UpdatedAt = now
}
