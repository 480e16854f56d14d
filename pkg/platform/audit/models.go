package audit

import (
	"context"
	"time"

	id "oncocentre/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance:
	// identity lifecycle and protected record creation.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers access decisions and credential changes.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It never carries
// passwords or decrypted patient fields.
type Event struct {
	ID        id.AuditEventID
	Category  EventCategory
	Timestamp time.Time
	// Subject is the username or external record identifier acted upon.
	Subject string
	Action  string
	// ActorID is whoever performed the action when different from Subject.
	ActorID   string
	Decision  string
	Reason    string
	RequestID string
}

// Store persists audit events. Implementations are append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

type AuditEvent string

const (
	// Authentication
	EventLoginSucceeded      AuditEvent = "login_succeeded"
	EventLoginFailed         AuditEvent = "login_failed"
	EventWhitelistDenied     AuditEvent = "whitelist_denied"
	EventIdentityProvisioned AuditEvent = "identity_provisioned"
	EventIdentityPromoted    AuditEvent = "identity_promoted"
	EventDirectorySynced     AuditEvent = "directory_synced"
	EventLoginLockedOut      AuditEvent = "login_locked_out"
	EventLockoutCleared      AuditEvent = "login_lockout_cleared"

	// User administration
	EventUserCreated     AuditEvent = "user_created"
	EventUserUpdated     AuditEvent = "user_updated"
	EventUserDeleted     AuditEvent = "user_deleted"
	EventUserDeactivated AuditEvent = "user_deactivated"
	EventPasswordReset   AuditEvent = "password_reset"

	// Whitelist
	EventWhitelistAdded       AuditEvent = "whitelist_added"
	EventWhitelistReactivated AuditEvent = "whitelist_reactivated"
	EventWhitelistRemoved     AuditEvent = "whitelist_removed"
	EventWhitelistMigrated    AuditEvent = "whitelist_migrated"

	// Protected records
	EventRecordCreated    AuditEvent = "record_created"
	EventRecordUnreadable AuditEvent = "record_unreadable"
	EventRecordDenied     AuditEvent = "record_access_denied"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserCreated:         CategoryCompliance,
	EventUserDeleted:         CategoryCompliance,
	EventUserDeactivated:     CategoryCompliance,
	EventIdentityProvisioned: CategoryCompliance,
	EventIdentityPromoted:    CategoryCompliance,
	EventRecordCreated:       CategoryCompliance,

	EventLoginFailed:          CategorySecurity,
	EventWhitelistDenied:      CategorySecurity,
	EventPasswordReset:        CategorySecurity,
	EventWhitelistAdded:       CategorySecurity,
	EventWhitelistReactivated: CategorySecurity,
	EventWhitelistRemoved:     CategorySecurity,
	EventWhitelistMigrated:    CategorySecurity,
	EventRecordDenied:         CategorySecurity,
	EventRecordUnreadable:     CategorySecurity,
	EventLoginLockedOut:       CategorySecurity,
	EventLockoutCleared:       CategorySecurity,

	EventLoginSucceeded:  CategoryOperations,
	EventDirectorySynced: CategoryOperations,
	EventUserUpdated:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
