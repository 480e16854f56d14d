// Package domain holds typed identifiers shared across modules.
//
// Each identifier is a distinct named type over uuid.UUID so an IdentityID can
// never be passed where a RecordID is expected. The types implement
// sql.Scanner and driver.Valuer and are persisted as their canonical string form.
package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"

	dErrors "oncocentre/pkg/domain-errors"
)

type (
	IdentityID       uuid.UUID
	RecordID         uuid.UUID
	WhitelistEntryID uuid.UUID
	AuditEventID     uuid.UUID
)

func NewIdentityID() IdentityID             { return IdentityID(uuid.New()) }
func NewRecordID() RecordID                 { return RecordID(uuid.New()) }
func NewWhitelistEntryID() WhitelistEntryID { return WhitelistEntryID(uuid.New()) }
func NewAuditEventID() AuditEventID         { return AuditEventID(uuid.New()) }

func ParseIdentityID(s string) (IdentityID, error) {
	u, err := parseUUID(s, "identity ID")
	return IdentityID(u), err
}

func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record ID")
	return RecordID(u), err
}

func ParseWhitelistEntryID(s string) (WhitelistEntryID, error) {
	u, err := parseUUID(s, "whitelist entry ID")
	return WhitelistEntryID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" cannot be nil")
	}
	return u, nil
}

func (id IdentityID) String() string       { return uuid.UUID(id).String() }
func (id RecordID) String() string         { return uuid.UUID(id).String() }
func (id WhitelistEntryID) String() string { return uuid.UUID(id).String() }
func (id AuditEventID) String() string     { return uuid.UUID(id).String() }

func (id IdentityID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id IdentityID) Value() (driver.Value, error)       { return id.String(), nil }
func (id RecordID) Value() (driver.Value, error)         { return id.String(), nil }
func (id WhitelistEntryID) Value() (driver.Value, error) { return id.String(), nil }
func (id AuditEventID) Value() (driver.Value, error)     { return id.String(), nil }

func (id *IdentityID) Scan(src any) error       { return scanUUID((*uuid.UUID)(id), src) }
func (id *RecordID) Scan(src any) error         { return scanUUID((*uuid.UUID)(id), src) }
func (id *WhitelistEntryID) Scan(src any) error { return scanUUID((*uuid.UUID)(id), src) }
func (id *AuditEventID) Scan(src any) error     { return scanUUID((*uuid.UUID)(id), src) }

func scanUUID(dst *uuid.UUID, src any) error {
	switch v := src.(type) {
	case nil:
		*dst = uuid.Nil
		return nil
	case string:
		if v == "" {
			*dst = uuid.Nil
			return nil
		}
	case []byte:
		if len(v) == 0 {
			*dst = uuid.Nil
			return nil
		}
	default:
		return fmt.Errorf("unsupported id column type %T", src)
	}
	return dst.Scan(src)
}
