// Package policy decides what a caller may do with protected records.
//
// Administrators manage users and the whitelist but never see or create
// patient records. Principal investigators see every record; members see
// only the ones they created.
package policy

import (
	authModels "oncocentre/internal/auth/models"
	dErrors "oncocentre/pkg/domain-errors"
)

type Action string

const (
	ActionCreate  Action = "create"
	ActionList    Action = "list"
	ActionRead    Action = "read"
	ActionPreview Action = "preview"
)

// Scope limits which records an allowed action reaches.
type Scope string

const (
	ScopeNone Scope = "none"
	ScopeOwn  Scope = "own"
	ScopeAll  Scope = "all"
)

type Decision struct {
	Allowed bool
	Scope   Scope
	Reason  string
}

// Err returns a Forbidden error for a denied decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, d.Reason)
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Scope: ScopeNone, Reason: reason}
}

// Decide evaluates action for caller.
func Decide(caller *authModels.Identity, action Action) Decision {
	if caller == nil || !caller.Active {
		return deny("an active account is required")
	}
	switch action {
	case ActionCreate, ActionList, ActionRead, ActionPreview:
	default:
		return deny("unknown record action")
	}

	switch caller.Role() {
	case authModels.RoleAdministrator:
		return deny("administrators cannot access patient records")
	case authModels.RolePrincipalInvestigator:
		if action == ActionCreate || action == ActionPreview {
			return Decision{Allowed: true, Scope: ScopeOwn, Reason: "principal investigator"}
		}
		return Decision{Allowed: true, Scope: ScopeAll, Reason: "principal investigator"}
	default:
		return Decision{Allowed: true, Scope: ScopeOwn, Reason: "member"}
	}
}
