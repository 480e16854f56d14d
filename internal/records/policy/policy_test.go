package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	authModels "oncocentre/internal/auth/models"
	dErrors "oncocentre/pkg/domain-errors"
)

func TestDecide(t *testing.T) {
	admin := &authModels.Identity{Username: "root", Active: true, IsAdministrator: true}
	adminPI := &authModels.Identity{Username: "both", Active: true, IsAdministrator: true, IsPrincipalInvestigator: true}
	pi := &authModels.Identity{Username: "pi", Active: true, IsPrincipalInvestigator: true}
	member := &authModels.Identity{Username: "nurse", Active: true}
	inactive := &authModels.Identity{Username: "gone", IsPrincipalInvestigator: true}

	tests := []struct {
		name    string
		caller  *authModels.Identity
		action  Action
		allowed bool
		scope   Scope
	}{
		{"admin cannot create", admin, ActionCreate, false, ScopeNone},
		{"admin cannot list", admin, ActionList, false, ScopeNone},
		{"admin cannot read", admin, ActionRead, false, ScopeNone},
		{"admin cannot preview", admin, ActionPreview, false, ScopeNone},
		{"administrator flag wins over investigator", adminPI, ActionList, false, ScopeNone},
		{"investigator lists everything", pi, ActionList, true, ScopeAll},
		{"investigator reads everything", pi, ActionRead, true, ScopeAll},
		{"investigator creates own", pi, ActionCreate, true, ScopeOwn},
		{"member lists own", member, ActionList, true, ScopeOwn},
		{"member creates", member, ActionCreate, true, ScopeOwn},
		{"member previews", member, ActionPreview, true, ScopeOwn},
		{"inactive caller is denied", inactive, ActionList, false, ScopeNone},
		{"nil caller is denied", nil, ActionList, false, ScopeNone},
		{"unknown action is denied", member, Action("export"), false, ScopeNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.caller, tt.action)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.scope, d.Scope)
			assert.NotEmpty(t, d.Reason)
			if tt.allowed {
				assert.NoError(t, d.Err())
			} else {
				assert.True(t, dErrors.HasCode(d.Err(), dErrors.CodeForbidden))
			}
		})
	}
}
