package service

import (
	"context"
	"errors"

	"oncocentre/internal/auth/models"
	"oncocentre/internal/auth/secrets"
	dErrors "oncocentre/pkg/domain-errors"
	"oncocentre/pkg/platform/sentinel"
)

// LocalSource verifies passwords held in the identity store.
type LocalSource struct {
	identities IdentityStore
	hasher     PasswordHasher
}

// Verify checks, in order: the identity exists, it is active, and the
// password matches a local hash. Directory identities never match here,
// even if a stale hash survived promotion.
func (l *LocalSource) Verify(ctx context.Context, username, password string) (*models.Identity, error) {
	identity, err := l.identities.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			l.hasher.Equalize(password)
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	if !identity.Active {
		return nil, dErrors.New(dErrors.CodeAccountDisabled, "account is disabled")
	}
	if !identity.CanVerifyLocally() {
		l.hasher.Equalize(password)
		return nil, dErrors.New(dErrors.CodeInvalidCredential, "invalid credentials")
	}
	if err := l.hasher.Verify(password, identity.PasswordHash); err != nil {
		if errors.Is(err, secrets.ErrMismatch) {
			return nil, dErrors.New(dErrors.CodeInvalidCredential, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidCredential, "invalid credentials")
	}
	return identity, nil
}
