package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"oncocentre/internal/auth/models"
	id "oncocentre/pkg/domain"
	dErrors "oncocentre/pkg/domain-errors"
	"oncocentre/pkg/platform/audit"
	"oncocentre/pkg/platform/sentinel"
	"oncocentre/pkg/requestcontext"
)

// MinPasswordLength applies to passwords set through administration.
const MinPasswordLength = 8

type NewUserRequest struct {
	Username                string
	Password                string
	IsAdministrator         bool
	IsPrincipalInvestigator bool
}

// UpdateUserRequest changes only the fields that are set.
type UpdateUserRequest struct {
	Active                  *bool
	IsAdministrator         *bool
	IsPrincipalInvestigator *bool
}

// DeleteOutcome says whether DeleteUser removed the identity or, because it
// owns records, only deactivated it.
type DeleteOutcome string

const (
	DeleteOutcomeDeleted     DeleteOutcome = "deleted"
	DeleteOutcomeDeactivated DeleteOutcome = "deactivated"
)

// UserStats extends identity counts with the number of protected records.
type UserStats struct {
	models.Stats
	Records int
}

func requireAdministrator(actor *models.Identity) error {
	if actor == nil || !actor.Active || actor.Role() != models.RoleAdministrator {
		return dErrors.New(dErrors.CodeForbidden, "administrator role required")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	return nil
}

// CreateLocalUser registers an identity with a local password.
func (s *Service) CreateLocalUser(ctx context.Context, actor *models.Identity, req NewUserRequest) (*models.Identity, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)
	if err := models.ValidateUsername(username); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, dErrors.UserMessage(err))
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	identity, err := models.NewLocalIdentity(id.NewIdentityID(), username, hash,
		req.IsAdministrator, req.IsPrincipalInvestigator, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, dErrors.UserMessage(err))
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "username already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.logAudit(ctx, audit.EventUserCreated,
		"username", identity.Username,
		"actor", actor.Username,
		"role", identity.Role().String())
	return identity, nil
}

// UpdateUser changes activation and role flags. An administrator cannot
// deactivate or demote itself.
func (s *Service) UpdateUser(ctx context.Context, actor *models.Identity, username string, req UpdateUserRequest) (*models.Identity, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	identity, err := s.findUser(ctx, username)
	if err != nil {
		return nil, err
	}

	self := identity.ID == actor.ID
	if self && ((req.Active != nil && !*req.Active) || (req.IsAdministrator != nil && !*req.IsAdministrator)) {
		return nil, dErrors.New(dErrors.CodeForbidden, "cannot deactivate or demote your own account")
	}

	if req.Active != nil {
		identity.Active = *req.Active
	}
	if req.IsAdministrator != nil {
		identity.IsAdministrator = *req.IsAdministrator
	}
	if req.IsPrincipalInvestigator != nil {
		identity.IsPrincipalInvestigator = *req.IsPrincipalInvestigator
	}
	identity.UpdatedAt = requestcontext.Now(ctx)

	if err := s.identities.Update(ctx, identity); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}
	s.logAudit(ctx, audit.EventUserUpdated,
		"username", identity.Username,
		"actor", actor.Username,
		"active", identity.Active,
		"role", identity.Role().String())
	return identity, nil
}

// ResetPassword replaces a local password. Directory identities have no
// local credential to reset.
func (s *Service) ResetPassword(ctx context.Context, actor *models.Identity, username, newPassword string) error {
	if err := requireAdministrator(actor); err != nil {
		return err
	}
	identity, err := s.findUser(ctx, username)
	if err != nil {
		return err
	}
	if identity.IsDirectory() {
		return dErrors.New(dErrors.CodeValidation, "directory accounts have no local password")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	identity.PasswordHash = hash
	identity.UpdatedAt = requestcontext.Now(ctx)
	if err := s.identities.Update(ctx, identity); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}
	s.logAudit(ctx, audit.EventPasswordReset,
		"username", identity.Username,
		"actor", actor.Username)
	return nil
}

// DeleteUser removes an identity, or deactivates it when it created records
// so their attribution survives.
func (s *Service) DeleteUser(ctx context.Context, actor *models.Identity, username string) (DeleteOutcome, error) {
	if err := requireAdministrator(actor); err != nil {
		return "", err
	}
	identity, err := s.findUser(ctx, username)
	if err != nil {
		return "", err
	}
	if identity.ID == actor.ID {
		return "", dErrors.New(dErrors.CodeForbidden, "cannot delete your own account")
	}

	owned := 0
	if s.records != nil {
		owned, err = s.records.CountByCreator(ctx, identity.ID)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to count records")
		}
	}

	if owned > 0 {
		identity.Active = false
		identity.UpdatedAt = requestcontext.Now(ctx)
		if err := s.identities.Update(ctx, identity); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate user")
		}
		s.logAudit(ctx, audit.EventUserDeactivated,
			"username", identity.Username,
			"actor", actor.Username,
			"records", owned)
		return DeleteOutcomeDeactivated, nil
	}

	if err := s.identities.Delete(ctx, identity.ID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete user")
	}
	s.logAudit(ctx, audit.EventUserDeleted,
		"username", identity.Username,
		"actor", actor.Username)
	return DeleteOutcomeDeleted, nil
}

func (s *Service) ListUsers(ctx context.Context, actor *models.Identity) ([]*models.Identity, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	users, err := s.identities.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

func (s *Service) Stats(ctx context.Context, actor *models.Identity) (*UserStats, error) {
	if err := requireAdministrator(actor); err != nil {
		return nil, err
	}
	st, err := s.identities.Stats(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute user stats")
	}
	out := &UserStats{Stats: st}
	if s.records != nil {
		out.Records, err = s.records.Count(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count records")
		}
	}
	return out, nil
}

func (s *Service) findUser(ctx context.Context, username string) (*models.Identity, error) {
	identity, err := s.identities.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return identity, nil
}
