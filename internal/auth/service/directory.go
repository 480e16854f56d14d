package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"oncocentre/internal/auth/metrics"
	"oncocentre/internal/auth/models"
	id "oncocentre/pkg/domain"
	dErrors "oncocentre/pkg/domain-errors"
	"oncocentre/pkg/platform/audit"
	"oncocentre/pkg/platform/sentinel"
	"oncocentre/pkg/requestcontext"
)

// DirectorySource confirms passwords with the directory and reconciles the
// result with the identity store: provisioning unknown users, promoting
// local ones and refreshing cached attributes.
type DirectorySource struct {
	identities    IdentityStore
	directory     Authenticator
	enabled       bool
	autoProvision bool

	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   audit.Emitter
}

// Enabled reports whether directory authentication may be attempted.
func (d *DirectorySource) Enabled() bool {
	return d.enabled
}

func (d *DirectorySource) Verify(ctx context.Context, username, password string) (*models.Identity, error) {
	ctx, span := tracer.Start(ctx, "auth.directory.verify")
	defer span.End()

	if !d.enabled {
		return nil, dErrors.New(dErrors.CodeMethodDisabled, "directory authentication is disabled")
	}

	start := time.Now()
	info, err := d.directory.Authenticate(ctx, username, password)
	if d.metrics != nil {
		d.metrics.ObserveDirectory(start)
	}
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, sentinel.ErrUnavailable) {
			span.SetStatus(codes.Error, "directory unavailable")
			if d.metrics != nil {
				d.metrics.IncrementDirectoryUnavailable()
			}
			d.logger.WarnContext(ctx, "directory unavailable", "username", username, "error", err)
			return nil, dErrors.Wrap(err, dErrors.CodeDirectoryUnavailable, "directory unavailable")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidCredential, "invalid credentials")
	}
	info.Username = username

	identity, err := d.reconcile(ctx, *info)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("identity.id", identity.ID.String()))
	return identity, nil
}

func (d *DirectorySource) reconcile(ctx context.Context, info models.DirectoryInfo) (*models.Identity, error) {
	now := requestcontext.Now(ctx)

	identity, err := d.identities.FindByUsername(ctx, info.Username)
	if err == nil {
		return d.sync(ctx, identity, info, now)
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	if !d.autoProvision {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}

	identity, err = models.NewDirectoryIdentity(id.NewIdentityID(), info, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid directory username")
	}
	if err := d.identities.Create(ctx, identity); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to provision identity")
		}
		// A concurrent first login created it.
		existing, ferr := d.identities.FindByUsername(ctx, info.Username)
		if ferr != nil {
			return nil, dErrors.Wrap(ferr, dErrors.CodeInternal, "failed to load identity")
		}
		return d.sync(ctx, existing, info, now)
	}

	if d.metrics != nil {
		d.metrics.IncrementProvisioned()
	}
	audit.LogAudit(ctx, d.logger, d.audit, audit.EventIdentityProvisioned,
		"username", identity.Username, "identity_id", identity.ID.String())
	return identity, nil
}

// sync brings an existing identity in line with the directory. Inactive
// identities are refused before anything is written.
func (d *DirectorySource) sync(ctx context.Context, identity *models.Identity, info models.DirectoryInfo, now time.Time) (*models.Identity, error) {
	if !identity.Active {
		return nil, dErrors.New(dErrors.CodeAccountDisabled, "account is disabled")
	}

	promoted := !identity.IsDirectory()
	if promoted {
		identity.PromoteToDirectory(info, now)
	} else {
		identity.ApplyDirectoryInfo(info, now)
	}
	if err := d.identities.Update(ctx, identity); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update identity")
	}

	if promoted {
		if d.metrics != nil {
			d.metrics.IncrementPromoted()
		}
		audit.LogAudit(ctx, d.logger, d.audit, audit.EventIdentityPromoted,
			"username", identity.Username, "identity_id", identity.ID.String())
	} else {
		audit.LogAudit(ctx, d.logger, d.audit, audit.EventDirectorySynced,
			"username", identity.Username, "identity_id", identity.ID.String())
	}
	return identity, nil
}
