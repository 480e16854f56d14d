package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"oncocentre/internal/auth/models"
	dErrors "oncocentre/pkg/domain-errors"
)

// Resolver picks the identity source(s) for a requested method.
type Resolver struct {
	local        *LocalSource
	directory    *DirectorySource
	localEnabled bool
	logger       *slog.Logger
}

// Authenticate verifies username/password with the requested method and
// reports which source confirmed it.
//
// In auto mode the local store always goes first, so a directory account can
// never shadow a local one with the same username. The directory is only
// contacted when the local check fails. An unreachable directory in auto
// mode surfaces as a plain authentication failure.
func (r *Resolver) Authenticate(ctx context.Context, username, password string, method models.Method) (*models.Identity, models.AuthSource, error) {
	ctx, span := tracer.Start(ctx, "auth.resolver.authenticate")
	defer span.End()
	span.SetAttributes(attribute.String("auth.method", string(method)))

	identity, source, err := r.authenticate(ctx, username, password, method)
	if err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, "", err
	}
	span.SetAttributes(attribute.String("auth.source", string(source)))
	return identity, source, nil
}

func (r *Resolver) authenticate(ctx context.Context, username, password string, method models.Method) (*models.Identity, models.AuthSource, error) {
	switch method {
	case models.MethodLocal:
		if !r.localEnabled {
			return nil, "", dErrors.New(dErrors.CodeMethodDisabled, "local authentication is disabled")
		}
		identity, err := r.local.Verify(ctx, username, password)
		if err != nil {
			return nil, "", err
		}
		return identity, models.AuthSourceLocal, nil

	case models.MethodDirectory:
		identity, err := r.directory.Verify(ctx, username, password)
		if err != nil {
			return nil, "", err
		}
		return identity, models.AuthSourceDirectory, nil

	case models.MethodAuto, "":
		return r.auto(ctx, username, password)

	default:
		return nil, "", dErrors.New(dErrors.CodeBadRequest, "unknown authentication method: "+string(method))
	}
}

func (r *Resolver) auto(ctx context.Context, username, password string) (*models.Identity, models.AuthSource, error) {
	var localErr error
	if r.localEnabled {
		identity, err := r.local.Verify(ctx, username, password)
		if err == nil {
			return identity, models.AuthSourceLocal, nil
		}
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			return nil, "", err
		}
		localErr = err
	}

	if !r.directory.Enabled() {
		if localErr != nil {
			return nil, "", localErr
		}
		return nil, "", dErrors.New(dErrors.CodeMethodDisabled, "no authentication method is enabled")
	}

	identity, err := r.directory.Verify(ctx, username, password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeDirectoryUnavailable) {
			r.logger.WarnContext(ctx, "directory unavailable during automatic authentication",
				"username", username, "error", err)
			return nil, "", dErrors.New(dErrors.CodeInvalidCredential, "authentication failed")
		}
		return nil, "", err
	}
	return identity, models.AuthSourceDirectory, nil
}
