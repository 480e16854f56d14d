package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oncocentre/internal/auth/models"
	dErrors "oncocentre/pkg/domain-errors"
	"oncocentre/pkg/platform/audit"
)

// DeniedMessage is the only text shown when the whitelist refuses a login.
// It must never name who is allowed.
const DeniedMessage = "access denied; contact an administrator if you believe you should have access"

type LoginRequest struct {
	Username string
	Password string
	Method   models.Method
}

type LoginResult struct {
	Identity *models.Identity
	Source   models.AuthSource
	// Reason is a human-readable outcome for logs, never shown to other users.
	Reason string
}

// Login runs the whole pipeline: input checks, whitelist gate, credential
// resolution. The whitelist is consulted first and a denial stops before any
// credential is checked.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveLogin(start)
		}
	}()

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "username and password are required")
	}
	if len(username) > models.MaxUsernameLength {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("username must be %d characters or less", models.MaxUsernameLength))
	}
	method := req.Method
	if method == "" {
		method = models.MethodAuto
	}

	if !s.gate.IsAuthorized(ctx, username) {
		s.incrementWhitelistDenial()
		s.incrementLogin(method, "none", string(dErrors.CodeNotAuthorized))
		s.logAudit(ctx, audit.EventWhitelistDenied,
			"username", username,
			"decision", "denied",
			"reason", "not whitelisted")
		return nil, dErrors.New(dErrors.CodeNotAuthorized, DeniedMessage)
	}

	if s.lockout != nil {
		if err := s.lockout.Check(ctx, username); err != nil {
			s.loginFailed(ctx, username, method, err)
			return nil, err
		}
	}

	identity, source, err := s.resolver.Authenticate(ctx, username, req.Password, method)
	if err == nil && !identity.Active {
		err = dErrors.New(dErrors.CodeAccountDisabled, "account is disabled")
	}
	if err != nil {
		s.loginFailed(ctx, username, method, err)
		if s.lockout != nil && countsTowardLockout(err) {
			if lerr := s.lockout.RecordFailure(ctx, username); lerr != nil {
				s.logger.WarnContext(ctx, "failed to record login failure", "error", lerr)
			}
		}
		return nil, err
	}
	if s.lockout != nil {
		if err := s.lockout.Reset(ctx, username); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login failures", "error", err)
		}
	}

	reason := fmt.Sprintf("authenticated by %s source as %s", source, identity.Role())
	s.incrementLogin(method, string(source), "success")
	s.logAudit(ctx, audit.EventLoginSucceeded,
		"username", username,
		"method", string(method),
		"source", string(source),
		"decision", "granted",
		"reason", reason)

	return &LoginResult{Identity: identity, Source: source, Reason: reason}, nil
}

func (s *Service) loginFailed(ctx context.Context, username string, method models.Method, err error) {
	code := dErrors.CodeOf(err)
	s.incrementLogin(method, "none", string(code))
	s.logAudit(ctx, audit.EventLoginFailed,
		"username", username,
		"method", string(method),
		"decision", "denied",
		"reason", string(code))
}

// countsTowardLockout is true for wrong passwords and unknown usernames.
// An unreachable directory is not the caller's fault.
func countsTowardLockout(err error) bool {
	code := dErrors.CodeOf(err)
	return code == dErrors.CodeInvalidCredential || code == dErrors.CodeNotFound
}
