// Package service resolves who a caller is. It verifies credentials against
// the local identity store or the directory, applies the whitelist gate at
// login, and administers local users.
package service

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"

	"oncocentre/internal/auth/metrics"
	"oncocentre/internal/auth/models"
	id "oncocentre/pkg/domain"
	"oncocentre/pkg/platform/audit"
)

var tracer = otel.Tracer("oncocentre/internal/auth/service")

type IdentityStore interface {
	FindByUsername(ctx context.Context, username string) (*models.Identity, error)
	FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
	Update(ctx context.Context, identity *models.Identity) error
	Delete(ctx context.Context, identityID id.IdentityID) error
	List(ctx context.Context) ([]*models.Identity, error)
	Stats(ctx context.Context) (models.Stats, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
	Equalize(password string)
}

// Authenticator confirms a password with the directory. *directory.Client
// satisfies it. Errors wrap sentinel.ErrUnavailable when the directory could
// not be reached; any other error is a rejected bind.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.DirectoryInfo, error)
}

// Gatekeeper answers whether a username may use the application at all.
type Gatekeeper interface {
	IsAuthorized(ctx context.Context, username string) bool
}

// Lockout throttles repeated failed logins per username.
type Lockout interface {
	Check(ctx context.Context, username string) error
	RecordFailure(ctx context.Context, username string) error
	Reset(ctx context.Context, username string) error
}

// RecordCounter reports protected-record ownership for user administration.
type RecordCounter interface {
	CountByCreator(ctx context.Context, creator id.IdentityID) (int, error)
	Count(ctx context.Context) (int, error)
}

// Config holds the authentication feature flags.
type Config struct {
	LocalEnabled                bool
	DirectoryEnabled            bool
	AutoProvisionDirectoryUsers bool
}

// Service is the login pipeline and user administration entry point.
type Service struct {
	identities IdentityStore
	hasher     PasswordHasher
	gate       Gatekeeper
	cfg        Config

	directory Authenticator
	records   RecordCounter
	lockout   Lockout

	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher audit.Emitter

	resolver *Resolver
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithDirectory enables the directory source. Without it directory
// authentication reports the method as disabled whatever the config says.
func WithDirectory(a Authenticator) Option {
	return func(s *Service) {
		s.directory = a
	}
}

// WithRecordCounter lets DeleteUser keep identities that own records.
func WithRecordCounter(rc RecordCounter) Option {
	return func(s *Service) {
		s.records = rc
	}
}

func WithLockout(l Lockout) Option {
	return func(s *Service) {
		s.lockout = l
	}
}

// New constructs a Service.
func New(identities IdentityStore, hasher PasswordHasher, gate Gatekeeper, cfg Config, opts ...Option) *Service {
	s := &Service{
		identities: identities,
		hasher:     hasher,
		gate:       gate,
		cfg:        cfg,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	local := &LocalSource{identities: identities, hasher: hasher}
	dir := &DirectorySource{
		identities:    identities,
		directory:     s.directory,
		enabled:       cfg.DirectoryEnabled && s.directory != nil,
		autoProvision: cfg.AutoProvisionDirectoryUsers,
		logger:        s.logger,
		metrics:       s.metrics,
		audit:         s.auditPublisher,
	}
	s.resolver = &Resolver{
		local:        local,
		directory:    dir,
		localEnabled: cfg.LocalEnabled,
		logger:       s.logger,
	}
	return s
}

// Resolver exposes credential resolution without the whitelist gate.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	audit.LogAudit(ctx, s.logger, s.auditPublisher, event, attributes...)
}

func (s *Service) incrementLogin(method models.Method, source, outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementLogin(string(method), source, outcome)
	}
}

func (s *Service) incrementWhitelistDenial() {
	if s.metrics != nil {
		s.metrics.IncrementWhitelistDenial()
	}
}
