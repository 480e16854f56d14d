package lockout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"oncocentre/internal/auth/metrics"
	dErrors "oncocentre/pkg/domain-errors"
	"oncocentre/pkg/platform/audit"
	"oncocentre/pkg/platform/sentinel"
	"oncocentre/pkg/requestcontext"
)

// LockedMessage is shown for every locked username.
const LockedMessage = "too many failed sign-in attempts; try again later"

type Store interface {
	// Get returns sentinel.ErrNotFound when the username has no record.
	Get(ctx context.Context, username string) (*Record, error)
	Save(ctx context.Context, record *Record) error
	// Delete reports whether a record existed.
	Delete(ctx context.Context, username string) (bool, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Guard applies the lockout policy over a Store.
type Guard struct {
	store Store
	cfg   Config
	tx    TxRunner

	// mu serialises read-modify-write of failure counts in this process;
	// the transaction covers other processes.
	mu sync.Mutex

	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher audit.Emitter
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(g *Guard) {
		g.auditPublisher = publisher
	}
}

func WithTx(tx TxRunner) Option {
	return func(g *Guard) {
		g.tx = tx
	}
}

func New(store Store, cfg Config, opts ...Option) *Guard {
	g := &Guard{
		store:  store,
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check returns CodeLockedOut while username is locked. A store failure is
// logged and lets the login proceed.
func (g *Guard) Check(ctx context.Context, username string) error {
	if !g.cfg.Enabled {
		return nil
	}
	rec, err := g.store.Get(ctx, normalize(username))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		g.logger.WarnContext(ctx, "lockout store unavailable, not enforcing", "error", err)
		return nil
	}
	if rec.IsLockedAt(requestcontext.Now(ctx)) {
		return dErrors.New(dErrors.CodeLockedOut, LockedMessage)
	}
	return nil
}

// RecordFailure counts a failed login and locks the username once the
// limit is reached.
func (g *Guard) RecordFailure(ctx context.Context, username string) error {
	if !g.cfg.Enabled {
		return nil
	}
	username = normalize(username)
	now := requestcontext.Now(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	var locked *Record
	err := g.inTx(ctx, func(ctx context.Context) error {
		rec, err := g.store.Get(ctx, username)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			rec = &Record{Username: username}
		case err != nil:
			return err
		}
		if rec.RegisterFailure(now, g.cfg.Window, g.cfg.MaxFailures) {
			rec.LockUntil(now.Add(g.cfg.Duration))
			locked = rec
		}
		return g.store.Save(ctx, rec)
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login failure")
	}

	if locked != nil {
		if g.metrics != nil {
			g.metrics.IncrementLockout()
		}
		audit.LogAudit(ctx, g.logger, g.auditPublisher, audit.EventLoginLockedOut,
			"username", username,
			"decision", "locked",
			"reason", "too many failed attempts",
			"locked_until", locked.LockedUntil.UTC())
	}
	return nil
}

// Reset forgets the failures of username after a successful login.
func (g *Guard) Reset(ctx context.Context, username string) error {
	if !g.cfg.Enabled {
		return nil
	}
	if _, err := g.store.Delete(ctx, normalize(username)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset login failures")
	}
	return nil
}

// Unlock clears a lock on an administrator's request. It reports whether
// there was anything to clear.
func (g *Guard) Unlock(ctx context.Context, username string) (bool, error) {
	username = normalize(username)
	existed, err := g.store.Delete(ctx, username)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear lockout")
	}
	if existed {
		audit.LogAudit(ctx, g.logger, g.auditPublisher, audit.EventLockoutCleared,
			"username", username,
			"decision", "cleared")
	}
	return existed, nil
}

// Status returns the record for username, or nil when it has none.
func (g *Guard) Status(ctx context.Context, username string) (*Record, error) {
	rec, err := g.store.Get(ctx, normalize(username))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load lockout")
	}
	return rec, nil
}

func (g *Guard) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.tx == nil {
		return fn(ctx)
	}
	return g.tx.RunInTx(ctx, fn)
}

func normalize(username string) string {
	return strings.TrimSpace(username)
}
