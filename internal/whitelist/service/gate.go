// Package service decides who may use the application, independently of
// whether their credentials are valid.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	authModels "oncocentre/internal/auth/models"
	"oncocentre/internal/whitelist/models"
	id "oncocentre/pkg/domain"
	dErrors "oncocentre/pkg/domain-errors"
	"oncocentre/pkg/platform/audit"
	"oncocentre/pkg/platform/sentinel"
	"oncocentre/pkg/requestcontext"
)

type Store interface {
	FindByUsername(ctx context.Context, username string) (*models.Entry, error)
	Create(ctx context.Context, entry *models.Entry) error
	Update(ctx context.Context, entry *models.Entry) error
	List(ctx context.Context) ([]*models.Entry, error)
	Count(ctx context.Context) (int, error)
}

// Source names where an authorization decision came from.
type Source string

const (
	SourceStore    Source = "store"
	SourceFallback Source = "fallback"
)

type Decision struct {
	Allowed bool
	Source  Source
}

// Outcome reports what Add did.
type Outcome string

const (
	OutcomeAdded          Outcome = "added"
	OutcomeReactivated    Outcome = "reactivated"
	OutcomeAlreadyPresent Outcome = "already_present"
)

type AddResult struct {
	Entry   *models.Entry
	Outcome Outcome
}

// fallbackSet is an immutable snapshot of the configured usernames.
type fallbackSet struct {
	names  map[string]struct{}
	sorted []string
}

func newFallbackSet(usernames []string) *fallbackSet {
	fs := &fallbackSet{names: make(map[string]struct{}, len(usernames))}
	for _, u := range usernames {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := fs.names[u]; dup {
			continue
		}
		fs.names[u] = struct{}{}
		fs.sorted = append(fs.sorted, u)
	}
	sort.Strings(fs.sorted)
	return fs
}

func (fs *fallbackSet) contains(username string) bool {
	_, ok := fs.names[username]
	return ok
}

// Gate answers "may this username use the application". The persistent store
// is authoritative once it holds any entry; the configured fallback applies
// only while the store is unreachable or has never been populated.
type Gate struct {
	store          Store
	fallback       atomic.Pointer[fallbackSet]
	logger         *slog.Logger
	auditPublisher audit.Emitter
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(g *Gate) {
		g.auditPublisher = publisher
	}
}

// NewGate builds a gate over store with an initial fallback snapshot.
func NewGate(store Store, fallback []string, opts ...Option) *Gate {
	g := &Gate{store: store, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(g)
	}
	g.fallback.Store(newFallbackSet(fallback))
	return g
}

// RefreshFallback swaps the fallback snapshot. Safe to call while Check runs.
func (g *Gate) RefreshFallback(usernames []string) {
	g.fallback.Store(newFallbackSet(usernames))
	g.logger.Info("whitelist fallback refreshed", "count", len(usernames))
}

// FallbackUsernames returns the current fallback snapshot, sorted.
func (g *Gate) FallbackUsernames() []string {
	return append([]string(nil), g.fallback.Load().sorted...)
}

func (g *Gate) Check(ctx context.Context, username string) Decision {
	username = strings.TrimSpace(username)

	n, err := g.store.Count(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "whitelist store unavailable, using fallback", "error", err)
		return g.fallbackDecision(username)
	}
	if n == 0 {
		return g.fallbackDecision(username)
	}

	entry, err := g.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Decision{Allowed: false, Source: SourceStore}
		}
		g.logger.WarnContext(ctx, "whitelist lookup failed, using fallback", "error", err)
		return g.fallbackDecision(username)
	}
	return Decision{Allowed: entry.Active, Source: SourceStore}
}

func (g *Gate) fallbackDecision(username string) Decision {
	return Decision{Allowed: g.fallback.Load().contains(username), Source: SourceFallback}
}

func (g *Gate) IsAuthorized(ctx context.Context, username string) bool {
	return g.Check(ctx, username).Allowed
}

// Add permits username. Adding an active entry changes nothing; adding a
// removed one reactivates it and keeps its original attribution.
func (g *Gate) Add(ctx context.Context, username string, addedBy *authModels.Identity, note string) (*AddResult, error) {
	now := requestcontext.Now(ctx)
	candidate, err := models.NewEntry(id.NewWhitelistEntryID(), username, note, addedBy, now)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, dErrors.UserMessage(err))
	}

	existing, err := g.store.FindByUsername(ctx, candidate.Username)
	switch {
	case err == nil:
		return g.reuse(ctx, existing, note, addedBy)
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load whitelist entry")
	}

	if err := g.store.Create(ctx, candidate); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add whitelist entry")
		}
		existing, ferr := g.store.FindByUsername(ctx, candidate.Username)
		if ferr != nil {
			return nil, dErrors.Wrap(ferr, dErrors.CodeInternal, "failed to load whitelist entry")
		}
		return g.reuse(ctx, existing, note, addedBy)
	}

	g.logAudit(ctx, audit.EventWhitelistAdded, "username", candidate.Username, "actor", actorName(ctx, addedBy))
	return &AddResult{Entry: candidate, Outcome: OutcomeAdded}, nil
}

func (g *Gate) reuse(ctx context.Context, entry *models.Entry, note string, by *authModels.Identity) (*AddResult, error) {
	if entry.Active {
		return &AddResult{Entry: entry, Outcome: OutcomeAlreadyPresent}, nil
	}
	entry.Reactivate(note, requestcontext.Now(ctx))
	if err := g.store.Update(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reactivate whitelist entry")
	}
	g.logAudit(ctx, audit.EventWhitelistReactivated, "username", entry.Username, "actor", actorName(ctx, by))
	return &AddResult{Entry: entry, Outcome: OutcomeReactivated}, nil
}

// Remove deactivates username's entry. Entries are never deleted.
func (g *Gate) Remove(ctx context.Context, username string) error {
	entry, err := g.find(ctx, username)
	if err != nil {
		return err
	}
	if !entry.Active {
		return dErrors.New(dErrors.CodeNotFound, "user is not whitelisted")
	}
	entry.Deactivate(requestcontext.Now(ctx))
	if err := g.store.Update(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove whitelist entry")
	}
	g.logAudit(ctx, audit.EventWhitelistRemoved, "username", entry.Username)
	return nil
}

// Activate re-enables an existing entry without touching its note.
func (g *Gate) Activate(ctx context.Context, username string) (*models.Entry, error) {
	entry, err := g.find(ctx, username)
	if err != nil {
		return nil, err
	}
	if entry.Active {
		return entry, nil
	}
	entry.Reactivate("", requestcontext.Now(ctx))
	if err := g.store.Update(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to activate whitelist entry")
	}
	g.logAudit(ctx, audit.EventWhitelistReactivated, "username", entry.Username)
	return entry, nil
}

func (g *Gate) List(ctx context.Context) ([]*models.Entry, error) {
	entries, err := g.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list whitelist")
	}
	return entries, nil
}

// MigrateFromFallback copies every fallback username the store does not know
// yet, in either state, and returns how many were added. Running it again
// adds nothing.
func (g *Gate) MigrateFromFallback(ctx context.Context, by *authModels.Identity) (int, error) {
	added := 0
	for _, username := range g.FallbackUsernames() {
		_, err := g.store.FindByUsername(ctx, username)
		if err == nil {
			continue
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return added, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load whitelist entry")
		}
		entry, err := models.NewEntry(id.NewWhitelistEntryID(), username, "migrated from configuration", by, requestcontext.Now(ctx))
		if err != nil {
			g.logger.WarnContext(ctx, "skipping invalid fallback username", "error", err)
			continue
		}
		if err := g.store.Create(ctx, entry); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				continue
			}
			return added, dErrors.Wrap(err, dErrors.CodeInternal, "failed to migrate whitelist entry")
		}
		added++
	}
	g.logAudit(ctx, audit.EventWhitelistMigrated, "subject", "whitelist", "actor", actorName(ctx, by), "added", added)
	return added, nil
}

func (g *Gate) find(ctx context.Context, username string) (*models.Entry, error) {
	entry, err := g.store.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user is not whitelisted")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load whitelist entry")
	}
	return entry, nil
}

func (g *Gate) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	audit.LogAudit(ctx, g.logger, g.auditPublisher, event, attributes...)
}

func actorName(ctx context.Context, by *authModels.Identity) string {
	if by == nil {
		return requestcontext.Actor(ctx)
	}
	return by.Username
}
