package sequence

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"oncocentre/internal/records/metrics"
	dErrors "oncocentre/pkg/domain-errors"
	"oncocentre/pkg/platform/sentinel"
)

// DefaultMaxRetries bounds Issue's attempts when persist keeps conflicting.
const DefaultMaxRetries = 5

// IDSource lists already issued identifiers starting with a prefix.
type IDSource interface {
	ListExternalIDs(ctx context.Context, prefix string) ([]string, error)
}

// YearLocker serialises issuance within one scope. The returned unlock must
// be called exactly once.
type YearLocker interface {
	Lock(ctx context.Context, scope string) (func(), error)
}

// Generator derives the next identifier from the highest one already stored.
// There is no counter row: the stored identifiers are the counter.
type Generator struct {
	ids        IDSource
	locker     YearLocker
	prefix     string
	maxRetries int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Generator)

func WithMaxRetries(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxRetries = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

func NewGenerator(ids IDSource, locker YearLocker, prefix string, opts ...Option) *Generator {
	g := &Generator{
		ids:        ids,
		locker:     locker,
		prefix:     prefix,
		maxRetries: DefaultMaxRetries,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Prefix() string {
	return g.prefix
}

// NextIdentifier returns the identifier the next Issue for year would try.
// It takes no lock, so it is only a preview.
func (g *Generator) NextIdentifier(ctx context.Context, year int) (string, error) {
	if year < MinYear || year > MaxYear {
		return "", dErrors.New(dErrors.CodeValidation, "year out of range")
	}
	existing, err := g.ids.ListExternalIDs(ctx, YearPrefix(g.prefix, year))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read issued identifiers")
	}
	highest := 0
	for _, externalID := range existing {
		y, seq, ok := Parse(g.prefix, externalID)
		if !ok || y != year {
			continue
		}
		if seq > highest {
			highest = seq
		}
	}
	return Format(g.prefix, year, highest+1)
}

// Issue computes the next identifier for year under the year lock and hands
// it to persist. A persist error wrapping sentinel.ErrConflict means someone
// else took that identifier; Issue recomputes and retries up to the
// configured bound, then gives up with CodeDuplicateIdentifier.
func (g *Generator) Issue(ctx context.Context, year int, persist func(ctx context.Context, externalID string) error) (string, error) {
	unlock, err := g.locker.Lock(ctx, g.scope(year))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire identifier lock")
	}
	defer unlock()

	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		externalID, err := g.NextIdentifier(ctx, year)
		if err != nil {
			return "", err
		}
		err = persist(ctx, externalID)
		if err == nil {
			return externalID, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return "", err
		}
		if g.metrics != nil {
			g.metrics.IncrementIdentifierConflict()
		}
		g.logger.WarnContext(ctx, "identifier already taken, retrying",
			"external_id", externalID, "attempt", attempt)
	}
	return "", dErrors.New(dErrors.CodeDuplicateIdentifier, "could not issue a unique identifier, try again")
}

func (g *Generator) scope(year int) string {
	return YearPrefix(g.prefix, year)
}
