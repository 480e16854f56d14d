// Package publisher appends audit events to a store synchronously.
package publisher

import (
	"context"
	"errors"

	id "oncocentre/pkg/domain"
	audit "oncocentre/pkg/platform/audit"
	"oncocentre/pkg/requestcontext"
)

// Publisher captures structured audit events. It is append-only and writes
// through on the caller's goroutine; there is no buffer or background worker.
type Publisher struct {
	store audit.Store
}

func NewPublisher(store audit.Store) *Publisher {
	return &Publisher{store: store}
}

// Emit stamps the event with an ID, time and category if missing and appends it.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if p == nil || p.store == nil {
		return errors.New("audit publisher has no store")
	}
	if event.ID == (id.AuditEventID{}) {
		event.ID = id.NewAuditEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	return p.store.Append(ctx, event)
}

func (p *Publisher) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}
