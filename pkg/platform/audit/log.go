package audit

import (
	"context"
	"log/slog"

	"oncocentre/pkg/attrs"
	"oncocentre/pkg/requestcontext"
)

// Emitter accepts audit events. *publisher.Publisher satisfies it.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// LogAudit logs audit events to both the structured logger and the emitter.
// It enriches events with request ID and actor and extracts subject, decision
// and reason from attrList. Emit failures are logged, never returned: an
// unavailable audit sink must not turn a completed action into an error.
func LogAudit(ctx context.Context, logger *slog.Logger, emitter Emitter, event AuditEvent, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	actor := requestcontext.Actor(ctx)
	if actor != "" && attrs.ExtractString(attrList, "actor") == "" {
		attrList = append(attrList, "actor", actor)
	}

	args := append(attrList, "event", string(event), "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, string(event), args...)
	}

	if emitter == nil {
		return
	}
	err := emitter.Emit(ctx, Event{
		Category:  event.Category(),
		Timestamp: requestcontext.Now(ctx),
		Subject:   extractSubject(attrList),
		Action:    string(event),
		ActorID:   attrs.ExtractString(attrList, "actor"),
		Decision:  attrs.ExtractString(attrList, "decision"),
		Reason:    attrs.ExtractString(attrList, "reason"),
		RequestID: requestID,
	})
	if err != nil && logger != nil {
		logger.ErrorContext(ctx, "failed to persist audit event", "event", string(event), "error", err)
	}
}

func extractSubject(attrList []any) string {
	for _, key := range []string{"username", "external_id", "subject"} {
		if val := attrs.ExtractString(attrList, key); val != "" {
			return val
		}
	}
	return ""
}
