package audit

import (
	"context"
	"log/slog"

	"praman/pkg/requestcontext"
)

// Emitter is the interface services depend on.
// Satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Emit fills the request id and timestamp from ctx and sends the event.
// Failures are logged and never propagate: audit is best effort on request paths.
func Emit(ctx context.Context, emitter Emitter, logger *slog.Logger, event Event) {
	if emitter == nil {
		return
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Actor == "" {
		event.Actor = requestcontext.ActorID(ctx)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx).UTC()
	}
	if err := emitter.Emit(ctx, event); err != nil && logger != nil {
		logger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"action", event.Action,
		)
	}
}

// LogSink writes events as structured log lines. Used when no broker is
// configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, event.Action,
		"log_type", "audit",
		"outcome", event.Outcome,
		"issuer_did", event.IssuerDID,
		"credential_id", event.CredentialID,
		"did", event.DID,
		"reason", event.Reason,
		"request_id", event.RequestID,
		"actor", event.Actor,
		"timestamp", event.Timestamp,
	)
	return nil
}
