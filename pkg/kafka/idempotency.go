package kafka

import (
	"context"
	"log/slog"
)

// IdempotencyStore records processed event ids. Implementations must be
// safe for concurrent use.
type IdempotencyStore interface {
	// MarkProcessed records eventID and reports whether it was new.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
	// Forget removes eventID so a failed delivery can be retried.
	Forget(ctx context.Context, eventID string) error
}

// IdempotentHandler wraps inner so each event id is handled at most once.
// The id is claimed before handling and released if inner fails. Store
// failures fall through to inner rather than dropping the event.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}

		fresh, err := store.MarkProcessed(ctx, event.EventID)
		if err != nil {
			logger.WarnContext(ctx, "idempotency store unavailable, processing anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
			return inner(ctx, event)
		}
		if !fresh {
			consumerMessagesDuplicate.WithLabelValues(event.EventType).Inc()
			logger.DebugContext(ctx, "skipping duplicate event",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			if fErr := store.Forget(ctx, event.EventID); fErr != nil {
				logger.WarnContext(ctx, "failed to release event id",
					slog.String("event_id", event.EventID),
					slog.String("error", fErr.Error()),
				)
			}
			return err
		}
		return nil
	}
}
