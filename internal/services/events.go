package services

import (
	"context"

	"github.com/rs/zerolog"

	"curanova-server/internal/events"
	"curanova-server/internal/metrics"
)

// emitter publishes workflow events after their state change committed.
// Publish failures are logged and counted, never returned.
type emitter struct {
	pub     events.Publisher
	metrics *metrics.Workflow
	log     zerolog.Logger
}

func (e emitter) emit(ctx context.Context, evt events.Event) {
	if e.pub == nil {
		return
	}
	if err := e.pub.Publish(ctx, evt); err != nil {
		if e.metrics != nil {
			e.metrics.EventPublishFailures.Inc()
		}
		e.log.Warn().Err(err).Str("event", evt.Type).Str("entity_id", evt.EntityID).Msg("workflow event not published")
	}
}
