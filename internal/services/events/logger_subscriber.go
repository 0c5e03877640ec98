package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvestd/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs engine events at debug level
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().Str("event_type", string(event.Type))

		switch p := event.Payload.(type) {
		case interfaces.RunPayload:
			logEvent = logEvent.Str("run_id", p.RunID).Str("group_id", p.GroupID)
			if p.Status != "" {
				logEvent = logEvent.Str("status", p.Status)
			}
		case interfaces.TruncationPayload:
			logEvent = logEvent.Str("operation", p.Operation).Str("scope", p.Scope).Int("pages", p.Pages)
		case interfaces.CallFailurePayload:
			logEvent = logEvent.Str("operation", p.Operation).Str("kind", p.Kind).Int("attempt", p.Attempt)
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to every engine event type
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	for _, eventType := range interfaces.AllEventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	return nil
}
