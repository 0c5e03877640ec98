package handlers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/harvestd/internal/common"
	"github.com/ternarybob/harvestd/internal/interfaces"
)

// EventSubscriber bridges engine events to WebSocket broadcasts
type EventSubscriber struct {
	handler       *WebSocketHandler
	eventService  interfaces.EventService
	logger        arbor.ILogger
	allowedEvents map[string]bool          // Whitelist of events to broadcast (empty = allow all)
	throttlers    map[string]*rate.Limiter // Rate limiters for high-frequency events
}

// NewEventSubscriber creates the subscriber and registers it for every engine event
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *EventSubscriber {
	s := &EventSubscriber{
		handler:       handler,
		eventService:  eventService,
		logger:        logger,
		allowedEvents: make(map[string]bool),
		throttlers:    make(map[string]*rate.Limiter),
	}

	if config != nil {
		for _, eventType := range config.AllowedEvents {
			s.allowedEvents[eventType] = true
		}

		if config.TruncationThrottle != "" {
			if interval, err := time.ParseDuration(config.TruncationThrottle); err == nil && interval > 0 {
				s.throttlers[string(interfaces.EventHarvestTruncated)] = rate.NewLimiter(rate.Every(interval), 1)
			} else {
				logger.Warn().
					Str("interval", config.TruncationThrottle).
					Msg("Invalid truncation throttle interval - throttler disabled")
			}
		}
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	s.SubscribeAll()
	return s
}

// SubscribeAll registers the broadcaster for every engine event type
func (s *EventSubscriber) SubscribeAll() {
	for _, eventType := range interfaces.AllEventTypes {
		if err := s.eventService.Subscribe(eventType, s.handleEvent); err != nil {
			s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe WebSocket broadcaster")
		}
	}
}

func (s *EventSubscriber) handleEvent(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(event.Type)) {
		return nil
	}

	s.handler.Broadcast(WSMessage{
		Type:      string(event.Type),
		Payload:   event.Payload,
		Timestamp: time.Now(),
	})
	return nil
}

// shouldBroadcastEvent applies the whitelist, then the per-type throttle
func (s *EventSubscriber) shouldBroadcastEvent(eventType string) bool {
	if len(s.allowedEvents) > 0 && !s.allowedEvents[eventType] {
		return false
	}
	if limiter, ok := s.throttlers[eventType]; ok {
		return limiter.Allow()
	}
	return true
}
