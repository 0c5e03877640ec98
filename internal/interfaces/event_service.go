package interfaces

import "context"

// EventType represents different event types in the engine
type EventType string

const (
	EventGroupRunStarted    EventType = "group_run_started"
	EventGroupRunCompleted  EventType = "group_run_completed"
	EventHarvestTruncated   EventType = "harvest_truncated"
	EventOutboundCallFailed EventType = "outbound_call_failed"
)

// AllEventTypes lists every event the engine publishes
var AllEventTypes = []EventType{
	EventGroupRunStarted,
	EventGroupRunCompleted,
	EventHarvestTruncated,
	EventOutboundCallFailed,
}

// Event represents an engine event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the in-process pub/sub event bus
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	Close() error
}

// TruncationPayload accompanies EventHarvestTruncated
type TruncationPayload struct {
	Operation string `json:"operation"`
	Scope     string `json:"scope"`
	Pages     int    `json:"pages"`
	Items     int    `json:"items"`
}

// CallFailurePayload accompanies EventOutboundCallFailed
type CallFailurePayload struct {
	Operation string `json:"operation"`
	Kind      string `json:"kind"`
	Attempt   int    `json:"attempt"`
	Code      int    `json:"code,omitempty"`
	Error     string `json:"error"`
}

// RunPayload accompanies EventGroupRunStarted and EventGroupRunCompleted
type RunPayload struct {
	RunID        string `json:"run_id"`
	GroupID      string `json:"group_id"`
	Trigger      string `json:"trigger"`
	Status       string `json:"status,omitempty"` // Empty on start
	PostCount    int    `json:"post_count,omitempty"`
	CommentCount int    `json:"comment_count,omitempty"`
	FailedPosts  int    `json:"failed_posts,omitempty"`
	Truncated    bool   `json:"truncated,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
	Error        string `json:"error,omitempty"`
}
