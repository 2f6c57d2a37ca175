package eventbus

import "time"

// EventType classifies an invalidation event.
type EventType string

const (
	EventInvalidate     EventType = "invalidate"
	EventInvalidateType EventType = "invalidate_type"
	EventUpdate         EventType = "update"
	EventDelete         EventType = "delete"
	EventHeartbeat      EventType = "heartbeat"
)

// Event is a transient invalidation notification. It exists only for the
// duration of fan-out and is never persisted; clients that miss it fall back
// to polling the metadata registry.
type Event struct {
	Type      EventType      `json:"type"`
	Pattern   string         `json:"pattern,omitempty"`
	TenantID  string         `json:"tenant_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
