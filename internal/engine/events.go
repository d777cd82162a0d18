package engine

// Lifecycle events for ops surfaces (admin event stream). Publishing is
// non-blocking: a slow consumer loses events, never stalls the engine.

type EventType string

const (
	EventCreated  EventType = "WORLD_CREATED"
	EventLoaded   EventType = "WORLD_LOADED"
	EventReleased EventType = "WORLD_RELEASED"
	EventDeleted  EventType = "WORLD_DELETED"
)

type Event struct {
	Type   EventType `json:"type"`
	World  string    `json:"world_id"`
	Bucket string    `json:"bucket,omitempty"`
}

func (r *Registry) publish(ev Event) {
	select {
	case r.events <- ev:
	default:
	}
}

// Events exposes the lifecycle stream. Single consumer; the daemon fans
// out to its own subscribers.
func (r *Registry) Events() <-chan Event {
	return r.events
}
