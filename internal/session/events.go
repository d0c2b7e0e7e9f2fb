package session

import "time"

// EventType identifies a domain event queued by the session aggregate.
type EventType string

const (
	EventUtteranceCommitted EventType = "utterance_committed"
	EventResponseProduced   EventType = "response_produced"
)

// Event is an in-memory domain notification. Events are queued under the
// session lock and published by the orchestrator after the session is
// persisted, in enqueue order. They are not durable; a crash before drain
// loses them.
type Event struct {
	Type       EventType
	SessionID  string
	TurnID     string
	OccurredAt time.Time
}
