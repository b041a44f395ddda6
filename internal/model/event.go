package model

import "time"

// Event types published to the notification queue. Delivery is
// fire-and-forget; the engine never blocks on a consumer.
const (
	EventRequestSubmitted = "request.submitted"
	EventRequestCancelled = "request.cancelled"
	EventSessionStarted   = "session.started"
	EventSessionEnded     = "session.ended"
	EventSessionAbandoned = "session.abandoned"
)

// SessionEvent is the payload handed to the notification sink whenever
// a request or session changes state.
type SessionEvent struct {
	Type       string    `json:"type"`
	RequestID  uint      `json:"request_id,omitempty"`
	SessionID  uint      `json:"session_id,omitempty"`
	ActorID    uint      `json:"actor_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
