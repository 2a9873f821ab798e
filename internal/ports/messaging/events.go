package messaging

import "time"

// Phase identifies which session instant fired.
type Phase string

const (
	PhaseEarly  Phase = "early"
	PhaseOnTime Phase = "on-time"
	PhaseLate   Phase = "late"
)

// PhaseEvent is the JSON payload published to the notification queue when a
// session phase timer fires. Scope is the session's category id, empty for
// the global scope.
type PhaseEvent struct {
	SessionID string    `json:"sessionId"`
	Phase     Phase     `json:"phase"`
	Scope     string    `json:"scope,omitempty"`
	Message   string    `json:"message"`
	FiredAt   time.Time `json:"firedAt"`
}
