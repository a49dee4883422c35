package domain

import "github.com/bytedance/sonic"

const (
	EntityTypeIntake = "intake"

	IntakeCompleted = "intake-completed"
)

// Event is published when something noteworthy happens to a user's intake.
type Event struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entityType"`
	Type       string                 `json:"type"`
	Data       sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
}

// EventEnvelope wraps an event with the user it belongs to.
type EventEnvelope struct {
	UserID string `json:"userId"`
	Event  Event  `json:"event"`
}

// IntakeCompletedData is the payload of an IntakeCompleted event.
type IntakeCompletedData struct {
	Answers  Answers `json:"answers"`
	Estimate int     `json:"estimate"`
}
