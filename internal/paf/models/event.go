package models

import "time"

// EventStatusChanged is the outbox event type written with every transition.
const EventStatusChanged = "paf.status-changed"

// StatusEvent is the payload persisted to the outbox inside the transition
// transaction and published to the status topic afterwards.
type StatusEvent struct {
	PAFID             int64     `json:"paf_id"`
	DisplayIdentifier string    `json:"display_identifier,omitempty"`
	Status            Status    `json:"status"`
	ActorID           int64     `json:"actor_id"`
	Notes             string    `json:"notes,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}
