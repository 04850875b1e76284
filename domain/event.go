package domain

import (
	"time"

	"github.com/bytedance/sonic"
)

const (
	CardMoved          = "card-moved"
	InteractionAdded   = "interaction-added"
	EntityCreated      = "entity-created"
	EntityUpdated      = "entity-updated"
	EntityDeleted      = "entity-deleted"
	EntityTypeClient   = "client"
	EntityTypeProposal = "proposal"
	EntityTypeContract = "contract"
	EntityTypeTx       = "transaction"
	EntityTypeService  = "service"
)

// Event records a change made through the API. Events are published to the
// domain events queue and projected into the activity feed.
type Event struct {
	// ID doubles as the idempotency key downstream.
	ID         string                 `json:"id"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Type       string                 `json:"type"`
	Data       sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
}

// EventEnvelope wraps an event with the user that caused it.
type EventEnvelope struct {
	UserID string `json:"userId"`
	Event  Event  `json:"event"`
}

// CardMovedData is the payload of a CardMoved event.
type CardMovedData struct {
	FromStage string `json:"fromStage"`
	FromIndex int    `json:"fromIndex"`
	ToStage   string `json:"toStage"`
	ToIndex   int    `json:"toIndex"`
}

// EntityChangedData is the payload of entity created, updated and deleted
// events.
type EntityChangedData struct {
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// Activity is a projected, human readable line of the activity feed.
type Activity struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Type       string    `json:"type"`
	Summary    string    `json:"summary"`
	At         time.Time `json:"at"`
}
