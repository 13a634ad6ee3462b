package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventUpserted EventKind = "location.upserted"
	EventDeleted  EventKind = "location.deleted"
)

// LocationEvent is the webhook payload emitted after a write.
type LocationEvent struct {
	ID         uuid.UUID `json:"id"`
	Kind       EventKind `json:"kind"`
	LocationID int64     `json:"location_id"`
	Location   *Location `json:"location,omitempty"`
	At         time.Time `json:"at"`
}
