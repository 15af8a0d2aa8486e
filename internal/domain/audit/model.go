package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable record of a state change: who did what to which
// entity, and when.
type Entry struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	EntityType string            `json:"entity_type" db:"entity_type"`
	EntityID   string            `json:"entity_id" db:"entity_id"`
	Action     string            `json:"action" db:"action"`
	ActorType  string            `json:"actor_type" db:"actor_type"`
	ActorID    string            `json:"actor_id,omitempty" db:"actor_id"`
	Details    map[string]string `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}
