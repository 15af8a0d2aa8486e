package audit

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("audit entry not found")

// Recorder is what the domain services depend on. Recording must never block
// a state change for long; implementations keep the write cheap.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

// Filter narrows List queries. Zero values mean "any".
type Filter struct {
	EntityType string
	EntityID   string
	Action     string
	ActorID    string
}

type Repository interface {
	Recorder
	List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
}
