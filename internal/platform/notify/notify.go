// Package notify fans out scheduling domain events to delivery sinks. Delivery
// content and channels live behind the Sink interface; the engine only records
// what happened and to whom it was handed.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType identifies a scheduling state change worth telling someone about.
type EventType string

const (
	EventAssignmentCreated   EventType = "assignment.created"
	EventAssignmentAccepted  EventType = "assignment.accepted"
	EventAssignmentDeclined  EventType = "assignment.declined"
	EventAssignmentCancelled EventType = "assignment.cancelled"
	EventAssignmentExpired   EventType = "assignment.expired"
	EventAssignmentCompleted EventType = "assignment.completed"
	EventSlotBooked          EventType = "slot.booked"
	EventSlotReleased        EventType = "slot.released"
)

// Event is a single domain event handed to the dispatcher.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	EntityID   string            `json:"entity_id"`
	ActorRole  string            `json:"actor_role"`
	OccurredAt time.Time         `json:"occurred_at"`
	Details    map[string]string `json:"details,omitempty"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
}

// Sink delivers an event somewhere: a log, a mail queue, a webhook.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

// LogSink writes events to a zerolog logger. It is the default sink.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Deliver(_ context.Context, e Event) error {
	msg := "event dispatched"
	if rendered, err := RenderMessage(e); err == nil {
		msg = rendered
	}
	s.Logger.Info().
		Str("event_id", e.ID).
		Str("type", string(e.Type)).
		Str("entity_id", e.EntityID).
		Str("actor_role", e.ActorRole).
		Msg(msg)
	return nil
}

// MockSink is a test double that records delivered events.
type MockSink struct {
	mu         sync.Mutex
	events     []Event
	ShouldFail bool
	FailError  string
}

// Deliver records the event and optionally returns an error.
func (m *MockSink) Deliver(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Events returns a copy of recorded events.
func (m *MockSink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// messageTemplates maps event types to human-readable summaries rendered with
// {{key}} replacement from Event.Details.
var messageTemplates = map[EventType]string{
	EventAssignmentCreated:   "New {{priority}} assignment offered. Respond before {{expires_at}}.",
	EventAssignmentAccepted:  "Assignment accepted by the doctor.",
	EventAssignmentDeclined:  "Assignment declined by the doctor.",
	EventAssignmentCancelled: "Assignment cancelled by {{cancelled_by}}.",
	EventAssignmentExpired:   "Assignment expired without a response.",
	EventAssignmentCompleted: "Assignment marked complete.",
	EventSlotBooked:          "Availability window booked from {{start}} to {{end}}.",
	EventSlotReleased:        "Booked window released.",
}

// RenderMessage produces the human-readable summary for an event. Keys present
// in the template but absent from the details map are left as-is.
func RenderMessage(e Event) (string, error) {
	tpl, ok := messageTemplates[e.Type]
	if !ok {
		return "", fmt.Errorf("no message template for event type %q", e.Type)
	}
	msg := tpl
	for k, v := range e.Details {
		msg = strings.ReplaceAll(msg, "{{"+k+"}}", v)
	}
	return msg, nil
}

// maxRetained bounds the dispatcher's in-memory event record. Oldest events
// are evicted first; the record exists for recent-delivery inspection, not as
// an event store.
const maxRetained = 1024

// Dispatcher records events and fans them out to its sinks. Delivery failures
// are recorded on the event but never propagate to the caller: a lost
// notification must not roll back the state change it describes.
type Dispatcher struct {
	sinks  []Sink
	logger zerolog.Logger

	mu     sync.RWMutex
	events map[string]*Event
	order  []string
}

// NewDispatcher constructs a Dispatcher. With no sinks, events are only
// recorded in memory.
func NewDispatcher(logger zerolog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		logger: logger,
		events: make(map[string]*Event),
	}
}

// Dispatch assigns the event an ID and timestamp, hands it to every sink, and
// records the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	e.Status = "dispatched"

	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, e); err != nil {
			e.Status = "failed"
			e.Error = err.Error()
			d.logger.Error().Err(err).
				Str("event_id", e.ID).
				Str("type", string(e.Type)).
				Msg("event delivery failed")
		}
	}

	d.mu.Lock()
	if _, exists := d.events[e.ID]; !exists {
		d.order = append(d.order, e.ID)
	}
	d.events[e.ID] = &e
	for len(d.order) > maxRetained {
		delete(d.events, d.order[0])
		d.order = d.order[1:]
	}
	d.mu.Unlock()
}

// Get retrieves a recorded event by ID.
func (d *Dispatcher) Get(id string) (*Event, error) {
	d.mu.RLock()
	e, ok := d.events[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("event %q not found", id)
	}
	return e, nil
}

