package assignment

import (
	"time"

	"github.com/google/uuid"
)

// Assignment statuses. pending is the only non-terminal status an assignment
// is created in; completed, declined, cancelled and expired are terminal.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Actor roles recorded on transitions.
const (
	ActorHospital = "hospital"
	ActorDoctor   = "doctor"
	ActorSystem   = "system"
)

// Priorities and their response windows. A pending assignment not answered
// within the window expires.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

var responseWindows = map[string]time.Duration{
	PriorityLow:    24 * time.Hour,
	PriorityMedium: 6 * time.Hour,
	PriorityHigh:   1 * time.Hour,
}

// ResponseWindow returns how long a doctor has to answer an assignment of the
// given priority, or false for an unknown priority.
func ResponseWindow(priority string) (time.Duration, bool) {
	w, ok := responseWindows[priority]
	return w, ok
}

// transitions whitelists every legal status change. Anything absent is
// rejected with ErrInvalidTransition.
var transitions = map[string]map[string]bool{
	StatusPending: {
		StatusAccepted:  true,
		StatusDeclined:  true,
		StatusCancelled: true,
		StatusExpired:   true,
	},
	StatusAccepted: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
}

// CanTransition reports whether from → to is a whitelisted status change.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// IsTerminal reports whether a status can never be left.
func IsTerminal(status string) bool {
	return len(transitions[status]) == 0
}

// Assignment is the relation entity tying a hospital's request to a doctor,
// a patient and (usually) a booked sub-slot.
type Assignment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	HospitalID      uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	SubSlotID       *uuid.UUID `db:"sub_slot_id" json:"sub_slot_id,omitempty"`
	Priority        string     `db:"priority" json:"priority"`
	Status          string     `db:"status" json:"status"`
	RequestedAt     time.Time  `db:"requested_at" json:"requested_at"`
	ExpiresAt       *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	ActualStart     *time.Time `db:"actual_start" json:"actual_start,omitempty"`
	ActualEnd       *time.Time `db:"actual_end" json:"actual_end,omitempty"`
	ConsultationFee *float64   `db:"consultation_fee" json:"consultation_fee,omitempty"`
	TreatmentNotes  *string    `db:"treatment_notes" json:"treatment_notes,omitempty"`
	CancelReason    *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CancelledBy     *string    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt     *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	PaidAt          *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// DuePending reports whether the assignment is pending and past its response
// window at the given instant.
func (a *Assignment) DuePending(now time.Time) bool {
	return a.Status == StatusPending && a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// CancellationFlag is the append-only record of a penalized cancellation.
// Three recent high-or-worse flags trigger a suspension review downstream.
type CancellationFlag struct {
	ID           uuid.UUID `db:"id" json:"id"`
	HospitalID   uuid.UUID `db:"hospital_id" json:"hospital_id"`
	AssignmentID uuid.UUID `db:"assignment_id" json:"assignment_id"`
	Severity     string    `db:"severity" json:"severity"`
	PolicyWindow string    `db:"policy_window" json:"policy_window"`
	RecordedAt   time.Time `db:"recorded_at" json:"recorded_at"`
}
