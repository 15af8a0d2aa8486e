package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows assignment listings. Zero values mean "any".
type Filter struct {
	HospitalID uuid.UUID
	DoctorID   uuid.UUID
	Status     string
}

type Repository interface {
	Create(ctx context.Context, a *Assignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error)
	// GetForUpdate locks the assignment row for the lifetime of the
	// surrounding transaction so concurrent transitions serialize.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Assignment, error)
	Update(ctx context.Context, a *Assignment) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Assignment, int, error)
	// ListDuePending returns pending assignments whose response window has
	// elapsed at now, oldest first.
	ListDuePending(ctx context.Context, now time.Time, limit int) ([]*Assignment, error)
	// CountActiveInMonth counts the doctor's pending, accepted and completed
	// assignments requested within [monthStart, monthEnd).
	CountActiveInMonth(ctx context.Context, doctorID uuid.UUID, monthStart, monthEnd time.Time) (int, error)
	HasActiveForSubSlot(ctx context.Context, subSlotID uuid.UUID) (bool, error)
}

type FlagRepository interface {
	Create(ctx context.Context, f *CancellationFlag) error
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*CancellationFlag, int, error)
}

// Booking is the assignment domain's view of a booked sub-slot.
type Booking struct {
	ID         uuid.UUID
	HospitalID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	Booked     bool
}

// SlotGateway decouples the state machine from the availability domain. The
// availability service provides the real implementation via an adapter.
type SlotGateway interface {
	// Booking reads the sub-slot and locks its row for the lifetime of the
	// caller's transaction, so linking an assignment to a booking and
	// releasing that booking serialize.
	Booking(ctx context.Context, subSlotID uuid.UUID) (*Booking, error)
	// Release frees the sub-slot after its assignment terminates.
	Release(ctx context.Context, subSlotID uuid.UUID) error
}

// PlanLimiter exposes the doctor's subscription cap. -1 means unlimited.
type PlanLimiter interface {
	MaxAssignmentsPerMonth(ctx context.Context, doctorID uuid.UUID) (int, error)
}

// TxRunner runs fn atomically. The db platform package provides the real
// implementation; tests pass a passthrough.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error
