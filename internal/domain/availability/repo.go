package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
	Update(ctx context.Context, t *Template) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Template, int, error)
	ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Template, error)
}

type ParentSlotRepository interface {
	Create(ctx context.Context, p *ParentSlot) error
	GetByID(ctx context.Context, id uuid.UUID) (*ParentSlot, error)
	// GetForUpdate locks the slot row for the lifetime of the surrounding
	// transaction so concurrent bookings serialize on it.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*ParentSlot, error)
	Update(ctx context.Context, p *ParentSlot) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time, limit, offset int) ([]*ParentSlot, int, error)
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*ParentSlot, error)
}

type SubSlotRepository interface {
	Create(ctx context.Context, s *SubSlot) error
	GetByID(ctx context.Context, id uuid.UUID) (*SubSlot, error)
	// GetForUpdate locks the sub-slot row for the lifetime of the surrounding
	// transaction so releases and assignment creation serialize on it.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*SubSlot, error)
	Update(ctx context.Context, s *SubSlot) error
	ListByParent(ctx context.Context, parentSlotID uuid.UUID) ([]*SubSlot, error)
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*SubSlot, int, error)
	CountBookedByParent(ctx context.Context, parentSlotID uuid.UUID) (int, error)
}

// LeaveChecker answers whether a doctor is on leave on a date. The leave
// domain provides the real implementation.
type LeaveChecker interface {
	IsOnLeave(ctx context.Context, doctorID uuid.UUID, date time.Time) (bool, error)
}

// AssignmentChecker answers whether an active assignment still references a
// booked sub-slot. The assignment domain provides the real implementation.
type AssignmentChecker interface {
	HasActiveForSubSlot(ctx context.Context, subSlotID uuid.UUID) (bool, error)
}

// TxRunner runs fn atomically. The db platform package provides the real
// implementation; tests pass a passthrough.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error
