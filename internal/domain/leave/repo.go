package leave

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("leave not found")
	ErrInvalidRange = errors.New("end_date precedes start_date")
)

type Repository interface {
	Create(ctx context.Context, l *Leave) error
	GetByID(ctx context.Context, id uuid.UUID) (*Leave, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Leave, int, error)
	// AnyCovering reports whether the doctor has a leave spanning the date.
	AnyCovering(ctx context.Context, doctorID uuid.UUID, date time.Time) (bool, error)
}
