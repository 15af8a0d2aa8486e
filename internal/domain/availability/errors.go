package availability

import "errors"

var (
	// ErrNotFound is returned when a template or slot does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTimeRange is returned when an end does not come after its start.
	ErrInvalidTimeRange = errors.New("end time must be after start time")

	// ErrTemplateDaysRequired is returned when a weekly or custom template has
	// an empty day set.
	ErrTemplateDaysRequired = errors.New("weekly and custom templates require at least one day")

	// ErrRangeTooLarge is returned when a generation range exceeds the
	// configured maximum.
	ErrRangeTooLarge = errors.New("generation range exceeds maximum")

	// ErrSlotOverlap is returned when a parent slot would overlap an existing
	// parent slot for the same doctor.
	ErrSlotOverlap = errors.New("slot overlaps an existing availability window")

	// ErrSlotConflict is returned when a requested booking overlaps an
	// existing booked sub-slot.
	ErrSlotConflict = errors.New("requested window conflicts with an existing booking")

	// ErrOutsideParentWindow is returned when a requested booking does not fit
	// inside its parent slot.
	ErrOutsideParentWindow = errors.New("requested window falls outside the availability window")

	// ErrSlotNotAvailable is returned when booking against a parent slot that
	// is not open for booking.
	ErrSlotNotAvailable = errors.New("slot is not available for booking")

	// ErrSlotInUse is returned when deleting a parent slot that still has
	// booked sub-slots.
	ErrSlotInUse = errors.New("slot has active bookings")

	// ErrSubSlotInUse is returned when releasing a sub-slot that an active
	// assignment still references.
	ErrSubSlotInUse = errors.New("booking is referenced by an active assignment")

	// ErrNotSlotOwner is returned when a hospital acts on a booking held by
	// another hospital.
	ErrNotSlotOwner = errors.New("booking belongs to another hospital")

	// ErrAlreadyReleased is returned when releasing a sub-slot twice.
	ErrAlreadyReleased = errors.New("booking already released")
)
