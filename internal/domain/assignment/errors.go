package assignment

import "errors"

var (
	ErrNotFound          = errors.New("assignment not found")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrExpired           = errors.New("assignment expired")
	ErrNotCancellable    = errors.New("cancellation blocked by policy")
	ErrPlanLimitExceeded = errors.New("monthly assignment limit reached")
	ErrWrongActor        = errors.New("actor not permitted for this transition")
	ErrSubSlotNotBooked  = errors.New("sub-slot is not booked")
	ErrSubSlotLinked     = errors.New("sub-slot already linked to an active assignment")
)
