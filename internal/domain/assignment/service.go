package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oncallmed/oncallmed/internal/domain/audit"
	"github.com/oncallmed/oncallmed/internal/platform/notify"
)

type Service struct {
	repo    Repository
	flags   FlagRepository
	slots   SlotGateway
	limiter PlanLimiter
	events  *notify.Dispatcher
	auditor audit.Recorder
	logger  zerolog.Logger
	tx      TxRunner

	// now is swapped out in tests.
	now func() time.Time
}

func NewService(
	repo Repository,
	flags FlagRepository,
	slots SlotGateway,
	limiter PlanLimiter,
	events *notify.Dispatcher,
	auditor audit.Recorder,
	logger zerolog.Logger,
	tx TxRunner,
) *Service {
	return &Service{
		repo:    repo,
		flags:   flags,
		slots:   slots,
		limiter: limiter,
		events:  events,
		auditor: auditor,
		logger:  logger,
		tx:      tx,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// HasActiveForSubSlot satisfies the availability domain's AssignmentChecker.
func (s *Service) HasActiveForSubSlot(ctx context.Context, subSlotID uuid.UUID) (bool, error) {
	return s.repo.HasActiveForSubSlot(ctx, subSlotID)
}

func (s *Service) record(ctx context.Context, a *Assignment, action, actorType, actorID string, details map[string]string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, &audit.Entry{
		EntityType: "assignment", EntityID: a.ID.String(), Action: action,
		ActorType: actorType, ActorID: actorID, Details: details,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("audit record failed")
	}
}

func (s *Service) emit(ctx context.Context, typ notify.EventType, a *Assignment, actorRole string) {
	s.events.Dispatch(ctx, notify.Event{
		Type:      typ,
		EntityID:  a.ID.String(),
		ActorRole: actorRole,
		Details:   map[string]string{"status": a.Status, "priority": a.Priority},
	})
}

// Create opens a pending assignment. The referenced sub-slot, when given,
// must be booked by the requesting hospital and not already carry an active
// assignment, and the doctor must be under their monthly plan cap. The
// gateway locks the booking row, so a concurrent release of the same booking
// serializes behind this transaction.
func (s *Service) Create(ctx context.Context, a *Assignment) error {
	if a.HospitalID == uuid.Nil || a.DoctorID == uuid.Nil || a.PatientID == uuid.Nil {
		return fmt.Errorf("hospital_id, doctor_id and patient_id are required")
	}
	window, ok := ResponseWindow(a.Priority)
	if !ok {
		return ErrInvalidPriority
	}

	now := s.now()
	a.Status = StatusPending
	a.RequestedAt = now
	expiresAt := now.Add(window)
	a.ExpiresAt = &expiresAt

	err := s.tx(ctx, func(ctx context.Context) error {
		if a.SubSlotID != nil {
			booking, err := s.slots.Booking(ctx, *a.SubSlotID)
			if err != nil {
				return err
			}
			if !booking.Booked {
				return ErrSubSlotNotBooked
			}
			if booking.HospitalID != a.HospitalID {
				return ErrWrongActor
			}
			linked, err := s.repo.HasActiveForSubSlot(ctx, *a.SubSlotID)
			if err != nil {
				return err
			}
			if linked {
				return ErrSubSlotLinked
			}
		}

		limit, err := s.limiter.MaxAssignmentsPerMonth(ctx, a.DoctorID)
		if err != nil {
			return err
		}
		if limit >= 0 {
			monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
			monthEnd := monthStart.AddDate(0, 1, 0)
			count, err := s.repo.CountActiveInMonth(ctx, a.DoctorID, monthStart, monthEnd)
			if err != nil {
				return err
			}
			if count >= limit {
				return ErrPlanLimitExceeded
			}
		}

		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		s.record(ctx, a, "create", ActorHospital, a.HospitalID.String(), map[string]string{"priority": a.Priority})
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, notify.EventAssignmentCreated, a, ActorHospital)
	return nil
}

// Accept moves pending → accepted. Only the assigned doctor may accept, and
// only while the response window is open.
func (s *Service) Accept(ctx context.Context, id, doctorID uuid.UUID) (*Assignment, error) {
	var out *Assignment
	err := s.tx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.DuePending(s.now()) {
			if err := s.expireLocked(ctx, a); err != nil {
				return err
			}
			return ErrExpired
		}
		if a.DoctorID != doctorID {
			return ErrWrongActor
		}
		if !CanTransition(a.Status, StatusAccepted) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, StatusAccepted)
		}
		a.Status = StatusAccepted
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		s.record(ctx, a, "accept", ActorDoctor, doctorID.String(), nil)
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, notify.EventAssignmentAccepted, out, ActorDoctor)
	return out, nil
}

// Decline moves pending → declined and frees the sub-slot so the doctor stays
// bookable.
func (s *Service) Decline(ctx context.Context, id, doctorID uuid.UUID, reason string) (*Assignment, error) {
	var out *Assignment
	err := s.tx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.DuePending(s.now()) {
			if err := s.expireLocked(ctx, a); err != nil {
				return err
			}
			return ErrExpired
		}
		if a.DoctorID != doctorID {
			return ErrWrongActor
		}
		if !CanTransition(a.Status, StatusDeclined) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, StatusDeclined)
		}
		a.Status = StatusDeclined
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		if err := s.releaseSubSlot(ctx, a); err != nil {
			return err
		}
		s.record(ctx, a, "decline", ActorDoctor, doctorID.String(), map[string]string{"reason": reason})
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, notify.EventAssignmentDeclined, out, ActorDoctor)
	return out, nil
}

// CompleteParams carries the doctor's consultation report. Actual times left
// nil fall back to the booked window start and the completion time.
type CompleteParams struct {
	TreatmentNotes *string
	ActualStart    *time.Time
	ActualEnd      *time.Time
}

// Complete moves accepted → completed. The sub-slot stays booked as the
// historical record of the appointment.
func (s *Service) Complete(ctx context.Context, id, doctorID uuid.UUID, p CompleteParams) (*Assignment, error) {
	var out *Assignment
	err := s.tx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.DoctorID != doctorID {
			return ErrWrongActor
		}
		if !CanTransition(a.Status, StatusCompleted) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, StatusCompleted)
		}
		now := s.now()
		a.Status = StatusCompleted
		a.CompletedAt = &now
		a.ActualEnd = p.ActualEnd
		if a.ActualEnd == nil {
			a.ActualEnd = &now
		}
		a.ActualStart = p.ActualStart
		if a.ActualStart == nil && a.SubSlotID != nil && s.slots != nil {
			booking, err := s.slots.Booking(ctx, *a.SubSlotID)
			if err != nil {
				return err
			}
			start := booking.StartTime
			a.ActualStart = &start
		}
		if p.TreatmentNotes != nil {
			a.TreatmentNotes = p.TreatmentNotes
		}
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		s.record(ctx, a, "complete", ActorDoctor, doctorID.String(), nil)
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, notify.EventAssignmentCompleted, out, ActorDoctor)
	return out, nil
}

// Cancel moves pending or accepted → cancelled and frees the sub-slot.
// A hospital cancelling an accepted assignment goes through the tiered
// cancellation policy: it may be refused close to the appointment, and
// otherwise leaves a flag against the hospital.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actorRole string, actorID uuid.UUID, reason string) (*Assignment, error) {
	var out *Assignment
	err := s.tx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.DuePending(s.now()) {
			if err := s.expireLocked(ctx, a); err != nil {
				return err
			}
			return ErrExpired
		}
		switch actorRole {
		case ActorHospital:
			if a.HospitalID != actorID {
				return ErrWrongActor
			}
		case ActorDoctor:
			if a.DoctorID != actorID {
				return ErrWrongActor
			}
		case ActorSystem:
		default:
			return ErrWrongActor
		}
		if !CanTransition(a.Status, StatusCancelled) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, StatusCancelled)
		}

		if actorRole == ActorHospital && a.Status == StatusAccepted {
			if err := s.applyCancellationPolicy(ctx, a); err != nil {
				return err
			}
		}

		now := s.now()
		role := actorRole
		a.Status = StatusCancelled
		a.CancelReason = &reason
		a.CancelledBy = &role
		a.CancelledAt = &now
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		if err := s.releaseSubSlot(ctx, a); err != nil {
			return err
		}
		s.record(ctx, a, "cancel", actorRole, actorID.String(), map[string]string{"reason": reason})
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, notify.EventAssignmentCancelled, out, actorRole)
	return out, nil
}

// applyCancellationPolicy evaluates the tiered policy against the booked
// appointment start and persists the resulting flag. Assignments without a
// sub-slot have no appointment time, so no policy applies.
func (s *Service) applyCancellationPolicy(ctx context.Context, a *Assignment) error {
	if a.SubSlotID == nil {
		return nil
	}
	booking, err := s.slots.Booking(ctx, *a.SubSlotID)
	if err != nil {
		return err
	}
	hours := booking.StartTime.Sub(s.now()).Hours()
	outcome := EvaluateCancellation(hours)
	if outcome.BlocksCancellation {
		return ErrNotCancellable
	}
	if !outcome.Flagged {
		return nil
	}
	return s.flags.Create(ctx, &CancellationFlag{
		HospitalID:   a.HospitalID,
		AssignmentID: a.ID,
		Severity:     outcome.Severity,
		PolicyWindow: outcome.PolicyWindow,
		RecordedAt:   s.now(),
	})
}

// Get returns the assignment, lazily reclassifying a pending one past its
// response window so every reader agrees on its status.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DuePending(s.now()) {
		if err := s.Expire(ctx, id); err != nil {
			return nil, err
		}
		return s.repo.GetByID(ctx, id)
	}
	return a, nil
}

// List applies the same lazy expiry as Get to every returned assignment.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Assignment, int, error) {
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for i, a := range items {
		if !a.DuePending(now) {
			continue
		}
		if err := s.Expire(ctx, a.ID); err != nil {
			return nil, 0, err
		}
		refreshed, err := s.repo.GetByID(ctx, a.ID)
		if err != nil {
			return nil, 0, err
		}
		items[i] = refreshed
	}
	return items, total, nil
}

// Expire reclassifies one overdue pending assignment. It re-checks under the
// row lock, so racing readers and the sweep converge on a single transition.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) error {
	var expired *Assignment
	err := s.tx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !a.DuePending(s.now()) {
			return nil
		}
		if err := s.expireLocked(ctx, a); err != nil {
			return err
		}
		expired = a
		return nil
	})
	if err != nil {
		return err
	}
	if expired != nil {
		s.emit(ctx, notify.EventAssignmentExpired, expired, ActorSystem)
	}
	return nil
}

// expireLocked flips a row already held under FOR UPDATE to expired and frees
// its sub-slot. Callers have verified DuePending.
func (s *Service) expireLocked(ctx context.Context, a *Assignment) error {
	a.Status = StatusExpired
	if err := s.repo.Update(ctx, a); err != nil {
		return err
	}
	if err := s.releaseSubSlot(ctx, a); err != nil {
		return err
	}
	s.record(ctx, a, "expire", ActorSystem, "", nil)
	return nil
}

// ExpirePending is the sweep: it expires every overdue pending assignment,
// returning how many it flipped.
func (s *Service) ExpirePending(ctx context.Context, batchSize int) (int, error) {
	due, err := s.repo.ListDuePending(ctx, s.now(), batchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, a := range due {
		if err := s.Expire(ctx, a.ID); err != nil {
			s.logger.Error().Err(err).Str("assignment_id", a.ID.String()).Msg("expire sweep failed")
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *Service) ListFlags(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*CancellationFlag, int, error) {
	return s.flags.ListByHospital(ctx, hospitalID, limit, offset)
}

func (s *Service) releaseSubSlot(ctx context.Context, a *Assignment) error {
	if a.SubSlotID == nil {
		return nil
	}
	return s.slots.Release(ctx, *a.SubSlotID)
}
