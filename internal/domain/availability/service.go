package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oncallmed/oncallmed/internal/domain/audit"
	"github.com/oncallmed/oncallmed/internal/platform/notify"
)

var validPatterns = map[string]bool{
	PatternDaily: true, PatternWeekly: true, PatternMonthly: true, PatternCustom: true,
}

type Service struct {
	templates TemplateRepository
	parents   ParentSlotRepository
	subs      SubSlotRepository
	leaves    LeaveChecker
	events    *notify.Dispatcher
	auditor   audit.Recorder
	logger    zerolog.Logger
	tx        TxRunner

	// assignments is set after construction because the assignment service is
	// wired on top of this one.
	assignments AssignmentChecker

	maxGenerateDays int
}

func NewService(
	templates TemplateRepository,
	parents ParentSlotRepository,
	subs SubSlotRepository,
	leaves LeaveChecker,
	events *notify.Dispatcher,
	auditor audit.Recorder,
	logger zerolog.Logger,
	tx TxRunner,
	maxGenerateDays int,
) *Service {
	return &Service{
		templates:       templates,
		parents:         parents,
		subs:            subs,
		leaves:          leaves,
		events:          events,
		auditor:         auditor,
		logger:          logger,
		tx:              tx,
		maxGenerateDays: maxGenerateDays,
	}
}

// SetAssignmentChecker wires the assignment-domain guard used when releasing
// booked sub-slots.
func (s *Service) SetAssignmentChecker(ac AssignmentChecker) { s.assignments = ac }

func (s *Service) record(ctx context.Context, entry *audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("action", entry.Action).Msg("audit record failed")
	}
}

// -- Templates --

func (s *Service) validateTemplate(t *Template) error {
	if t.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validPatterns[t.Pattern] {
		return fmt.Errorf("invalid recurrence pattern: %s", t.Pattern)
	}
	if t.Pattern == PatternWeekly || t.Pattern == PatternCustom {
		if len(t.Days) == 0 {
			return ErrTemplateDaysRequired
		}
		for _, d := range t.Days {
			if !validDay(d) {
				return fmt.Errorf("invalid day token: %s", d)
			}
		}
	}
	start, err := ParseClock(t.StartTime)
	if err != nil {
		return err
	}
	end, err := ParseClock(t.EndTime)
	if err != nil {
		return err
	}
	if end <= start {
		return ErrInvalidTimeRange
	}
	if t.ValidFrom.IsZero() {
		return fmt.Errorf("valid_from is required")
	}
	if t.ValidUntil != nil && DateOnly(*t.ValidUntil).Before(DateOnly(t.ValidFrom)) {
		return fmt.Errorf("valid_until precedes valid_from")
	}
	return nil
}

func (s *Service) CreateTemplate(ctx context.Context, t *Template) error {
	if err := s.validateTemplate(t); err != nil {
		return err
	}
	t.Active = true
	if err := s.templates.Create(ctx, t); err != nil {
		return err
	}
	s.record(ctx, &audit.Entry{
		EntityType: "template", EntityID: t.ID.String(), Action: "create",
		ActorType: "doctor", ActorID: t.DoctorID.String(),
	})
	return nil
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	return s.templates.GetByID(ctx, id)
}

func (s *Service) UpdateTemplate(ctx context.Context, t *Template) error {
	existing, err := s.templates.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	t.DoctorID = existing.DoctorID
	if err := s.validateTemplate(t); err != nil {
		return err
	}
	if err := s.templates.Update(ctx, t); err != nil {
		return err
	}
	s.record(ctx, &audit.Entry{
		EntityType: "template", EntityID: t.ID.String(), Action: "update",
		ActorType: "doctor", ActorID: t.DoctorID.String(),
	})
	return nil
}

// DeleteTemplate removes the template. Slots already generated from it stay:
// hospitals may have booked them.
func (s *Service) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.templates.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, &audit.Entry{
		EntityType: "template", EntityID: id.String(), Action: "delete",
		ActorType: "doctor", ActorID: t.DoctorID.String(),
	})
	return nil
}

func (s *Service) ListTemplates(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Template, int, error) {
	return s.templates.ListByDoctor(ctx, doctorID, limit, offset)
}

// -- Parent slots --

// CreateManualSlot records a hand-placed availability window. It must not
// overlap any existing window of the doctor on that date.
func (s *Service) CreateManualSlot(ctx context.Context, p *ParentSlot) error {
	if p.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if !p.EndTime.After(p.StartTime) {
		return ErrInvalidTimeRange
	}
	p.SlotDate = DateOnly(p.StartTime)
	p.Status = SlotAvailable
	p.IsManual = true

	return s.tx(ctx, func(ctx context.Context) error {
		existing, err := s.parents.ListByDoctorDate(ctx, p.DoctorID, p.SlotDate)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if Overlaps(p.StartTime, p.EndTime, e.StartTime, e.EndTime) {
				return ErrSlotOverlap
			}
		}
		if err := s.parents.Create(ctx, p); err != nil {
			return err
		}
		s.record(ctx, &audit.Entry{
			EntityType: "parent_slot", EntityID: p.ID.String(), Action: "create",
			ActorType: "doctor", ActorID: p.DoctorID.String(),
		})
		return nil
	})
}

func (s *Service) GetParentSlot(ctx context.Context, id uuid.UUID) (*ParentSlot, error) {
	return s.parents.GetByID(ctx, id)
}

func (s *Service) ListDoctorSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time, limit, offset int) ([]*ParentSlot, int, error) {
	return s.parents.ListByDoctor(ctx, doctorID, DateOnly(from), DateOnly(to), limit, offset)
}

// DeleteParentSlot removes an availability window, refusing while any booking
// on it is still live.
func (s *Service) DeleteParentSlot(ctx context.Context, id uuid.UUID) error {
	return s.tx(ctx, func(ctx context.Context) error {
		p, err := s.parents.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		booked, err := s.subs.CountBookedByParent(ctx, id)
		if err != nil {
			return err
		}
		if booked > 0 {
			return ErrSlotInUse
		}
		if err := s.parents.Delete(ctx, id); err != nil {
			return err
		}
		s.record(ctx, &audit.Entry{
			EntityType: "parent_slot", EntityID: id.String(), Action: "delete",
			ActorType: "doctor", ActorID: p.DoctorID.String(),
		})
		return nil
	})
}

// Ranges returns the free gaps of a parent slot.
func (s *Service) Ranges(ctx context.Context, parentSlotID uuid.UUID) ([]AvailableRange, error) {
	p, err := s.parents.GetByID(ctx, parentSlotID)
	if err != nil {
		return nil, err
	}
	subs, err := s.subs.ListByParent(ctx, parentSlotID)
	if err != nil {
		return nil, err
	}
	return AvailableRanges(p, subs), nil
}

// -- Bookings --

// BookSubSlot books [start, end) of a parent slot for a hospital. The parent
// row is locked so overlapping requests serialize; the first to commit wins
// and the rest observe its sub-slot and fail with ErrSlotConflict.
func (s *Service) BookSubSlot(ctx context.Context, parentSlotID, hospitalID uuid.UUID, start, end time.Time) (*SubSlot, error) {
	if hospitalID == uuid.Nil {
		return nil, fmt.Errorf("hospital_id is required")
	}
	if !end.After(start) {
		return nil, ErrInvalidTimeRange
	}

	var sub *SubSlot
	err := s.tx(ctx, func(ctx context.Context) error {
		parent, err := s.parents.GetForUpdate(ctx, parentSlotID)
		if err != nil {
			return err
		}
		if parent.Status != SlotAvailable {
			return ErrSlotNotAvailable
		}
		if !parent.Contains(start, end) {
			return ErrOutsideParentWindow
		}

		existing, err := s.subs.ListByParent(ctx, parentSlotID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Status != SubSlotBooked {
				continue
			}
			if Overlaps(start, end, e.StartTime, e.EndTime) {
				return ErrSlotConflict
			}
		}

		now := time.Now().UTC()
		sub = &SubSlot{
			ParentSlotID: parentSlotID,
			HospitalID:   hospitalID,
			StartTime:    start,
			EndTime:      end,
			Status:       SubSlotBooked,
			BookedAt:     &now,
		}
		if err := s.subs.Create(ctx, sub); err != nil {
			return err
		}
		s.record(ctx, &audit.Entry{
			EntityType: "sub_slot", EntityID: sub.ID.String(), Action: "book",
			ActorType: "hospital", ActorID: hospitalID.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Dispatch(ctx, notify.Event{
		Type:      notify.EventSlotBooked,
		EntityID:  sub.ID.String(),
		ActorRole: "hospital",
		Details: map[string]string{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		},
	})
	return sub, nil
}

func (s *Service) GetSubSlot(ctx context.Context, id uuid.UUID) (*SubSlot, error) {
	return s.subs.GetByID(ctx, id)
}

// GetSubSlotForUpdate locks the booking row for the caller's transaction. The
// assignment domain reads bookings through this before linking to them, so a
// concurrent release serializes behind the link instead of slipping past it.
func (s *Service) GetSubSlotForUpdate(ctx context.Context, id uuid.UUID) (*SubSlot, error) {
	return s.subs.GetForUpdate(ctx, id)
}

func (s *Service) ListHospitalBookings(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*SubSlot, int, error) {
	return s.subs.ListByHospital(ctx, hospitalID, limit, offset)
}

// ReleaseSubSlot frees a booked window at a hospital's request. It refuses
// while a pending or accepted assignment still references the booking, and
// hospitals may only release their own bookings. hospitalID uuid.Nil skips
// the ownership check for admin callers. The booking row is locked before
// the assignment guard runs, so a concurrent assignment creation cannot link
// to the booking between the check and the release committing.
func (s *Service) ReleaseSubSlot(ctx context.Context, id, hospitalID uuid.UUID) error {
	return s.release(ctx, id, "hospital", func(ctx context.Context, sub *SubSlot) error {
		if hospitalID != uuid.Nil && sub.HospitalID != hospitalID {
			return ErrNotSlotOwner
		}
		if s.assignments == nil {
			return nil
		}
		active, err := s.assignments.HasActiveForSubSlot(ctx, sub.ID)
		if err != nil {
			return err
		}
		if active {
			return ErrSubSlotInUse
		}
		return nil
	})
}

// ReleaseForAssignment frees a booked window as part of an assignment
// terminating (decline, cancel, expiry). The caller has already settled the
// assignment, so no active-assignment guard applies.
func (s *Service) ReleaseForAssignment(ctx context.Context, id uuid.UUID) error {
	return s.release(ctx, id, "system", nil)
}

// release flips a booking to released. guard, when given, runs inside the
// transaction with the booking row already locked.
func (s *Service) release(ctx context.Context, id uuid.UUID, actor string, guard func(ctx context.Context, sub *SubSlot) error) error {
	err := s.tx(ctx, func(ctx context.Context) error {
		sub, err := s.subs.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sub.Status == SubSlotReleased {
			return ErrAlreadyReleased
		}
		if guard != nil {
			if err := guard(ctx, sub); err != nil {
				return err
			}
		}
		sub.Status = SubSlotReleased
		if err := s.subs.Update(ctx, sub); err != nil {
			return err
		}
		s.record(ctx, &audit.Entry{
			EntityType: "sub_slot", EntityID: id.String(), Action: "release",
			ActorType: actor,
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.events.Dispatch(ctx, notify.Event{
		Type:      notify.EventSlotReleased,
		EntityID:  id.String(),
		ActorRole: actor,
	})
	return nil
}
