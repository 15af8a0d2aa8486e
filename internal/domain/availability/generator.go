package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oncallmed/oncallmed/internal/domain/audit"
	"github.com/oncallmed/oncallmed/internal/platform/db"
)

// Generate materializes parent slots from a doctor's templates over the
// inclusive date range [from, to]. Passing a template id restricts generation
// to that template. Dates the doctor is on leave produce nothing, and dates
// already holding an overlapping slot are counted as skipped rather than
// failing the run, so repeating a range is safe.
func (s *Service) Generate(ctx context.Context, doctorID uuid.UUID, from, to time.Time, templateID *uuid.UUID) (*GenerationSummary, error) {
	if doctorID == uuid.Nil {
		return nil, fmt.Errorf("doctor_id is required")
	}
	start := DateOnly(from)
	end := DateOnly(to)
	if end.Before(start) {
		return nil, ErrInvalidTimeRange
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if days > s.maxGenerateDays {
		return nil, ErrRangeTooLarge
	}

	var templates []*Template
	if templateID != nil {
		t, err := s.templates.GetByID(ctx, *templateID)
		if err != nil {
			return nil, err
		}
		if t.DoctorID != doctorID {
			return nil, ErrNotFound
		}
		templates = []*Template{t}
	} else {
		var err error
		templates, err = s.templates.ListActiveByDoctor(ctx, doctorID)
		if err != nil {
			return nil, err
		}
	}

	summary := &GenerationSummary{
		StartDate:          start,
		EndDate:            end,
		TemplatesProcessed: len(templates),
	}
	for _, t := range templates {
		res, err := s.generateFromTemplate(ctx, t, start, end)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", t.ID, err)
		}
		summary.SlotsCreated += res.Created
		summary.Templates = append(summary.Templates, res)
	}

	s.record(ctx, &audit.Entry{
		EntityType: "parent_slot",
		EntityID:   doctorID.String(),
		Action:     "generate",
		ActorType:  "doctor",
		ActorID:    doctorID.String(),
		Details: map[string]string{
			"from":    start.Format("2006-01-02"),
			"to":      end.Format("2006-01-02"),
			"created": fmt.Sprintf("%d", summary.SlotsCreated),
		},
	})
	return summary, nil
}

func (s *Service) generateFromTemplate(ctx context.Context, t *Template, start, end time.Time) (TemplateResult, error) {
	res := TemplateResult{TemplateID: t.ID, Name: t.Name}

	clockStart, err := ParseClock(t.StartTime)
	if err != nil {
		return res, err
	}
	clockEnd, err := ParseClock(t.EndTime)
	if err != nil {
		return res, err
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !t.AppliesOn(d) {
			continue
		}
		res.ConsideredDates++

		if s.leaves != nil {
			onLeave, err := s.leaves.IsOnLeave(ctx, t.DoctorID, d)
			if err != nil {
				return res, err
			}
			if onLeave {
				continue
			}
		}

		slotStart := DateOnly(d).Add(time.Duration(clockStart) * time.Minute)
		slotEnd := DateOnly(d).Add(time.Duration(clockEnd) * time.Minute)

		created, err := s.createGenerated(ctx, t, d, slotStart, slotEnd)
		if err != nil {
			return res, err
		}
		if created {
			res.Created++
		} else {
			res.SkippedExisting++
		}
	}
	return res, nil
}

// createGenerated inserts one generated slot unless an overlapping one already
// exists for the date. The overlap check races with concurrent generation, so
// the unique constraint on (doctor_id, slot_date, start_time, end_time) backs
// it up; a violation is treated the same as finding the slot up front.
func (s *Service) createGenerated(ctx context.Context, t *Template, date, slotStart, slotEnd time.Time) (bool, error) {
	existing, err := s.parents.ListByDoctorDate(ctx, t.DoctorID, date)
	if err != nil {
		return false, err
	}
	for _, e := range existing {
		if Overlaps(slotStart, slotEnd, e.StartTime, e.EndTime) {
			return false, nil
		}
	}

	templateID := t.ID
	p := &ParentSlot{
		DoctorID:   t.DoctorID,
		SlotDate:   date,
		StartTime:  slotStart,
		EndTime:    slotEnd,
		Status:     SlotAvailable,
		IsManual:   false,
		TemplateID: &templateID,
	}
	if err := s.parents.Create(ctx, p); err != nil {
		if db.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
