package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Recurrence patterns supported by availability templates.
const (
	PatternDaily   = "daily"
	PatternWeekly  = "weekly"
	PatternMonthly = "monthly"
	PatternCustom  = "custom"
)

// Parent slot statuses.
const (
	SlotAvailable = "available"
	SlotBlocked   = "blocked"
	SlotCancelled = "cancelled"
)

// Sub-slot statuses.
const (
	SubSlotBooked   = "booked"
	SubSlotReleased = "released"
)

// dayNames indexes time.Weekday (Sunday = 0) to the persisted day token.
var dayNames = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// Template maps to the availability_templates table. StartTime and EndTime
// are times of day in "HH:MM" form; the template's recurrence decides which
// dates get a slot with that window.
type Template struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	DoctorID   uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Name       string     `db:"name" json:"name"`
	Pattern    string     `db:"pattern" json:"pattern"`
	Days       []string   `db:"days" json:"days,omitempty"`
	StartTime  string     `db:"start_time" json:"start_time"`
	EndTime    string     `db:"end_time" json:"end_time"`
	ValidFrom  time.Time  `db:"valid_from" json:"valid_from"`
	ValidUntil *time.Time `db:"valid_until" json:"valid_until,omitempty"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// AppliesOn reports whether the template produces a slot on the given date.
// The valid window is inclusive on both ends; monthly templates fire on the
// day-of-month of ValidFrom.
func (t *Template) AppliesOn(date time.Time) bool {
	d := DateOnly(date)
	if d.Before(DateOnly(t.ValidFrom)) {
		return false
	}
	if t.ValidUntil != nil && d.After(DateOnly(*t.ValidUntil)) {
		return false
	}

	switch t.Pattern {
	case PatternDaily:
		return true
	case PatternWeekly, PatternCustom:
		day := dayNames[d.Weekday()]
		for _, want := range t.Days {
			if want == day {
				return true
			}
		}
		return false
	case PatternMonthly:
		return d.Day() == t.ValidFrom.Day()
	}
	return false
}

// ParentSlot maps to the parent_slots table: a doctor's bookable availability
// window on a single date.
type ParentSlot struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	DoctorID   uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	SlotDate   time.Time  `db:"slot_date" json:"slot_date"`
	StartTime  time.Time  `db:"start_time" json:"start_time"`
	EndTime    time.Time  `db:"end_time" json:"end_time"`
	Status     string     `db:"status" json:"status"`
	IsManual   bool       `db:"is_manual" json:"is_manual"`
	TemplateID *uuid.UUID `db:"template_id" json:"template_id,omitempty"`
	Notes      *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Contains reports whether the [start, end) window fits inside the slot.
func (p *ParentSlot) Contains(start, end time.Time) bool {
	return !start.Before(p.StartTime) && !end.After(p.EndTime)
}

// SubSlot maps to the sub_slots table: a hospital's booking of a sub-range of
// a parent slot. Released sub-slots keep their row; only booked rows block
// new bookings.
type SubSlot struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ParentSlotID uuid.UUID  `db:"parent_slot_id" json:"parent_slot_id"`
	HospitalID   uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	StartTime    time.Time  `db:"start_time" json:"start_time"`
	EndTime      time.Time  `db:"end_time" json:"end_time"`
	Status       string     `db:"status" json:"status"`
	BookedAt     *time.Time `db:"booked_at" json:"booked_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Overlaps implements the half-open interval test: two windows conflict when
// each starts before the other ends. Touching endpoints do not conflict.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// AvailableRange is a free gap within a parent slot.
type AvailableRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AvailableRanges computes the free gaps of a parent slot given its sub-slots.
// Only booked sub-slots consume time; the input need not be sorted.
func AvailableRanges(parent *ParentSlot, subs []*SubSlot) []AvailableRange {
	booked := make([]*SubSlot, 0, len(subs))
	for _, s := range subs {
		if s.Status == SubSlotBooked {
			booked = append(booked, s)
		}
	}
	sortSubSlots(booked)

	var ranges []AvailableRange
	cursor := parent.StartTime
	for _, s := range booked {
		if s.StartTime.After(cursor) {
			ranges = append(ranges, AvailableRange{Start: cursor, End: s.StartTime})
		}
		if s.EndTime.After(cursor) {
			cursor = s.EndTime
		}
	}
	if cursor.Before(parent.EndTime) {
		ranges = append(ranges, AvailableRange{Start: cursor, End: parent.EndTime})
	}
	return ranges
}

func sortSubSlots(subs []*SubSlot) {
	for i := 1; i < len(subs); i++ {
		for j := i; j > 0 && subs[j].StartTime.Before(subs[j-1].StartTime); j-- {
			subs[j], subs[j-1] = subs[j-1], subs[j]
		}
	}
}

// GenerationSummary reports the outcome of one generation run.
type GenerationSummary struct {
	StartDate          time.Time        `json:"start_date"`
	EndDate            time.Time        `json:"end_date"`
	TemplatesProcessed int              `json:"templates_processed"`
	SlotsCreated       int              `json:"slots_created"`
	Templates          []TemplateResult `json:"templates"`
}

// TemplateResult reports per-template generation counts.
type TemplateResult struct {
	TemplateID      uuid.UUID `json:"template_id"`
	Name            string    `json:"name"`
	Created         int       `json:"created"`
	SkippedExisting int       `json:"skipped_existing"`
	ConsideredDates int       `json:"considered_dates"`
}

// DateOnly truncates a timestamp to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseClock parses an "HH:MM" time of day and returns minutes from midnight.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day out of range %q", s)
	}
	return h*60 + m, nil
}

// CombineDateClock resolves an "HH:MM" time of day on the given date in UTC.
func CombineDateClock(date time.Time, clock string) (time.Time, error) {
	mins, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return DateOnly(date).Add(time.Duration(mins) * time.Minute), nil
}

// validDay reports whether s is one of the persisted day tokens.
func validDay(s string) bool {
	for _, d := range dayNames {
		if d == s {
			return true
		}
	}
	return false
}
