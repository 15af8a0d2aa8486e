package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestTemplateAppliesOnDaily(t *testing.T) {
	until := date(2026, 3, 10)
	tmpl := &Template{
		Pattern:    PatternDaily,
		ValidFrom:  date(2026, 3, 1),
		ValidUntil: &until,
	}
	if !tmpl.AppliesOn(date(2026, 3, 1)) {
		t.Error("expected daily template to apply on valid_from")
	}
	if !tmpl.AppliesOn(date(2026, 3, 10)) {
		t.Error("expected daily template to apply on valid_until (inclusive)")
	}
	if tmpl.AppliesOn(date(2026, 2, 28)) {
		t.Error("expected no slot before valid_from")
	}
	if tmpl.AppliesOn(date(2026, 3, 11)) {
		t.Error("expected no slot after valid_until")
	}
}

func TestTemplateAppliesOnWeekly(t *testing.T) {
	tmpl := &Template{
		Pattern:   PatternWeekly,
		Days:      []string{"mon", "wed"},
		ValidFrom: date(2026, 3, 1),
	}
	// 2026-03-02 is a Monday.
	if !tmpl.AppliesOn(date(2026, 3, 2)) {
		t.Error("expected weekly template to apply on Monday")
	}
	if !tmpl.AppliesOn(date(2026, 3, 4)) {
		t.Error("expected weekly template to apply on Wednesday")
	}
	if tmpl.AppliesOn(date(2026, 3, 3)) {
		t.Error("expected weekly template to skip Tuesday")
	}
}

func TestTemplateAppliesOnMonthly(t *testing.T) {
	tmpl := &Template{
		Pattern:   PatternMonthly,
		ValidFrom: date(2026, 1, 15),
	}
	if !tmpl.AppliesOn(date(2026, 2, 15)) {
		t.Error("expected monthly template to fire on day-of-month of valid_from")
	}
	if tmpl.AppliesOn(date(2026, 2, 16)) {
		t.Error("expected monthly template to skip other days")
	}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     time.Time
		want                           bool
	}{
		{
			name:   "partial overlap",
			aStart: at(2026, 3, 2, 9, 0), aEnd: at(2026, 3, 2, 11, 0),
			bStart: at(2026, 3, 2, 10, 0), bEnd: at(2026, 3, 2, 12, 0),
			want: true,
		},
		{
			name:   "containment",
			aStart: at(2026, 3, 2, 9, 0), aEnd: at(2026, 3, 2, 17, 0),
			bStart: at(2026, 3, 2, 10, 0), bEnd: at(2026, 3, 2, 11, 0),
			want: true,
		},
		{
			name:   "touching endpoints",
			aStart: at(2026, 3, 2, 9, 0), aEnd: at(2026, 3, 2, 10, 0),
			bStart: at(2026, 3, 2, 10, 0), bEnd: at(2026, 3, 2, 11, 0),
			want: false,
		},
		{
			name:   "disjoint",
			aStart: at(2026, 3, 2, 9, 0), aEnd: at(2026, 3, 2, 10, 0),
			bStart: at(2026, 3, 2, 14, 0), bEnd: at(2026, 3, 2, 15, 0),
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd)
			if got != tc.want {
				t.Errorf("Overlaps = %v, want %v", got, tc.want)
			}
			// Symmetric.
			if rev := Overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd); rev != tc.want {
				t.Errorf("Overlaps reversed = %v, want %v", rev, tc.want)
			}
		})
	}
}

func TestParentSlotContains(t *testing.T) {
	p := &ParentSlot{
		StartTime: at(2026, 3, 2, 9, 0),
		EndTime:   at(2026, 3, 2, 17, 0),
	}
	if !p.Contains(at(2026, 3, 2, 9, 0), at(2026, 3, 2, 17, 0)) {
		t.Error("expected full window to be contained")
	}
	if !p.Contains(at(2026, 3, 2, 10, 0), at(2026, 3, 2, 12, 0)) {
		t.Error("expected inner window to be contained")
	}
	if p.Contains(at(2026, 3, 2, 8, 59), at(2026, 3, 2, 12, 0)) {
		t.Error("expected window starting early to be rejected")
	}
	if p.Contains(at(2026, 3, 2, 16, 0), at(2026, 3, 2, 17, 1)) {
		t.Error("expected window ending late to be rejected")
	}
}

func TestAvailableRanges(t *testing.T) {
	p := &ParentSlot{
		ID:        uuid.New(),
		StartTime: at(2026, 3, 2, 9, 0),
		EndTime:   at(2026, 3, 2, 17, 0),
	}
	subs := []*SubSlot{
		{StartTime: at(2026, 3, 2, 13, 0), EndTime: at(2026, 3, 2, 15, 0), Status: SubSlotBooked},
		{StartTime: at(2026, 3, 2, 10, 0), EndTime: at(2026, 3, 2, 11, 0), Status: SubSlotBooked},
		{StartTime: at(2026, 3, 2, 11, 0), EndTime: at(2026, 3, 2, 12, 0), Status: SubSlotReleased},
	}
	got := AvailableRanges(p, subs)
	want := []AvailableRange{
		{Start: at(2026, 3, 2, 9, 0), End: at(2026, 3, 2, 10, 0)},
		{Start: at(2026, 3, 2, 11, 0), End: at(2026, 3, 2, 13, 0)},
		{Start: at(2026, 3, 2, 15, 0), End: at(2026, 3, 2, 17, 0)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d ranges, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Errorf("range %d = %v–%v, want %v–%v", i, got[i].Start, got[i].End, want[i].Start, want[i].End)
		}
	}
}

func TestAvailableRangesFullyBooked(t *testing.T) {
	p := &ParentSlot{
		StartTime: at(2026, 3, 2, 9, 0),
		EndTime:   at(2026, 3, 2, 12, 0),
	}
	subs := []*SubSlot{
		{StartTime: at(2026, 3, 2, 9, 0), EndTime: at(2026, 3, 2, 12, 0), Status: SubSlotBooked},
	}
	if got := AvailableRanges(p, subs); len(got) != 0 {
		t.Errorf("expected no free ranges, got %+v", got)
	}
}

func TestParseClock(t *testing.T) {
	mins, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if mins != 9*60+30 {
		t.Errorf("ParseClock = %d, want %d", mins, 9*60+30)
	}
	for _, bad := range []string{"", "9", "25:00", "12:60", "ab:cd"} {
		if _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q): expected error", bad)
		}
	}
}

func TestCombineDateClock(t *testing.T) {
	got, err := CombineDateClock(at(2026, 3, 2, 23, 45), "09:30")
	if err != nil {
		t.Fatalf("CombineDateClock: %v", err)
	}
	if !got.Equal(at(2026, 3, 2, 9, 30)) {
		t.Errorf("CombineDateClock = %v, want %v", got, at(2026, 3, 2, 9, 30))
	}
}
