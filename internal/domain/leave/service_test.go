package leave

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockLeaveRepo struct {
	leaves map[uuid.UUID]*Leave
}

func newMockLeaveRepo() *mockLeaveRepo {
	return &mockLeaveRepo{leaves: make(map[uuid.UUID]*Leave)}
}

func (m *mockLeaveRepo) Create(_ context.Context, l *Leave) error {
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	m.leaves[l.ID] = l
	return nil
}

func (m *mockLeaveRepo) GetByID(_ context.Context, id uuid.UUID) (*Leave, error) {
	l, ok := m.leaves[id]
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

func (m *mockLeaveRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.leaves[id]; !ok {
		return ErrNotFound
	}
	delete(m.leaves, id)
	return nil
}

func (m *mockLeaveRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*Leave, int, error) {
	var result []*Leave
	for _, l := range m.leaves {
		if l.DoctorID == doctorID {
			result = append(result, l)
		}
	}
	return result, len(result), nil
}

func (m *mockLeaveRepo) AnyCovering(_ context.Context, doctorID uuid.UUID, date time.Time) (bool, error) {
	for _, l := range m.leaves {
		if l.DoctorID == doctorID && l.Covers(date) {
			return true, nil
		}
	}
	return false, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateLeaveValidation(t *testing.T) {
	svc := NewService(newMockLeaveRepo(), nil, zerolog.Nop())
	ctx := context.Background()
	doctorID := uuid.New()

	valid := &Leave{
		DoctorID:  doctorID,
		LeaveType: TypeVacation,
		StartDate: day(2026, 4, 1),
		EndDate:   day(2026, 4, 5),
	}
	if err := svc.Create(ctx, valid); err != nil {
		t.Fatalf("valid leave rejected: %v", err)
	}

	bad := &Leave{
		DoctorID:  doctorID,
		LeaveType: "sabbatical",
		StartDate: day(2026, 4, 1),
		EndDate:   day(2026, 4, 5),
	}
	if err := svc.Create(ctx, bad); err == nil {
		t.Error("expected invalid leave_type to be rejected")
	}

	reversed := &Leave{
		DoctorID:  doctorID,
		LeaveType: TypeSick,
		StartDate: day(2026, 4, 5),
		EndDate:   day(2026, 4, 1),
	}
	if err := svc.Create(ctx, reversed); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("reversed range: got %v, want ErrInvalidRange", err)
	}
}

func TestLeaveCoversInclusiveRange(t *testing.T) {
	l := &Leave{StartDate: day(2026, 4, 1), EndDate: day(2026, 4, 5)}
	if !l.Covers(day(2026, 4, 1)) {
		t.Error("expected start date to be covered")
	}
	if !l.Covers(day(2026, 4, 5)) {
		t.Error("expected end date to be covered")
	}
	if l.Covers(day(2026, 4, 6)) {
		t.Error("expected day after end to be uncovered")
	}
	// Timestamps within a covered day count.
	if !l.Covers(time.Date(2026, 4, 3, 15, 30, 0, 0, time.UTC)) {
		t.Error("expected mid-day timestamp to be covered")
	}
}

func TestIsOnLeave(t *testing.T) {
	repo := newMockLeaveRepo()
	svc := NewService(repo, nil, zerolog.Nop())
	ctx := context.Background()
	doctorID := uuid.New()

	err := svc.Create(ctx, &Leave{
		DoctorID:  doctorID,
		LeaveType: TypeSick,
		StartDate: day(2026, 4, 2),
		EndDate:   day(2026, 4, 2),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	on, err := svc.IsOnLeave(ctx, doctorID, day(2026, 4, 2))
	if err != nil {
		t.Fatalf("IsOnLeave: %v", err)
	}
	if !on {
		t.Error("expected doctor to be on leave")
	}
	on, err = svc.IsOnLeave(ctx, doctorID, day(2026, 4, 3))
	if err != nil {
		t.Fatalf("IsOnLeave: %v", err)
	}
	if on {
		t.Error("expected doctor to be off leave the next day")
	}
	on, err = svc.IsOnLeave(ctx, uuid.New(), day(2026, 4, 2))
	if err != nil {
		t.Fatalf("IsOnLeave: %v", err)
	}
	if on {
		t.Error("expected other doctor to be off leave")
	}
}
