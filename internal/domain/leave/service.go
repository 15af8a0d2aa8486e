package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oncallmed/oncallmed/internal/domain/audit"
)

type Service struct {
	repo    Repository
	auditor audit.Recorder
	logger  zerolog.Logger
}

func NewService(repo Repository, auditor audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{repo: repo, auditor: auditor, logger: logger}
}

func (s *Service) Create(ctx context.Context, l *Leave) error {
	if l.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if !validTypes[l.LeaveType] {
		return fmt.Errorf("invalid leave_type: %s", l.LeaveType)
	}
	if l.StartDate.IsZero() || l.EndDate.IsZero() {
		return fmt.Errorf("start_date and end_date are required")
	}
	l.StartDate = dateOnly(l.StartDate)
	l.EndDate = dateOnly(l.EndDate)
	if l.EndDate.Before(l.StartDate) {
		return ErrInvalidRange
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return err
	}
	s.record(ctx, l, "create")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Leave, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, l, "delete")
	return nil
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Leave, int, error) {
	return s.repo.ListByDoctor(ctx, doctorID, limit, offset)
}

// IsOnLeave satisfies the availability domain's LeaveChecker.
func (s *Service) IsOnLeave(ctx context.Context, doctorID uuid.UUID, date time.Time) (bool, error) {
	return s.repo.AnyCovering(ctx, doctorID, date)
}

func (s *Service) record(ctx context.Context, l *Leave, action string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, &audit.Entry{
		EntityType: "leave", EntityID: l.ID.String(), Action: action,
		ActorType: "doctor", ActorID: l.DoctorID.String(),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("audit record failed")
	}
}
