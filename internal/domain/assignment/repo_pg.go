package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oncallmed/oncallmed/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// -- Assignments --

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepositoryPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const assignmentCols = `id, hospital_id, doctor_id, patient_id, sub_slot_id, priority, status,
	requested_at, expires_at, actual_start, actual_end, consultation_fee, treatment_notes,
	cancel_reason, cancelled_by, cancelled_at, completed_at, paid_at, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, a *Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO assignments (`+assignmentCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		a.ID, a.HospitalID, a.DoctorID, a.PatientID, a.SubSlotID, a.Priority, a.Status,
		a.RequestedAt, a.ExpiresAt, a.ActualStart, a.ActualEnd, a.ConsultationFee, a.TreatmentNotes,
		a.CancelReason, a.CancelledBy, a.CancelledAt, a.CompletedAt, a.PaidAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id = $1`, id)
	return scanAssignment(row)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	row := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+assignmentCols+` FROM assignments WHERE id = $1 FOR UPDATE`, id)
	return scanAssignment(row)
}

func (r *repoPG) Update(ctx context.Context, a *Assignment) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE assignments SET
			status = $2, expires_at = $3, actual_start = $4, actual_end = $5,
			consultation_fee = $6, treatment_notes = $7, cancel_reason = $8,
			cancelled_by = $9, cancelled_at = $10, completed_at = $11, paid_at = $12,
			updated_at = $13
		WHERE id = $1`,
		a.ID, a.Status, a.ExpiresAt, a.ActualStart, a.ActualEnd,
		a.ConsultationFee, a.TreatmentNotes, a.CancelReason,
		a.CancelledBy, a.CancelledAt, a.CompletedAt, a.PaidAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Assignment, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	idx := 1
	if f.HospitalID != uuid.Nil {
		where += fmt.Sprintf(" AND hospital_id = $%d", idx)
		args = append(args, f.HospitalID)
		idx++
	}
	if f.DoctorID != uuid.Nil {
		where += fmt.Sprintf(" AND doctor_id = $%d", idx)
		args = append(args, f.DoctorID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM assignments`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	query := `SELECT ` + assignmentCols + ` FROM assignments` + where +
		fmt.Sprintf(" ORDER BY requested_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, 0, err
		}
		assignments = append(assignments, a)
	}
	return assignments, total, rows.Err()
}

func (r *repoPG) ListDuePending(ctx context.Context, now time.Time, limit int) ([]*Assignment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+assignmentCols+` FROM assignments
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY expires_at
		LIMIT $3`,
		StatusPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (r *repoPG) CountActiveInMonth(ctx context.Context, doctorID uuid.UUID, monthStart, monthEnd time.Time) (int, error) {
	var count int
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM assignments
		WHERE doctor_id = $1
		  AND status IN ($2, $3, $4)
		  AND requested_at >= $5 AND requested_at < $6`,
		doctorID, StatusPending, StatusAccepted, StatusCompleted, monthStart, monthEnd,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count monthly assignments: %w", err)
	}
	return count, nil
}

func (r *repoPG) HasActiveForSubSlot(ctx context.Context, subSlotID uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM assignments
			WHERE sub_slot_id = $1 AND status IN ($2, $3)
		)`,
		subSlotID, StatusPending, StatusAccepted,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active assignment: %w", err)
	}
	return exists, nil
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(
		&a.ID, &a.HospitalID, &a.DoctorID, &a.PatientID, &a.SubSlotID, &a.Priority, &a.Status,
		&a.RequestedAt, &a.ExpiresAt, &a.ActualStart, &a.ActualEnd, &a.ConsultationFee, &a.TreatmentNotes,
		&a.CancelReason, &a.CancelledBy, &a.CancelledAt, &a.CompletedAt, &a.PaidAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan assignment: %w", err)
	}
	return &a, nil
}

// -- Cancellation flags --

type flagRepoPG struct {
	pool *pgxpool.Pool
}

func NewFlagRepositoryPG(pool *pgxpool.Pool) FlagRepository {
	return &flagRepoPG{pool: pool}
}

const flagCols = `id, hospital_id, assignment_id, severity, policy_window, recorded_at`

func (r *flagRepoPG) Create(ctx context.Context, f *CancellationFlag) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.RecordedAt.IsZero() {
		f.RecordedAt = time.Now().UTC()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO cancellation_flags (`+flagCols+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.HospitalID, f.AssignmentID, f.Severity, f.PolicyWindow, f.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cancellation flag: %w", err)
	}
	return nil
}

func (r *flagRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*CancellationFlag, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM cancellation_flags WHERE hospital_id = $1`, hospitalID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cancellation flags: %w", err)
	}

	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+flagCols+` FROM cancellation_flags
		WHERE hospital_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2 OFFSET $3`,
		hospitalID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list cancellation flags: %w", err)
	}
	defer rows.Close()

	var flags []*CancellationFlag
	for rows.Next() {
		var f CancellationFlag
		if err := rows.Scan(&f.ID, &f.HospitalID, &f.AssignmentID, &f.Severity, &f.PolicyWindow, &f.RecordedAt); err != nil {
			return nil, 0, fmt.Errorf("scan cancellation flag: %w", err)
		}
		flags = append(flags, &f)
	}
	return flags, total, rows.Err()
}

// -- Plan limits --

// DefaultMonthlyLimit matches the free tier.
const DefaultMonthlyLimit = 5

type planLimiterPG struct {
	pool *pgxpool.Pool
}

func NewPlanLimiterPG(pool *pgxpool.Pool) PlanLimiter {
	return &planLimiterPG{pool: pool}
}

// MaxAssignmentsPerMonth reads the doctor's plan row, falling back to the
// free-tier default when none exists. -1 means unlimited.
func (r *planLimiterPG) MaxAssignmentsPerMonth(ctx context.Context, doctorID uuid.UUID) (int, error) {
	var limit int
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT limit_count FROM doctor_plan_limits WHERE doctor_id = $1`, doctorID,
	).Scan(&limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultMonthlyLimit, nil
		}
		return 0, fmt.Errorf("read plan limit: %w", err)
	}
	return limit, nil
}
