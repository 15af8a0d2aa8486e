package leave

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

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepositoryPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const leaveCols = `id, doctor_id, leave_type, start_date, end_date, reason, created_at`

func (r *repoPG) Create(ctx context.Context, l *Leave) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_leaves (`+leaveCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.DoctorID, l.LeaveType, l.StartDate, l.EndDate, l.Reason, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert leave: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Leave, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+leaveCols+` FROM doctor_leaves WHERE id = $1`, id)
	return scanLeave(row)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_leaves WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete leave: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Leave, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctor_leaves WHERE doctor_id = $1`, doctorID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leaves: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+leaveCols+` FROM doctor_leaves
		WHERE doctor_id = $1
		ORDER BY start_date DESC
		LIMIT $2 OFFSET $3`,
		doctorID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list leaves: %w", err)
	}
	defer rows.Close()

	var leaves []*Leave
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, 0, err
		}
		leaves = append(leaves, l)
	}
	return leaves, total, rows.Err()
}

func (r *repoPG) AnyCovering(ctx context.Context, doctorID uuid.UUID, date time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM doctor_leaves
			WHERE doctor_id = $1 AND start_date <= $2 AND end_date >= $2
		)`,
		doctorID, dateOnly(date),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check leave coverage: %w", err)
	}
	return exists, nil
}

func scanLeave(row pgx.Row) (*Leave, error) {
	var l Leave
	err := row.Scan(&l.ID, &l.DoctorID, &l.LeaveType, &l.StartDate, &l.EndDate, &l.Reason, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan leave: %w", err)
	}
	return &l, nil
}
