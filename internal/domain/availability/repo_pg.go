package availability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oncallmed/oncallmed/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Template Repository ===========

type templateRepoPG struct{ pool *pgxpool.Pool }

func NewTemplateRepoPG(pool *pgxpool.Pool) TemplateRepository { return &templateRepoPG{pool: pool} }

func (r *templateRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const templateCols = `id, doctor_id, name, pattern, days, start_time, end_time,
	valid_from, valid_until, active, created_at, updated_at`

func (r *templateRepoPG) scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	var days *string
	err := row.Scan(&t.ID, &t.DoctorID, &t.Name, &t.Pattern, &days, &t.StartTime, &t.EndTime,
		&t.ValidFrom, &t.ValidUntil, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if days != nil && *days != "" {
		t.Days = strings.Split(*days, ",")
	}
	return &t, nil
}

func joinDays(days []string) *string {
	if len(days) == 0 {
		return nil
	}
	s := strings.Join(days, ",")
	return &s
}

func (r *templateRepoPG) Create(ctx context.Context, t *Template) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_templates (id, doctor_id, name, pattern, days,
			start_time, end_time, valid_from, valid_until, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.DoctorID, t.Name, t.Pattern, joinDays(t.Days),
		t.StartTime, t.EndTime, t.ValidFrom, t.ValidUntil, t.Active)
	return err
}

func (r *templateRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	return r.scanTemplate(r.conn(ctx).QueryRow(ctx,
		`SELECT `+templateCols+` FROM availability_templates WHERE id = $1`, id))
}

func (r *templateRepoPG) Update(ctx context.Context, t *Template) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_templates SET name=$2, pattern=$3, days=$4, start_time=$5,
			end_time=$6, valid_from=$7, valid_until=$8, active=$9, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.Name, t.Pattern, joinDays(t.Days), t.StartTime,
		t.EndTime, t.ValidFrom, t.ValidUntil, t.Active)
	return err
}

func (r *templateRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_templates WHERE id = $1`, id)
	return err
}

func (r *templateRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Template, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM availability_templates WHERE doctor_id = $1`, doctorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+templateCols+` FROM availability_templates
		 WHERE doctor_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		doctorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Template
	for rows.Next() {
		t, err := r.scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, nil
}

func (r *templateRepoPG) ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Template, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+templateCols+` FROM availability_templates
		 WHERE doctor_id = $1 AND active ORDER BY created_at ASC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Template
	for rows.Next() {
		t, err := r.scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, nil
}

// =========== Parent Slot Repository ===========

type parentSlotRepoPG struct{ pool *pgxpool.Pool }

func NewParentSlotRepoPG(pool *pgxpool.Pool) ParentSlotRepository {
	return &parentSlotRepoPG{pool: pool}
}

func (r *parentSlotRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const parentSlotCols = `id, doctor_id, slot_date, start_time, end_time, status,
	is_manual, template_id, notes, created_at, updated_at`

func (r *parentSlotRepoPG) scanParentSlot(row pgx.Row) (*ParentSlot, error) {
	var p ParentSlot
	err := row.Scan(&p.ID, &p.DoctorID, &p.SlotDate, &p.StartTime, &p.EndTime, &p.Status,
		&p.IsManual, &p.TemplateID, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *parentSlotRepoPG) Create(ctx context.Context, p *ParentSlot) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO parent_slots (id, doctor_id, slot_date, start_time, end_time,
			status, is_manual, template_id, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.DoctorID, p.SlotDate, p.StartTime, p.EndTime,
		p.Status, p.IsManual, p.TemplateID, p.Notes)
	return err
}

func (r *parentSlotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ParentSlot, error) {
	return r.scanParentSlot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+parentSlotCols+` FROM parent_slots WHERE id = $1`, id))
}

func (r *parentSlotRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*ParentSlot, error) {
	return r.scanParentSlot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+parentSlotCols+` FROM parent_slots WHERE id = $1 FOR UPDATE`, id))
}

func (r *parentSlotRepoPG) Update(ctx context.Context, p *ParentSlot) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE parent_slots SET status=$2, notes=$3, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Status, p.Notes)
	return err
}

func (r *parentSlotRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM parent_slots WHERE id = $1`, id)
	return err
}

func (r *parentSlotRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time, limit, offset int) ([]*ParentSlot, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM parent_slots WHERE doctor_id = $1 AND slot_date BETWEEN $2 AND $3`,
		doctorID, from, to).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+parentSlotCols+` FROM parent_slots
		 WHERE doctor_id = $1 AND slot_date BETWEEN $2 AND $3
		 ORDER BY start_time ASC LIMIT $4 OFFSET $5`,
		doctorID, from, to, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ParentSlot
	for rows.Next() {
		p, err := r.scanParentSlot(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *parentSlotRepoPG) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*ParentSlot, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+parentSlotCols+` FROM parent_slots
		 WHERE doctor_id = $1 AND slot_date = $2 ORDER BY start_time ASC`,
		doctorID, DateOnly(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ParentSlot
	for rows.Next() {
		p, err := r.scanParentSlot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, nil
}

// =========== Sub-Slot Repository ===========

type subSlotRepoPG struct{ pool *pgxpool.Pool }

func NewSubSlotRepoPG(pool *pgxpool.Pool) SubSlotRepository { return &subSlotRepoPG{pool: pool} }

func (r *subSlotRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const subSlotCols = `id, parent_slot_id, hospital_id, start_time, end_time, status,
	booked_at, created_at, updated_at`

func (r *subSlotRepoPG) scanSubSlot(row pgx.Row) (*SubSlot, error) {
	var s SubSlot
	err := row.Scan(&s.ID, &s.ParentSlotID, &s.HospitalID, &s.StartTime, &s.EndTime, &s.Status,
		&s.BookedAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subSlotRepoPG) Create(ctx context.Context, s *SubSlot) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO sub_slots (id, parent_slot_id, hospital_id, start_time, end_time, status, booked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.ParentSlotID, s.HospitalID, s.StartTime, s.EndTime, s.Status, s.BookedAt)
	return err
}

func (r *subSlotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*SubSlot, error) {
	return r.scanSubSlot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+subSlotCols+` FROM sub_slots WHERE id = $1`, id))
}

func (r *subSlotRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*SubSlot, error) {
	return r.scanSubSlot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+subSlotCols+` FROM sub_slots WHERE id = $1 FOR UPDATE`, id))
}

func (r *subSlotRepoPG) Update(ctx context.Context, s *SubSlot) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE sub_slots SET status=$2, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Status)
	return err
}

func (r *subSlotRepoPG) ListByParent(ctx context.Context, parentSlotID uuid.UUID) ([]*SubSlot, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+subSlotCols+` FROM sub_slots WHERE parent_slot_id = $1 ORDER BY start_time ASC`,
		parentSlotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*SubSlot
	for rows.Next() {
		s, err := r.scanSubSlot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, nil
}

func (r *subSlotRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*SubSlot, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM sub_slots WHERE hospital_id = $1`, hospitalID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+subSlotCols+` FROM sub_slots
		 WHERE hospital_id = $1 ORDER BY start_time DESC LIMIT $2 OFFSET $3`,
		hospitalID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*SubSlot
	for rows.Next() {
		s, err := r.scanSubSlot(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, nil
}

func (r *subSlotRepoPG) CountBookedByParent(ctx context.Context, parentSlotID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM sub_slots WHERE parent_slot_id = $1 AND status = $2`,
		parentSlotID, SubSlotBooked).Scan(&n)
	return n, err
}
