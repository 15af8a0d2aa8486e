package leave

import (
	"time"

	"github.com/google/uuid"
)

// Leave types accepted by the API.
const (
	TypeSick      = "sick"
	TypeVacation  = "vacation"
	TypePersonal  = "personal"
	TypeEmergency = "emergency"
	TypeOther     = "other"
)

var validTypes = map[string]bool{
	TypeSick: true, TypeVacation: true, TypePersonal: true,
	TypeEmergency: true, TypeOther: true,
}

// Leave maps to the doctor_leaves table. The date range is inclusive on both
// ends: a one-day leave has StartDate == EndDate.
type Leave struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	LeaveType string    `db:"leave_type" json:"leave_type"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	Reason    *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Covers reports whether the leave includes the given date.
func (l *Leave) Covers(date time.Time) bool {
	d := dateOnly(date)
	return !d.Before(dateOnly(l.StartDate)) && !d.After(dateOnly(l.EndDate))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
