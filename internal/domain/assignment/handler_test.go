package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oncallmed/oncallmed/internal/platform/auth"
)

func newHandlerEnv() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	return NewHandler(env.svc), env, echo.New()
}

// authedContext builds an echo context whose request carries the given token
// subject and roles, the same shape the JWT middleware produces.
func authedContext(e *echo.Echo, method, target, body string, userID uuid.UUID, roles ...string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, userID.String())
	ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandlerCreateUsesTokenHospital(t *testing.T) {
	h, env, e := newHandlerEnv()
	hospital := uuid.New()
	body := `{"doctor_id":"` + uuid.New().String() + `","patient_id":"` + uuid.New().String() + `","priority":"low"}`
	c, rec := authedContext(e, http.MethodPost, "/assignments", body, hospital, auth.RoleHospital)

	if err := h.Create(c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got Assignment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.HospitalID != hospital {
		t.Errorf("hospital_id = %s, want token subject %s", got.HospitalID, hospital)
	}
	if len(env.repo.assignments) != 1 {
		t.Errorf("expected 1 persisted assignment, got %d", len(env.repo.assignments))
	}
}

func TestHandlerCreateRejectsSpoofedHospital(t *testing.T) {
	h, env, e := newHandlerEnv()
	body := `{"hospital_id":"` + uuid.New().String() + `","doctor_id":"` + uuid.New().String() + `","patient_id":"` + uuid.New().String() + `","priority":"low"}`
	c, _ := authedContext(e, http.MethodPost, "/assignments", body, uuid.New(), auth.RoleHospital)

	err := h.Create(c)
	if err == nil {
		t.Fatal("expected error for hospital_id not matching the token")
	}
	if code := httpCode(t, err); code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", code)
	}
	if len(env.repo.assignments) != 0 {
		t.Error("expected nothing persisted")
	}
}

func TestHandlerCreateAdminOverridesHospital(t *testing.T) {
	h, _, e := newHandlerEnv()
	hospital := uuid.New()
	body := `{"hospital_id":"` + hospital.String() + `","doctor_id":"` + uuid.New().String() + `","patient_id":"` + uuid.New().String() + `","priority":"low"}`
	c, rec := authedContext(e, http.MethodPost, "/assignments", body, uuid.New(), auth.RoleAdmin)

	if err := h.Create(c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	var got Assignment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.HospitalID != hospital {
		t.Errorf("hospital_id = %s, want override %s", got.HospitalID, hospital)
	}
}

func TestHandlerUpdateStatusActorFromToken(t *testing.T) {
	h, env, e := newHandlerEnv()
	a := env.seedAssignment(t, PriorityLow, nil)

	// A doctor token that is not the assigned doctor cannot accept, no
	// matter what the body says.
	c, _ := authedContext(e, http.MethodPatch, "/assignments/"+a.ID.String()+"/status",
		`{"action":"accept","actor_id":"`+a.DoctorID.String()+`"}`,
		uuid.New(), auth.RoleDoctor)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	err := h.UpdateStatus(c)
	if err == nil {
		t.Fatal("expected error for foreign doctor token")
	}
	if code := httpCode(t, err); code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", code)
	}

	// The assigned doctor's own token works.
	c, rec := authedContext(e, http.MethodPatch, "/assignments/"+a.ID.String()+"/status",
		`{"action":"accept"}`, a.DoctorID, auth.RoleDoctor)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.UpdateStatus(c); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var got Assignment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != StatusAccepted {
		t.Errorf("status = %s, want %s", got.Status, StatusAccepted)
	}
}

func TestHandlerCancelRoleFromToken(t *testing.T) {
	h, env, e := newHandlerEnv()
	a := env.seedAssignment(t, PriorityLow, nil)

	// A doctor token claiming actor_role system in the body still cancels
	// under the doctor's own identity.
	c, rec := authedContext(e, http.MethodPatch, "/assignments/"+a.ID.String()+"/status",
		`{"action":"cancel","actor_role":"system","reason":"schedule conflict"}`,
		a.DoctorID, auth.RoleDoctor)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.UpdateStatus(c); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	var got Assignment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.CancelledBy == nil || *got.CancelledBy != ActorDoctor {
		t.Errorf("cancelled_by = %v, want %s", got.CancelledBy, ActorDoctor)
	}
}
