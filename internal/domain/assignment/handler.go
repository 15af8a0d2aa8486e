package assignment

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oncallmed/oncallmed/internal/platform/auth"
	"github.com/oncallmed/oncallmed/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	hospital := api.Group("", auth.RequireRole(auth.RoleHospital))
	hospital.POST("/assignments", h.Create)

	shared := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleHospital))
	shared.GET("/assignments", h.List)
	shared.GET("/assignments/:id", h.Get)
	shared.PATCH("/assignments/:id/status", h.UpdateStatus)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/hospitals/:id/cancellation-flags", h.ListFlags)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrWrongActor):
		return http.StatusForbidden
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrNotCancellable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrPlanLimitExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrSubSlotNotBooked),
		errors.Is(err, ErrSubSlotLinked):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func fail(err error) *echo.HTTPError {
	return echo.NewHTTPError(httpStatus(err), err.Error())
}

// subjectID is the verified token subject. Actor identity always comes from
// the token, never from the request body.
func subjectID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "token subject is not a valid id")
	}
	return id, nil
}

type createRequest struct {
	// HospitalID is honored only for admin callers acting on a hospital's
	// behalf; hospital callers are identified by their token.
	HospitalID      uuid.UUID  `json:"hospital_id,omitempty"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	SubSlotID       *uuid.UUID `json:"sub_slot_id,omitempty"`
	Priority        string     `json:"priority"`
	ConsultationFee *float64   `json:"consultation_fee,omitempty"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hospitalID, err := subjectID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if req.HospitalID != uuid.Nil && req.HospitalID != hospitalID {
		roles := auth.RolesFromContext(ctx)
		if !containsRole(roles, auth.RoleAdmin) {
			return echo.NewHTTPError(http.StatusForbidden, "hospital_id does not match the authenticated hospital")
		}
		hospitalID = req.HospitalID
	}
	a := &Assignment{
		HospitalID:      hospitalID,
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		SubSlotID:       req.SubSlotID,
		Priority:        req.Priority,
		ConsultationFee: req.ConsultationFee,
	}
	if err := h.svc.Create(ctx, a); err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	var f Filter
	if v := c.QueryParam("hospital_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital_id")
		}
		f.HospitalID = id
	}
	if v := c.QueryParam("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		f.DoctorID = id
	}
	f.Status = c.QueryParam("status")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type statusRequest struct {
	Action         string     `json:"action"`
	Reason         string     `json:"reason,omitempty"`
	TreatmentNotes *string    `json:"treatment_notes,omitempty"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`
}

// actorRole maps token roles to the acting party. Admin tokens act as the
// system; nothing external can claim the system role directly.
func actorRole(roles []string) (string, bool) {
	switch {
	case containsRole(roles, auth.RoleDoctor):
		return ActorDoctor, true
	case containsRole(roles, auth.RoleHospital):
		return ActorHospital, true
	case containsRole(roles, auth.RoleAdmin):
		return ActorSystem, true
	default:
		return "", false
	}
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, err := subjectID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	role, ok := actorRole(auth.RolesFromContext(ctx))
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "no acting role")
	}

	var a *Assignment
	switch req.Action {
	case "accept":
		a, err = h.svc.Accept(ctx, id, actor)
	case "decline":
		a, err = h.svc.Decline(ctx, id, actor, req.Reason)
	case "complete":
		a, err = h.svc.Complete(ctx, id, actor, CompleteParams{
			TreatmentNotes: req.TreatmentNotes,
			ActualStart:    req.ActualStart,
			ActualEnd:      req.ActualEnd,
		})
	case "cancel":
		a, err = h.svc.Cancel(ctx, id, role, actor, req.Reason)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action: "+req.Action)
	}
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListFlags(c echo.Context) error {
	hospitalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListFlags(c.Request().Context(), hospitalID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
