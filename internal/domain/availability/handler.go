package availability

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
	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/doctors/:id/templates", h.CreateTemplate)
	doctor.GET("/doctors/:id/templates", h.ListTemplates)
	doctor.GET("/doctors/:id/templates/:templateId", h.GetTemplate)
	doctor.PUT("/doctors/:id/templates/:templateId", h.UpdateTemplate)
	doctor.DELETE("/doctors/:id/templates/:templateId", h.DeleteTemplate)
	doctor.POST("/doctors/:id/templates/generate", h.Generate)
	doctor.POST("/doctors/:id/slots", h.CreateManualSlot)
	doctor.DELETE("/slots/:id", h.DeleteParentSlot)

	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleHospital))
	read.GET("/doctors/:id/slots", h.ListDoctorSlots)
	read.GET("/parent-slots/:id", h.GetParentSlot)
	read.GET("/parent-slots/:id/ranges", h.Ranges)

	hospital := api.Group("", auth.RequireRole(auth.RoleHospital))
	hospital.POST("/parent-slots/:id/book", h.BookSubSlot)
	hospital.POST("/sub-slots/:id/release", h.ReleaseSubSlot)
	hospital.GET("/hospitals/:id/bookings", h.ListHospitalBookings)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSlotOverlap),
		errors.Is(err, ErrSlotConflict),
		errors.Is(err, ErrSlotInUse),
		errors.Is(err, ErrSubSlotInUse),
		errors.Is(err, ErrSlotNotAvailable),
		errors.Is(err, ErrAlreadyReleased):
		return http.StatusConflict
	case errors.Is(err, ErrNotSlotOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrOutsideParentWindow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func fail(err error) *echo.HTTPError {
	return echo.NewHTTPError(httpStatus(err), err.Error())
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// -- Templates --

func (h *Handler) CreateTemplate(c echo.Context) error {
	doctorID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var t Template
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t.DoctorID = doctorID
	if err := h.svc.CreateTemplate(c.Request().Context(), &t); err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTemplate(c echo.Context) error {
	id, err := pathID(c, "templateId")
	if err != nil {
		return err
	}
	t, err := h.svc.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	doctorID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListTemplates(c.Request().Context(), doctorID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateTemplate(c echo.Context) error {
	id, err := pathID(c, "templateId")
	if err != nil {
		return err
	}
	var t Template
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t.ID = id
	if err := h.svc.UpdateTemplate(c.Request().Context(), &t); err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTemplate(c echo.Context) error {
	id, err := pathID(c, "templateId")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTemplate(c.Request().Context(), id); err != nil {
		return fail(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Generation --

type generateRequest struct {
	StartDate  string     `json:"start_date"`
	EndDate    string     `json:"end_date"`
	TemplateID *uuid.UUID `json:"template_id,omitempty"`
}

func (h *Handler) Generate(c echo.Context) error {
	doctorID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	from, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
	}
	to, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
	}
	summary, err := h.svc.Generate(c.Request().Context(), doctorID, from, to, req.TemplateID)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// -- Parent slots --

type manualSlotRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Notes     *string   `json:"notes,omitempty"`
}

func (h *Handler) CreateManualSlot(c echo.Context) error {
	doctorID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req manualSlotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := &ParentSlot{
		DoctorID:  doctorID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Notes:     req.Notes,
	}
	if err := h.svc.CreateManualSlot(c.Request().Context(), p); err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetParentSlot(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetParentSlot(c.Request().Context(), id)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListDoctorSlots(c echo.Context) error {
	doctorID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	from := time.Now().UTC()
	to := from.AddDate(0, 1, 0)
	if v := c.QueryParam("from"); v != "" {
		from, err = time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from, expected YYYY-MM-DD")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		to, err = time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to, expected YYYY-MM-DD")
		}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctorSlots(c.Request().Context(), doctorID, from, to, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteParentSlot(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteParentSlot(c.Request().Context(), id); err != nil {
		return fail(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Ranges(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ranges, err := h.svc.Ranges(c.Request().Context(), id)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"parent_slot_id": id, "ranges": ranges})
}

// -- Bookings --

// callerHospital derives the booking hospital from the verified token. Admin
// callers may act on a hospital's behalf via the body field; for everyone
// else the token subject is authoritative.
func callerHospital(c echo.Context, bodyID uuid.UUID) (uuid.UUID, error) {
	ctx := c.Request().Context()
	subject, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "token subject is not a valid id")
	}
	if bodyID != uuid.Nil && bodyID != subject {
		if !auth.HasRole(ctx, auth.RoleAdmin) {
			return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "hospital_id does not match the authenticated hospital")
		}
		return bodyID, nil
	}
	return subject, nil
}

type bookRequest struct {
	// HospitalID is honored only for admin callers; hospitals are identified
	// by their token.
	HospitalID uuid.UUID `json:"hospital_id,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

func (h *Handler) BookSubSlot(c echo.Context) error {
	parentID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hospitalID, err := callerHospital(c, req.HospitalID)
	if err != nil {
		return err
	}
	sub, err := h.svc.BookSubSlot(c.Request().Context(), parentID, hospitalID, req.StartTime, req.EndTime)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusCreated, sub)
}

func (h *Handler) ReleaseSubSlot(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	// Admins release on any hospital's behalf; hospitals only their own.
	hospitalID := uuid.Nil
	if !auth.HasRole(ctx, auth.RoleAdmin) {
		hospitalID, err = uuid.Parse(auth.UserIDFromContext(ctx))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "token subject is not a valid id")
		}
	}
	if err := h.svc.ReleaseSubSlot(ctx, id, hospitalID); err != nil {
		return fail(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListHospitalBookings(c echo.Context) error {
	hospitalID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListHospitalBookings(c.Request().Context(), hospitalID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
