package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/oncallmed/oncallmed/internal/platform/auth"
	"github.com/oncallmed/oncallmed/pkg/pagination"
)

// Handler exposes the audit trail to admins. It reads straight from the
// repository; there is no write surface, entries only arrive through
// Recorder.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/audit-events", h.List)
}

func (h *Handler) List(c echo.Context) error {
	f := Filter{
		EntityType: c.QueryParam("entity_type"),
		EntityID:   c.QueryParam("entity_id"),
		Action:     c.QueryParam("action"),
		ActorID:    c.QueryParam("actor_id"),
	}
	pg := pagination.FromContext(c)
	items, total, err := h.repo.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
