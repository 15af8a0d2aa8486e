package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func requestWithRoles(e *echo.Echo, roles []string) echo.Context {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestRequireRole_Allows(t *testing.T) {
	e := echo.New()
	c := requestWithRoles(e, []string{RoleDoctor})

	h := RequireRole(RoleDoctor)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireRole_AdminOverride(t *testing.T) {
	e := echo.New()
	c := requestWithRoles(e, []string{RoleAdmin})

	h := RequireRole(RoleHospital)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("expected admin to pass any role gate, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	e := echo.New()
	c := requestWithRoles(e, []string{RoleDoctor})

	h := RequireRole(RoleHospital)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestRequireRole_AnyOf(t *testing.T) {
	e := echo.New()
	c := requestWithRoles(e, []string{RoleHospital})

	h := RequireRole(RoleDoctor, RoleHospital)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
