package recurring

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"foodtruck-preorder/internal/httpx"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/internal/timeutil"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for recurring templates.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
	loc      *time.Location
}

func NewHandler(svc ServiceInterface, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{svc: svc, validate: validator.New(), loc: loc}
}

func (h *Handler) CreateTemplate(c echo.Context) error {
	userID, role := httpx.Identity(c)

	var req models.CreateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return httpx.BadRequest(c, "Invalid request body")
	}
	if role != httpx.RoleOperator {
		req.CustomerID = userID
	}
	if err := h.validate.Struct(req); err != nil {
		return httpx.BadRequest(c, "Validation failed: "+err.Error())
	}

	t, err := h.svc.CreateTemplate(c.Request().Context(), req)
	if err != nil {
		return httpx.Error(c, err, "Failed to create template")
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	userID, role := httpx.Identity(c)

	filter := models.TemplateFilter{
		CustomerID: c.QueryParam("customer_id"),
		VendorID:   c.QueryParam("vendor_id"),
	}
	if raw := c.QueryParam("active_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return httpx.BadRequest(c, "active_only must be a boolean")
		}
		filter.ActiveOnly = v
	}
	switch role {
	case httpx.RoleOperator:
	case httpx.RoleVendor:
		filter.VendorID = userID
	default:
		filter.CustomerID = userID
	}

	list, err := h.svc.ListTemplates(c.Request().Context(), filter)
	if err != nil {
		return httpx.Error(c, err, "Failed to retrieve templates")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"templates": list, "total": len(list)})
}

func (h *Handler) UpdateTemplate(c echo.Context) error {
	id := c.Param("id")
	if ok, err := h.owns(c, id); !ok {
		return err
	}

	var req models.UpdateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return httpx.BadRequest(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return httpx.BadRequest(c, "Validation failed: "+err.Error())
	}

	t, err := h.svc.UpdateTemplate(c.Request().Context(), id, req)
	if err != nil {
		return httpx.Error(c, err, "Failed to update template")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) SetActive(c echo.Context) error {
	id := c.Param("id")
	if ok, err := h.owns(c, id); !ok {
		return err
	}

	var req models.ToggleTemplateRequest
	if err := c.Bind(&req); err != nil {
		return httpx.BadRequest(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return httpx.BadRequest(c, "Validation failed: "+err.Error())
	}

	t, err := h.svc.ToggleActive(c.Request().Context(), id, *req.Active)
	if err != nil {
		return httpx.Error(c, err, "Failed to update template")
	}
	return c.JSON(http.StatusOK, t)
}

// Materialize runs the daily materialization for ?date=YYYY-MM-DD, default today.
func (h *Handler) Materialize(c echo.Context) error {
	day := time.Now().In(h.loc)
	if raw := c.QueryParam("date"); raw != "" {
		d, err := time.ParseInLocation(timeutil.DateLayout, raw, h.loc)
		if err != nil {
			return httpx.BadRequest(c, fmt.Sprintf("date must look like %s", timeutil.DateLayout))
		}
		day = d
	}

	result, err := h.svc.MaterializeDueTemplates(c.Request().Context(), day)
	if err != nil {
		return httpx.Error(c, err, "Failed to materialize templates")
	}
	return c.JSON(http.StatusOK, result)
}

// owns lets operators through and limits everyone else to their own templates.
// When it reports false the error response has already been written.
func (h *Handler) owns(c echo.Context, id string) (bool, error) {
	userID, role := httpx.Identity(c)
	if role == httpx.RoleOperator {
		return true, nil
	}
	t, err := h.svc.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return false, httpx.Error(c, err, "Failed to retrieve template")
	}
	if t.CustomerID != userID {
		return false, httpx.Error(c, models.ErrTemplateNotFound, "")
	}
	return true, nil
}
