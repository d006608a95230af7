package preorder

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"foodtruck-preorder/internal/httpx"
	"foodtruck-preorder/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for pre-orders.
type Handler struct {
	svc      ServiceInterface
	validate *validator.Validate
}

// NewHandler creates a new pre-order handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *Handler) Quote(c echo.Context) error {
	userID, role := httpx.Identity(c)

	var req models.QuoteRequest
	if err := c.Bind(&req); err != nil {
		return httpx.BadRequest(c, "Invalid request body")
	}
	if req.CustomerID == "" || !httpx.IsStaff(role) {
		req.CustomerID = userID
	}
	if err := h.validate.Struct(req); err != nil {
		return httpx.BadRequest(c, "Validation failed: "+err.Error())
	}

	quote, err := h.svc.Quote(c.Request().Context(), req)
	if err != nil {
		return httpx.Error(c, err, "Failed to compute quote")
	}
	return c.JSON(http.StatusOK, quote)
}

func (h *Handler) CreatePreOrder(c echo.Context) error {
	userID, role := httpx.Identity(c)

	var req models.CreatePreOrderRequest
	if err := c.Bind(&req); err != nil {
		return httpx.BadRequest(c, "Invalid request body")
	}
	// customers always order for themselves and cannot skip the admission window
	if role != httpx.RoleOperator {
		req.CustomerID = userID
		req.OverrideAdmission = false
	}
	if err := h.validate.Struct(req); err != nil {
		return httpx.BadRequest(c, "Validation failed: "+err.Error())
	}

	order, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return httpx.Error(c, err, "Failed to create pre-order")
	}
	return c.JSON(http.StatusCreated, order)
}

func (h *Handler) GetPreOrder(c echo.Context) error {
	userID, role := httpx.Identity(c)

	order, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpx.Error(c, err, "Failed to retrieve pre-order")
	}
	if !canSee(order, userID, role) {
		return httpx.Error(c, models.ErrOrderNotFound, "")
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) ListPreOrders(c echo.Context) error {
	userID, role := httpx.Identity(c)

	filter, err := parseFilter(c)
	if err != nil {
		return httpx.BadRequest(c, err.Error())
	}
	if role == httpx.RoleVendor {
		filter.VendorID = userID
	}

	orders, err := h.svc.List(c.Request().Context(), filter)
	if err != nil {
		return httpx.Error(c, err, "Failed to retrieve pre-orders")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"orders": orders, "total": len(orders)})
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	userID, role := httpx.Identity(c)
	ctx := c.Request().Context()
	id := c.Param("id")

	var req models.TransitionRequest
	if err := c.Bind(&req); err != nil {
		return httpx.BadRequest(c, "Invalid request body")
	}
	status, err := models.ParseOrderStatus(string(req.Status))
	if err != nil {
		return httpx.BadRequest(c, err.Error())
	}

	if role == httpx.RoleVendor {
		order, err := h.svc.Get(ctx, id)
		if err != nil {
			return httpx.Error(c, err, "Failed to update pre-order")
		}
		if order.VendorID != userID {
			return httpx.Error(c, models.ErrOrderNotFound, "")
		}
	}

	order, err := h.svc.Transition(ctx, id, status)
	if err != nil {
		var badMove *models.InvalidTransitionError
		if errors.As(err, &badMove) {
			return c.JSON(http.StatusConflict, models.ErrorResponse{
				Message:         "Order status already changed",
				CurrentStatus:   badMove.From,
				ValidNextStates: ValidNextStatuses(badMove.From),
			})
		}
		return httpx.Error(c, err, "Failed to update pre-order")
	}
	return c.JSON(http.StatusOK, order)
}

// Stream pushes order snapshots as Server-Sent Events.
func (h *Handler) Stream(c echo.Context) error {
	userID, role := httpx.Identity(c)

	filter, err := parseFilter(c)
	if err != nil {
		return httpx.BadRequest(c, err.Error())
	}
	if role == httpx.RoleVendor {
		filter.VendorID = userID
	}

	sub := h.svc.Subscribe(filter)
	defer sub.Close()
	return httpx.Stream(c, "preorder", sub.C())
}

func canSee(o *models.PreOrder, userID, role string) bool {
	switch role {
	case httpx.RoleOperator:
		return true
	case httpx.RoleVendor:
		return o.VendorID == userID
	}
	return o.CustomerID == userID
}

// parseFilter reads vendor_id, customer_id, status (comma separated) and the
// RFC 3339 pickup bounds from and to.
func parseFilter(c echo.Context) (models.OrderFilter, error) {
	f := models.OrderFilter{
		VendorID:   c.QueryParam("vendor_id"),
		CustomerID: c.QueryParam("customer_id"),
	}
	if raw := c.QueryParam("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			s, err := models.ParseOrderStatus(strings.TrimSpace(part))
			if err != nil {
				return f, err
			}
			f.Statuses = append(f.Statuses, s)
		}
	}
	var err error
	if f.PickupFrom, err = parseTimeParam(c, "from"); err != nil {
		return f, err
	}
	if f.PickupTo, err = parseTimeParam(c, "to"); err != nil {
		return f, err
	}
	return f, nil
}

func parseTimeParam(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s timestamp %q", models.ErrInvalidArgument, name, raw)
	}
	return t, nil
}
