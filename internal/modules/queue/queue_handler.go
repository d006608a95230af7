package queue

import (
	"errors"
	"net/http"

	"foodtruck-preorder/internal/httpx"
	"foodtruck-preorder/internal/models"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for live queue state.
type Handler struct {
	svc ServiceInterface
}

func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListQueues(c echo.Context) error {
	states, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httpx.Error(c, err, "Failed to retrieve queue state")
	}
	return c.JSON(http.StatusOK, states)
}

func (h *Handler) GetQueue(c echo.Context) error {
	vendorID := c.Param("vendorId")
	state, err := h.svc.Get(c.Request().Context(), vendorID)
	if errors.Is(err, models.ErrNotFound) {
		// no order admitted yet
		return c.JSON(http.StatusOK, models.VendorQueueState{VendorID: vendorID})
	}
	if err != nil {
		return httpx.Error(c, err, "Failed to retrieve queue state")
	}
	return c.JSON(http.StatusOK, state)
}

// Stream pushes queue states as Server-Sent Events, optionally for one vendor_id.
func (h *Handler) Stream(c echo.Context) error {
	sub := h.svc.Subscribe(c.QueryParam("vendor_id"))
	defer sub.Close()
	return httpx.Stream(c, "queue", sub.C())
}
