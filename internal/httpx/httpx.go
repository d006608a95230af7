// Package httpx holds the echo helpers shared by the module handlers: error
// mapping, identity lookup and Server-Sent Event streaming.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"foodtruck-preorder/internal/models"

	"github.com/labstack/echo/v4"
)

// Roles carried in the token's role claim.
const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleOperator = "operator"
)

// Identity returns the subject and role set by the auth middleware.
func Identity(c echo.Context) (userID, role string) {
	userID, _ = c.Get("userID").(string)
	role, _ = c.Get("userRole").(string)
	return userID, role
}

// IsStaff reports whether role may act on orders it does not own.
func IsStaff(role string) bool {
	return role == RoleOperator || role == RoleVendor
}

// Error maps service errors onto HTTP statuses. Unrecognised errors are logged and
// reported as fallback.
func Error(c echo.Context, err error, fallback string) error {
	var tooSoon *models.PickupTooSoonError
	if errors.As(err, &tooSoon) {
		earliest := tooSoon.Earliest
		return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Message:        "Pickup time is too soon",
			EarliestPickup: &earliest,
		})
	}
	var badMove *models.InvalidTransitionError
	if errors.As(err, &badMove) {
		return c.JSON(http.StatusConflict, models.ErrorResponse{
			Message:       "Order status already changed",
			CurrentStatus: badMove.From,
		})
	}
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
	case errors.Is(err, models.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Order not found"})
	case errors.Is(err, models.ErrVendorNotFound):
		return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Vendor not found"})
	case errors.Is(err, models.ErrTemplateNotFound):
		return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Template not found"})
	case errors.Is(err, models.ErrNotFound):
		return c.JSON(http.StatusNotFound, models.ErrorResponse{Message: "Resource not found"})
	case errors.Is(err, models.ErrForbidden):
		return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Access denied"})
	case errors.Is(err, models.ErrConflict):
		return c.JSON(http.StatusConflict, models.ErrorResponse{Message: "Resource conflict"})
	}
	c.Logger().Error(fallback+": ", err)
	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: fallback})
}

// BadRequest answers with a 400 and msg.
func BadRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: msg})
}

// KeepAlive is how often an idle stream sends a comment line.
var KeepAlive = 25 * time.Second

// Stream writes values from ch as Server-Sent Events named event until the client
// disconnects or ch is closed.
func Stream[T any](c echo.Context, event string, ch <-chan T) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(KeepAlive)
	defer ticker.Stop()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case v, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("httpx.Stream: %w", err)
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
