package analytics

import (
	"net/http"
	"time"

	"foodtruck-preorder/internal/httpx"
	"foodtruck-preorder/internal/timeutil"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc ServiceInterface
	loc *time.Location
}

func NewHandler(svc ServiceInterface, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{svc: svc, loc: loc}
}

// GetReport accepts either ?preset=<name> or ?from=YYYY-MM-DD&to=YYYY-MM-DD, where
// to is inclusive. Without either the report covers all orders.
func (h *Handler) GetReport(c echo.Context) error {
	q := Query{VendorID: c.QueryParam("vendor_id")}

	preset, from, to := c.QueryParam("preset"), c.QueryParam("from"), c.QueryParam("to")
	switch {
	case preset != "" && (from != "" || to != ""):
		return httpx.BadRequest(c, "use either preset or from/to, not both")
	case preset != "":
		window, err := h.svc.WindowForPreset(preset)
		if err != nil {
			return httpx.Error(c, err, "Failed to compute report")
		}
		q.Window = &window
	case from != "" || to != "":
		window := timeutil.Range{End: time.Date(9999, 12, 31, 0, 0, 0, 0, h.loc)}
		if from != "" {
			d, err := time.ParseInLocation(timeutil.DateLayout, from, h.loc)
			if err != nil {
				return httpx.BadRequest(c, "from must look like "+timeutil.DateLayout)
			}
			window.Start = d
		}
		if to != "" {
			d, err := time.ParseInLocation(timeutil.DateLayout, to, h.loc)
			if err != nil {
				return httpx.BadRequest(c, "to must look like "+timeutil.DateLayout)
			}
			window.End = d.AddDate(0, 0, 1)
		}
		if !window.Start.Before(window.End) {
			return httpx.BadRequest(c, "from must not be after to")
		}
		q.Window = &window
	}

	report, err := h.svc.Aggregate(c.Request().Context(), q)
	if err != nil {
		return httpx.Error(c, err, "Failed to compute report")
	}
	return c.JSON(http.StatusOK, report)
}
