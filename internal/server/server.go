// Package server wires the HTTP surface: middleware, JWT auth and the routes of
// every module.
package server

import (
	"log/slog"
	"net/http"

	"foodtruck-preorder/internal/auth"
	"foodtruck-preorder/internal/httpx"
	"foodtruck-preorder/internal/modules/analytics"
	"foodtruck-preorder/internal/modules/preorder"
	"foodtruck-preorder/internal/modules/queue"
	"foodtruck-preorder/internal/modules/recurring"
	"foodtruck-preorder/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Handlers groups the module handlers mounted under /api.
type Handlers struct {
	PreOrders *preorder.Handler
	Queue     *queue.Handler
	Templates *recurring.Handler
	Analytics *analytics.Handler
}

// NewEcho builds the router. Every /api route requires a token signed with secret.
func NewEcho(h Handlers, secret, clientOrigin string, log *logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			log.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
	origins := []string{"*"}
	if clientOrigin != "" {
		origins = []string{clientOrigin}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api", auth.Middleware(secret))
	RegisterRoutes(api, h)
	return e
}

// RegisterRoutes mounts every module on g.
func RegisterRoutes(g *echo.Group, h Handlers) {
	staff := auth.RequireRole(httpx.RoleOperator, httpx.RoleVendor)
	operator := auth.RequireRole(httpx.RoleOperator)

	// Pre-orders
	g.POST("/preorders/quote", h.PreOrders.Quote)
	g.POST("/preorders", h.PreOrders.CreatePreOrder)
	g.GET("/preorders", h.PreOrders.ListPreOrders, staff)
	g.GET("/preorders/stream", h.PreOrders.Stream, staff)
	g.GET("/preorders/:id", h.PreOrders.GetPreOrder)
	g.PATCH("/preorders/:id/status", h.PreOrders.UpdateStatus, staff)

	// Queue state
	g.GET("/queue", h.Queue.ListQueues)
	g.GET("/queue/stream", h.Queue.Stream)
	g.GET("/queue/:vendorId", h.Queue.GetQueue)

	// Recurring templates
	g.POST("/templates", h.Templates.CreateTemplate)
	g.GET("/templates", h.Templates.ListTemplates)
	g.POST("/templates/materialize", h.Templates.Materialize, operator)
	g.PATCH("/templates/:id", h.Templates.UpdateTemplate)
	g.PUT("/templates/:id/active", h.Templates.SetActive)

	g.GET("/analytics", h.Analytics.GetReport, operator)
}
