package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"foodtruck-preorder/internal/httpx"

	"github.com/labstack/echo/v4"
)

const secret = "test-secret"

func newEcho() *echo.Echo {
	e := echo.New()
	g := e.Group("/api", Middleware(secret))
	g.GET("/whoami", func(c echo.Context) error {
		id, role := httpx.Identity(c)
		return c.String(http.StatusOK, id+"/"+role)
	})
	g.GET("/ops", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, RequireRole(httpx.RoleOperator))
	return e
}

func mint(t *testing.T, subject, role string, ttl time.Duration) string {
	t.Helper()
	tok, err := NewToken(secret, subject, role, ttl, time.Now())
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	return tok
}

func TestMiddleware(t *testing.T) {
	e := newEcho()

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantBody string
	}{
		{"no token", "/api/whoami", "", http.StatusUnauthorized, ""},
		{"garbage token", "/api/whoami", "Bearer nope", http.StatusUnauthorized, ""},
		{"expired token", "/api/whoami", "Bearer " + mint(t, "c1", "customer", -time.Minute), http.StatusUnauthorized, ""},
		{"customer", "/api/whoami", "Bearer " + mint(t, "c1", "customer", time.Hour), http.StatusOK, "c1/customer"},
		{"unknown role becomes customer", "/api/whoami", "Bearer " + mint(t, "c2", "admin", time.Hour), http.StatusOK, "c2/customer"},
		{"query token", "/api/whoami?token=" + mint(t, "v1", "vendor", time.Hour), "", http.StatusOK, "v1/vendor"},
		{"operator route as vendor", "/api/ops", "Bearer " + mint(t, "v1", "vendor", time.Hour), http.StatusForbidden, ""},
		{"operator route as operator", "/api/ops", "Bearer " + mint(t, "op", "operator", time.Hour), http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d; want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q; want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}
