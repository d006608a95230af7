package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"foodtruck-preorder/internal/auth"
	"foodtruck-preorder/internal/config"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/internal/modules/admission"
	"foodtruck-preorder/internal/modules/estimator"
	"foodtruck-preorder/internal/modules/recurring"
	"foodtruck-preorder/pkg/logger"
)

const secret = "test-secret"

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Port: "0"},
		Auth:      config.AuthConfig{JWTSecret: secret},
		Timezone:  "UTC",
		Storage:   config.StorageConfig{Driver: "memory"},
		Admission: admission.DefaultConfig(),
		Estimator: estimator.DefaultConfig(),
		Recurring: recurring.DefaultConfig(),
		Notify:    config.NotifyConfig{Driver: "log", Timeout: time.Second},
		Seed: config.SeedConfig{
			Vendors:   []models.Vendor{{ID: "v1", Name: "Taco Truck", AveragePrepMinutes: 15}},
			Customers: []models.Customer{{ID: "c1", Name: "Ada", Tier: models.TierStandard}},
		},
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := Build(context.Background(), testConfig(), logger.Nop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func do(t *testing.T, app *App, method, path, subject, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		tok, err := auth.NewToken(secret, subject, role, time.Hour, time.Now())
		if err != nil {
			t.Fatalf("NewToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	return rec
}

func TestRouteGuards(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name     string
		method   string
		path     string
		subject  string
		role     string
		wantCode int
	}{
		{"health is public", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"api requires token", http.MethodGet, "/api/queue", "", "", http.StatusUnauthorized},
		{"queue open to customers", http.MethodGet, "/api/queue", "c1", "customer", http.StatusOK},
		{"list is staff only", http.MethodGet, "/api/preorders", "c1", "customer", http.StatusForbidden},
		{"vendor lists", http.MethodGet, "/api/preorders", "v1", "vendor", http.StatusOK},
		{"analytics is operator only", http.MethodGet, "/api/analytics", "v1", "vendor", http.StatusForbidden},
		{"operator reads analytics", http.MethodGet, "/api/analytics?preset=today", "op", "operator", http.StatusOK},
		{"materialize is operator only", http.MethodPost, "/api/templates/materialize", "c1", "customer", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, app, tt.method, tt.path, tt.subject, tt.role, "")
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d; want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestCreateAndDeliverThroughAPI(t *testing.T) {
	app := newTestApp(t)

	pickup := time.Now().UTC().Add(3 * time.Hour).Format(time.RFC3339)
	body := `{"vendor_id":"v1","items":[{"name":"Taco","category":"main","quantity":2}],"pickup_time":"` + pickup + `"}`
	rec := do(t, app, http.MethodPost, "/api/preorders", "c1", "customer", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", rec.Code, rec.Body.String())
	}
	var order models.PreOrder
	if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if order.CustomerID != "c1" || order.Status != models.StatusPending {
		t.Fatalf("order = %+v", order)
	}

	rec = do(t, app, http.MethodGet, "/api/queue/v1", "c1", "customer", "")
	var st models.VendorQueueState
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.ActiveOrderCount != 1 {
		t.Errorf("queue count = %d; want 1", st.ActiveOrderCount)
	}

	for _, status := range []string{"confirmed", "delivered"} {
		rec = do(t, app, http.MethodPatch, "/api/preorders/"+order.ID+"/status", "v1", "vendor", `{"status":"`+status+`"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("transition to %s: status = %d (%s)", status, rec.Code, rec.Body.String())
		}
	}
	app.PreOrders.Wait()

	rec = do(t, app, http.MethodGet, "/api/queue/v1", "c1", "customer", "")
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	if st.ActiveOrderCount != 0 {
		t.Errorf("queue count after delivery = %d; want 0", st.ActiveOrderCount)
	}

	rec = do(t, app, http.MethodGet, "/api/preorders/"+order.ID, "someone-else", "customer", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign customer status = %d; want 404", rec.Code)
	}
}

func TestMaterializeWithNoTemplates(t *testing.T) {
	app := newTestApp(t)

	result, err := app.Materialize(context.Background(), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if result.Date != "2026-03-02" || len(result.Created) != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestBuildRejectsBadScheduler(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler = config.SchedulerConfig{Enabled: true, RunAt: "25:99"}
	if _, err := Build(context.Background(), cfg, logger.Nop()); err == nil {
		t.Error("expected error for invalid run_at")
	}
}
