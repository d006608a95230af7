package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/pkg/logger"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logger.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s := NewStore(db, logger.Nop())
	t.Cleanup(func() {
		s.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return s
}

func sampleOrder(id string, created time.Time) *models.PreOrder {
	return &models.PreOrder{
		ID:                   id,
		CustomerID:           "c1",
		CustomerName:         "Ada",
		VendorID:             "v1",
		VendorName:           "Taco Truck",
		Items:                []models.OrderItem{{Name: "Taco", Category: "main", Quantity: 2}},
		PickupTime:           created.Add(2 * time.Hour),
		Status:               models.StatusPending,
		EstimatedWaitMinutes: 25,
		CreatedAt:            created,
		UpdatedAt:            created,
	}
}

func TestOrderRepositoryRoundTripAndCAS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sub := s.Orders.Subscribe(models.OrderFilter{VendorID: "v1"})
	defer sub.Close()

	if err := s.Orders.Create(ctx, sampleOrder("o1", t0)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Orders.Create(ctx, sampleOrder("o1", t0)); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("duplicate Create error = %v; want ErrConflict", err)
	}

	got, err := s.Orders.FindByID(ctx, "o1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].Quantity != 2 || !got.PickupTime.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	wait := 30
	updated, err := s.Orders.UpdateStatus(ctx, "o1", models.StatusPending, models.StatusPatch{
		Status: models.StatusDelivered, ActualWaitMinutes: &wait, UpdatedAt: t0.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != models.StatusDelivered || updated.ActualWaitMinutes == nil || *updated.ActualWaitMinutes != 30 {
		t.Errorf("updated = %+v", updated)
	}

	_, err = s.Orders.UpdateStatus(ctx, "o1", models.StatusPending, models.StatusPatch{Status: models.StatusCancelled, UpdatedAt: t0})
	if !errors.Is(err, models.ErrConflict) {
		t.Errorf("stale UpdateStatus error = %v; want ErrConflict", err)
	}
	_, err = s.Orders.UpdateStatus(ctx, "missing", models.StatusPending, models.StatusPatch{Status: models.StatusCancelled, UpdatedAt: t0})
	if !errors.Is(err, models.ErrOrderNotFound) {
		t.Errorf("missing UpdateStatus error = %v; want ErrOrderNotFound", err)
	}

	var statuses []models.OrderStatus
	for len(statuses) < 2 {
		select {
		case o := <-sub.C():
			statuses = append(statuses, o.Status)
		case <-time.After(time.Second):
			t.Fatalf("feed delivered %v; want two snapshots", statuses)
		}
	}
	if statuses[0] != models.StatusPending || statuses[1] != models.StatusDelivered {
		t.Errorf("feed order = %v", statuses)
	}
}

func TestOrderRepositoryListFiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"o3", "o1", "o2"} {
		o := sampleOrder(id, t0.Add(time.Duration(3-i)*time.Minute))
		if id == "o2" {
			o.VendorID = "v2"
		}
		if err := s.Orders.Create(ctx, o); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	got, err := s.Orders.List(ctx, models.OrderFilter{VendorID: "v1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "o1" || got[1].ID != "o3" {
		t.Errorf("List = %v; want [o1 o3] oldest first", ids(got))
	}

	got, _ = s.Orders.List(ctx, models.OrderFilter{PickupFrom: t0.Add(2*time.Hour + 2*time.Minute)})
	if len(got) != 2 {
		t.Errorf("pickup range matched %v; want two orders", ids(got))
	}
	got, _ = s.Orders.List(ctx, models.OrderFilter{Statuses: []models.OrderStatus{models.StatusReady}})
	if len(got) != 0 {
		t.Errorf("status filter matched %v; want none", ids(got))
	}
}

func ids(orders []*models.PreOrder) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

func TestTemplateRepositoryMarker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tpl := &models.RecurringTemplate{
		ID: "t1", CustomerID: "c1", VendorID: "v1", PickupTimeOfDay: "12:00",
		Items:      []models.OrderItem{{Name: "Taco", Quantity: 1}},
		DaysOfWeek: []string{"monday", "wednesday"}, Active: true, TotalWeeks: 4,
		NextExecution: t0.Add(2 * time.Hour), CreatedAt: t0, UpdatedAt: t0,
	}
	if err := s.Templates.Create(ctx, tpl); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Templates.SetMaterialized(ctx, "t1", "", "2026-03-02", t0.AddDate(0, 0, 2), t0); err != nil {
		t.Fatalf("SetMaterialized: %v", err)
	}
	if err := s.Templates.SetMaterialized(ctx, "t1", "", "2026-03-02", t0, t0); !errors.Is(err, models.ErrConflict) {
		t.Errorf("second claim error = %v; want ErrConflict", err)
	}

	tpl.Active = false
	tpl.LastMaterializedOn = ""
	if err := s.Templates.Update(ctx, tpl); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := s.Templates.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Active || got.LastMaterializedOn != "2026-03-02" || len(got.DaysOfWeek) != 2 {
		t.Errorf("template after update = %+v", got)
	}

	active, _ := s.Templates.List(ctx, models.TemplateFilter{ActiveOnly: true})
	if len(active) != 0 {
		t.Errorf("ActiveOnly listed %d templates", len(active))
	}
	if err := s.Templates.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Templates.Get(ctx, "t1"); !errors.Is(err, models.ErrTemplateNotFound) {
		t.Errorf("Get after delete error = %v", err)
	}
}

func TestQueueRepositoryCountsAndUnderflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	change, err := s.Queue.Decrement(ctx, "v1", t0)
	if err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	if !change.Underflow || change.State.ActiveOrderCount != 0 {
		t.Errorf("change = %+v; want underflow at zero", change)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Queue.Increment(ctx, "v1", 15, t0); err != nil {
				t.Errorf("Increment: %v", err)
			}
		}()
	}
	wg.Wait()

	change, err = s.Queue.Decrement(ctx, "v1", t0)
	if err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	if change.Underflow || change.State.ActiveOrderCount != 19 {
		t.Errorf("change = %+v; want 19 without underflow", change)
	}
}

func TestDirectorySeedAndTiers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Directory.Seed(ctx,
		[]models.Vendor{{ID: "v1", Name: "Taco Truck", AveragePrepMinutes: 15}},
		[]models.Customer{{ID: "c1", Name: "Ada", Tier: models.TierPremium}})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	v, err := s.Directory.GetVendor(ctx, "v1")
	if err != nil || v.Name != "Taco Truck" {
		t.Fatalf("GetVendor = %+v, %v", v, err)
	}
	if _, err := s.Directory.GetVendor(ctx, "nope"); !errors.Is(err, models.ErrVendorNotFound) {
		t.Errorf("unknown vendor error = %v", err)
	}

	tests := []struct {
		id   string
		want models.CustomerTier
	}{
		{"c1", models.TierPremium},
		{"stranger", models.TierStandard},
	}
	for _, tt := range tests {
		got, err := s.Directory.GetTier(ctx, tt.id)
		if err != nil || got != tt.want {
			t.Errorf("GetTier(%q) = %v, %v; want %v", tt.id, got, err, tt.want)
		}
	}
}
