package recurring

import (
	"context"
	"errors"
	"testing"
	"time"

	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/internal/modules/admission"
	"foodtruck-preorder/internal/modules/estimator"
	"foodtruck-preorder/internal/modules/preorder"
	"foodtruck-preorder/internal/modules/queue"
	"foodtruck-preorder/internal/storage/memory"
	"foodtruck-preorder/pkg/logger"
)

// Monday 2 March 2026, 06:00 UTC.
var monday = time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

type harness struct {
	svc    *Service
	orders *memory.OrderStore
	store  *memory.TemplateStore
	clock  *time.Time
}

// newHarness wires the engine to the real pipeline over memory stores.
func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessAt(t, "")
}

// newHarnessAt also tells the engine when the daily run happens.
func newHarnessAt(t *testing.T, runAt string) *harness {
	t.Helper()
	log := logger.Nop()
	clock := monday
	now := func() time.Time { return clock }

	dir := memory.NewDirectory(
		[]models.Vendor{{ID: "v1", Name: "Taco Truck", AveragePrepMinutes: 15}},
		[]models.Customer{
			{ID: "c1", Name: "Sam", Tier: models.TierStandard},
			{ID: "c2", Name: "Robin", Tier: models.TierPremium},
		},
	)
	orders := memory.NewOrderStore(log)
	templates := memory.NewTemplateStore(log)
	queueStore := memory.NewQueueStore(log)
	queueSvc := queue.NewService(queueStore, dir, 15, log)

	est, err := estimator.New(estimator.DefaultConfig(), queueStore, dir, time.UTC)
	if err != nil {
		t.Fatalf("estimator.New: %v", err)
	}
	adm := admission.NewValidator(admission.DefaultConfig())
	pipeline := preorder.NewService(preorder.Deps{
		Repo:      orders,
		Queue:     queueSvc,
		Admission: adm,
		Estimator: est,
		Vendors:   dir,
		Customers: dir,
		Logger:    log,
		Location:  time.UTC,
		Now:       now,
	})
	svc := NewService(Deps{
		Repo:      templates,
		Orders:    pipeline,
		Vendors:   dir,
		Customers: dir,
		Config:    DefaultConfig(),
		Logger:    log,
		Location:  time.UTC,
		Now:       now,
		RunAt:     runAt,
		Admission: adm,
	})
	pipeline.SetTemplateLinker(svc)
	return &harness{svc: svc, orders: orders, store: templates, clock: &clock}
}

func (h *harness) template(t *testing.T, days []string, at string, weeks int) *models.RecurringTemplate {
	t.Helper()
	tmpl, err := h.svc.CreateTemplate(context.Background(), models.CreateTemplateRequest{
		CustomerID:      "c1",
		VendorID:        "v1",
		Items:           []models.OrderItem{{Name: "burrito", Category: "main", Quantity: 1}},
		PickupTimeOfDay: at,
		DaysOfWeek:      days,
		TotalWeeks:      weeks,
		TotalAmount:     9.5,
	})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	return tmpl
}

func TestCreateTemplateComputesNextExecution(t *testing.T) {
	h := newHarness(t)
	tmpl := h.template(t, []string{"Thursday", "monday"}, "12:00", 0)

	if want := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC); !tmpl.NextExecution.Equal(want) {
		t.Errorf("next = %v; want %v", tmpl.NextExecution, want)
	}
	if tmpl.TotalWeeks != 12 {
		t.Errorf("weeks = %d; want default 12", tmpl.TotalWeeks)
	}
	if !tmpl.Active || tmpl.CustomerName != "Sam" {
		t.Errorf("active=%v name=%q", tmpl.Active, tmpl.CustomerName)
	}
	if tmpl.DaysOfWeek[0] != "monday" || tmpl.DaysOfWeek[1] != "thursday" {
		t.Errorf("days = %v", tmpl.DaysOfWeek)
	}
}

func TestCreateTemplateValidation(t *testing.T) {
	h := newHarness(t)
	items := []models.OrderItem{{Name: "taco", Quantity: 1}}
	cases := []struct {
		name string
		req  models.CreateTemplateRequest
		want error
	}{
		{"bad weekday", models.CreateTemplateRequest{CustomerID: "c1", VendorID: "v1", Items: items, PickupTimeOfDay: "12:00", DaysOfWeek: []string{"funday"}}, models.ErrInvalidArgument},
		{"no days", models.CreateTemplateRequest{CustomerID: "c1", VendorID: "v1", Items: items, PickupTimeOfDay: "12:00"}, models.ErrInvalidArgument},
		{"too many weeks", models.CreateTemplateRequest{CustomerID: "c1", VendorID: "v1", Items: items, PickupTimeOfDay: "12:00", DaysOfWeek: []string{"monday"}, TotalWeeks: 13}, models.ErrInvalidArgument},
		{"bad time", models.CreateTemplateRequest{CustomerID: "c1", VendorID: "v1", Items: items, PickupTimeOfDay: "noon", DaysOfWeek: []string{"monday"}}, models.ErrInvalidArgument},
		{"unknown vendor", models.CreateTemplateRequest{CustomerID: "c1", VendorID: "v9", Items: items, PickupTimeOfDay: "12:00", DaysOfWeek: []string{"monday"}}, models.ErrVendorNotFound},
	}
	for _, tt := range cases {
		if _, err := h.svc.CreateTemplate(context.Background(), tt.req); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v; want %v", tt.name, err, tt.want)
		}
	}
}

func TestMaterializeCreatesOneLinkedOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tmpl := h.template(t, []string{"monday", "thursday"}, "12:00", 4)

	res, err := h.svc.MaterializeDueTemplates(ctx, monday)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(res.Created) != 1 || len(res.Failed) != 0 {
		t.Fatalf("result = %+v", res)
	}
	o := res.Created[0]
	if !o.IsRecurring || o.RecurringTemplateID != tmpl.ID {
		t.Errorf("order not linked: %+v", o)
	}
	if want := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC); !o.PickupTime.Equal(want) {
		t.Errorf("pickup = %v; want %v", o.PickupTime, want)
	}

	stored, _ := h.store.Get(ctx, tmpl.ID)
	if stored.LastMaterializedOn != "2026-03-02" {
		t.Errorf("marker = %q", stored.LastMaterializedOn)
	}
	if want := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC); !stored.NextExecution.Equal(want) {
		t.Errorf("next = %v; want thursday %v", stored.NextExecution, want)
	}
}

func TestMaterializeTwiceSameDayIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tmpl := h.template(t, []string{"monday"}, "12:00", 4)

	if _, err := h.svc.MaterializeDueTemplates(ctx, monday); err != nil {
		t.Fatalf("first run: %v", err)
	}
	res, err := h.svc.MaterializeDueTemplates(ctx, monday.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(res.Created) != 0 || len(res.Skipped) != 1 || res.Skipped[0].Reason != models.SkipAlreadyMaterialized {
		t.Errorf("second run = %+v", res)
	}
	all, _ := h.orders.List(ctx, models.OrderFilter{})
	if len(all) != 1 || all[0].RecurringTemplateID != tmpl.ID {
		t.Errorf("orders = %d; want 1", len(all))
	}
}

func TestMaterializeSkipsOtherDaysAndInactive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.template(t, []string{"tuesday"}, "12:00", 4)
	off := h.template(t, []string{"monday"}, "12:00", 4)
	before := off.NextExecution
	toggled, err := h.svc.ToggleActive(ctx, off.ID, false)
	if err != nil {
		t.Fatalf("ToggleActive: %v", err)
	}
	if !toggled.NextExecution.Equal(before) {
		t.Errorf("toggle moved next execution")
	}

	res, err := h.svc.MaterializeDueTemplates(ctx, monday)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(res.Created)+len(res.Skipped)+len(res.Failed) != 0 {
		t.Errorf("result = %+v; want nothing", res)
	}
}

func TestMaterializeSkipsExhausted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.template(t, []string{"monday"}, "12:00", 1)

	nextMonday := monday.AddDate(0, 0, 7)
	*h.clock = nextMonday
	res, err := h.svc.MaterializeDueTemplates(ctx, nextMonday)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Reason != models.SkipExhausted {
		t.Errorf("result = %+v; want exhausted skip", res)
	}
}

func TestMaterializeFailureReleasesMarker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tooSoon := h.template(t, []string{"monday"}, "06:30", 4)
	fine := h.template(t, []string{"monday"}, "13:00", 4)

	res, err := h.svc.MaterializeDueTemplates(ctx, monday)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0].TemplateID != tooSoon.ID {
		t.Fatalf("failed = %+v", res.Failed)
	}
	if len(res.Created) != 1 || res.Created[0].RecurringTemplateID != fine.ID {
		t.Fatalf("created = %+v", res.Created)
	}
	stored, _ := h.store.Get(ctx, tooSoon.ID)
	if stored.LastMaterializedOn != "" {
		t.Errorf("marker = %q; want released", stored.LastMaterializedOn)
	}
}

func TestUpdateTemplateRecomputesNext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tmpl := h.template(t, []string{"monday"}, "12:00", 4)

	days := []string{"friday"}
	at := "08:15"
	updated, err := h.svc.UpdateTemplate(ctx, tmpl.ID, models.UpdateTemplateRequest{DaysOfWeek: &days, PickupTimeOfDay: &at})
	if err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}
	if want := time.Date(2026, 3, 6, 8, 15, 0, 0, time.UTC); !updated.NextExecution.Equal(want) {
		t.Errorf("next = %v; want %v", updated.NextExecution, want)
	}

	weeks := 20
	if _, err := h.svc.UpdateTemplate(ctx, tmpl.ID, models.UpdateTemplateRequest{TotalWeeks: &weeks}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("weeks 20: got %v", err)
	}
	if _, err := h.svc.UpdateTemplate(ctx, "missing", models.UpdateTemplateRequest{}); !errors.Is(err, models.ErrTemplateNotFound) {
		t.Errorf("missing: got %v", err)
	}
}

func TestRecurringCreateThroughPipeline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o, err := h.svc.orders.Create(ctx, models.CreatePreOrderRequest{
		CustomerID: "c1", VendorID: "v1",
		Items:      []models.OrderItem{{Name: "taco", Category: "main", Quantity: 1}},
		PickupTime: time.Date(2026, 3, 3, 18, 30, 0, 0, time.UTC), IsRecurring: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	tmpl, err := h.svc.GetTemplate(ctx, o.RecurringTemplateID)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if tmpl.PickupTimeOfDay != "18:30" || len(tmpl.DaysOfWeek) != 1 || tmpl.DaysOfWeek[0] != "tuesday" {
		t.Errorf("template = %+v", tmpl)
	}
}

func TestRecurringCreateCoversItsFirstSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	thursday := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	o, err := h.svc.orders.Create(ctx, models.CreatePreOrderRequest{
		CustomerID: "c1", VendorID: "v1",
		Items:      []models.OrderItem{{Name: "taco", Category: "main", Quantity: 1}},
		PickupTime: thursday, IsRecurring: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	tmpl, _ := h.store.Get(ctx, o.RecurringTemplateID)
	if tmpl.LastMaterializedOn != "2026-03-05" {
		t.Errorf("marker = %q; want the first pickup date", tmpl.LastMaterializedOn)
	}
	if want := thursday.AddDate(0, 0, 7); !tmpl.NextExecution.Equal(want) {
		t.Errorf("next = %v; want %v", tmpl.NextExecution, want)
	}

	runDay := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)
	*h.clock = runDay
	res, err := h.svc.MaterializeDueTemplates(ctx, runDay)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(res.Created) != 0 || len(res.Skipped) != 1 || res.Skipped[0].Reason != models.SkipAlreadyMaterialized {
		t.Errorf("result = %+v; want the first slot skipped", res)
	}
	all, _ := h.orders.List(ctx, models.OrderFilter{PickupFrom: thursday, PickupTo: thursday.Add(time.Minute)})
	if len(all) != 1 || all[0].ID != o.ID {
		t.Errorf("orders at first pickup = %d; want 1", len(all))
	}
}

func TestRecurringCreateSurvivesEarlierSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	thursday := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	o, err := h.svc.orders.Create(ctx, models.CreatePreOrderRequest{
		CustomerID: "c1", VendorID: "v1",
		Items:         []models.OrderItem{{Name: "taco", Category: "main", Quantity: 1}},
		PickupTime:    thursday,
		IsRecurring:   true,
		RecurringDays: []string{"monday", "thursday"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// monday's run moves the marker off thursday
	res, err := h.svc.MaterializeDueTemplates(ctx, monday)
	if err != nil || len(res.Created) != 1 {
		t.Fatalf("monday run = %+v, %v", res, err)
	}
	runDay := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)
	*h.clock = runDay
	res, err = h.svc.MaterializeDueTemplates(ctx, runDay)
	if err != nil {
		t.Fatalf("thursday run: %v", err)
	}
	if len(res.Created) != 0 || len(res.Skipped) != 1 || res.Skipped[0].TemplateID != o.RecurringTemplateID {
		t.Errorf("thursday run = %+v; want the linked slot skipped", res)
	}
	all, _ := h.orders.List(ctx, models.OrderFilter{})
	if len(all) != 2 {
		t.Errorf("orders = %d; want the original and monday's", len(all))
	}
}

func TestTemplatePickupMustFollowDailyRun(t *testing.T) {
	h := newHarnessAt(t, "06:00")
	ctx := context.Background()
	req := func(customer, at string) models.CreateTemplateRequest {
		return models.CreateTemplateRequest{
			CustomerID: customer, VendorID: "v1",
			Items:           []models.OrderItem{{Name: "taco", Quantity: 1}},
			PickupTimeOfDay: at,
			DaysOfWeek:      []string{"monday"},
		}
	}
	cases := []struct {
		name     string
		customer string
		at       string
		want     error
	}{
		{"standard before lead", "c1", "06:30", models.ErrInvalidArgument},
		{"standard at lead", "c1", "07:00", nil},
		{"premium before lead", "c2", "07:30", models.ErrInvalidArgument},
		{"premium at lead", "c2", "08:00", nil},
		{"unknown customer is standard", "c9", "07:00", nil},
	}
	for _, tt := range cases {
		_, err := h.svc.CreateTemplate(ctx, req(tt.customer, tt.at))
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v; want %v", tt.name, err, tt.want)
		}
	}

	tmpl := h.template(t, []string{"monday"}, "12:00", 4)
	early := "06:45"
	if _, err := h.svc.UpdateTemplate(ctx, tmpl.ID, models.UpdateTemplateRequest{PickupTimeOfDay: &early}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("update to 06:45: got %v", err)
	}

	o, err := h.svc.orders.Create(ctx, models.CreatePreOrderRequest{
		CustomerID: "c1", VendorID: "v1",
		Items:      []models.OrderItem{{Name: "taco", Quantity: 1}},
		PickupTime: time.Date(2026, 3, 3, 6, 30, 0, 0, time.UTC), IsRecurring: true,
	})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("recurring create at 06:30: got %v, %v", o, err)
	}
	if all, _ := h.orders.List(ctx, models.OrderFilter{}); len(all) != 0 {
		t.Errorf("orders = %d; want none", len(all))
	}
}

func TestSchedulerNextRun(t *testing.T) {
	s, err := NewScheduler(nil, "05:00", time.UTC, logger.Nop())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if got, want := s.NextRun(monday), time.Date(2026, 3, 3, 5, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("after 06:00: %v; want %v", got, want)
	}
	early := time.Date(2026, 3, 2, 4, 59, 0, 0, time.UTC)
	if got, want := s.NextRun(early), time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("before 05:00: %v; want %v", got, want)
	}
	if _, err := NewScheduler(nil, "25:00", time.UTC, nil); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("bad time: %v", err)
	}
}
