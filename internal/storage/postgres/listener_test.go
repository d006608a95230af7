package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"foodtruck-preorder/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRows struct {
	orders    map[string]*models.PreOrder
	templates map[string]*models.RecurringTemplate
	queues    map[string]*models.VendorQueueState
	reads     []string
}

func (f *fakeRows) order(ctx context.Context, id string) (*models.PreOrder, error) {
	f.reads = append(f.reads, "order:"+id)
	if o, ok := f.orders[id]; ok {
		return o.Clone(), nil
	}
	return nil, models.ErrOrderNotFound
}

func (f *fakeRows) template(ctx context.Context, id string) (*models.RecurringTemplate, error) {
	f.reads = append(f.reads, "template:"+id)
	if t, ok := f.templates[id]; ok {
		return t.Clone(), nil
	}
	return nil, models.ErrTemplateNotFound
}

func (f *fakeRows) queueState(ctx context.Context, vendorID string) (*models.VendorQueueState, error) {
	f.reads = append(f.reads, "queue:"+vendorID)
	if st, ok := f.queues[vendorID]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, models.ErrNotFound
}

func bigBasket(n int) []models.OrderItem {
	items := make([]models.OrderItem, n)
	for i := range items {
		items[i] = models.OrderItem{Name: fmt.Sprintf("extra large loaded carnitas burrito no. %d", i), Category: "main", Quantity: 1}
	}
	return items
}

func TestDispatchPublishesCurrentRow(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()
	pickup := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	rows := &fakeRows{
		orders: map[string]*models.PreOrder{
			"o1": {ID: "o1", CustomerID: "c1", VendorID: "v1", Items: bigBasket(300), PickupTime: pickup,
				Status: models.StatusReady, Notes: strings.Repeat("n", 500)},
		},
		templates: map[string]*models.RecurringTemplate{
			"t1": {ID: "t1", CustomerID: "c1", VendorID: "v1", DaysOfWeek: []string{"monday"}, TotalWeeks: 4, Active: true},
		},
		queues: map[string]*models.VendorQueueState{
			"v1": {VendorID: "v1", ActiveOrderCount: 3, AveragePrepMinutes: 15},
		},
	}
	s.rows = rows

	if row, _ := json.Marshal(rows.orders["o1"]); len(row) < 8000 {
		t.Fatalf("order row is %d bytes; want one past the notify limit", len(row))
	}

	orders := s.Orders.Subscribe(models.OrderFilter{VendorID: "v1"})
	queues := s.Queue.Subscribe("v1")
	templates := s.Templates.Subscribe(models.TemplateFilter{})

	ctx := context.Background()
	for _, n := range []*pgconn.Notification{
		{Channel: ChannelOrders, Payload: "o1"},
		{Channel: ChannelQueue, Payload: "v1"},
		{Channel: ChannelTemplates, Payload: " t1\n"},
	} {
		if err := s.dispatch(ctx, n); err != nil {
			t.Fatalf("dispatch %s: %v", n.Channel, err)
		}
	}
	if want := []string{"order:o1", "queue:v1", "template:t1"}; strings.Join(rows.reads, ",") != strings.Join(want, ",") {
		t.Errorf("reads = %v; want %v", rows.reads, want)
	}

	select {
	case o := <-orders.C():
		if o.ID != "o1" || o.Status != models.StatusReady || len(o.Items) != 300 {
			t.Errorf("unexpected order: id=%s status=%s items=%d", o.ID, o.Status, len(o.Items))
		}
		if !o.PickupTime.Equal(pickup) {
			t.Errorf("pickup time = %v", o.PickupTime)
		}
	default:
		t.Fatal("order snapshot not published")
	}

	select {
	case st := <-queues.C():
		if st.ActiveOrderCount != 3 {
			t.Errorf("count = %d, want 3", st.ActiveOrderCount)
		}
	default:
		t.Fatal("queue snapshot not published")
	}

	select {
	case tpl := <-templates.C():
		if tpl.ID != "t1" || tpl.TotalWeeks != 4 {
			t.Errorf("unexpected template: %+v", tpl)
		}
	default:
		t.Fatal("template snapshot not published")
	}
}

func TestDispatchDropsVanishedRows(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()
	s.rows = &fakeRows{}
	templates := s.Templates.Subscribe(models.TemplateFilter{})

	if err := s.dispatch(context.Background(), &pgconn.Notification{Channel: ChannelTemplates, Payload: "deleted"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	select {
	case tpl := <-templates.C():
		t.Errorf("published %+v for a missing row", tpl)
	default:
	}
}

func TestDispatchRejectsUnknownChannelAndEmptyKey(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()
	s.rows = &fakeRows{}

	if err := s.dispatch(context.Background(), &pgconn.Notification{Channel: "other", Payload: "x"}); err == nil {
		t.Error("expected error for unknown channel")
	}
	if err := s.dispatch(context.Background(), &pgconn.Notification{Channel: ChannelOrders, Payload: "  "}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestTriggersNotifyRowKeys(t *testing.T) {
	if strings.Contains(schema, "to_jsonb(NEW)::text") {
		t.Error("trigger still sends the whole row")
	}
	for _, want := range []string{
		"pg_notify(TG_ARGV[0], to_jsonb(NEW) ->> TG_ARGV[1])",
		"notify_row_change('preorder_changes', 'id')",
		"notify_row_change('template_changes', 'id')",
		"notify_row_change('queue_changes', 'vendor_id')",
	} {
		if !strings.Contains(schema, want) {
			t.Errorf("schema lacks %q", want)
		}
	}
}
