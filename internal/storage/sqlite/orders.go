package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/pkg/keymutex"

	"gorm.io/gorm"
)

// OrderRepository publishes each committed row while holding that order's lock.
type OrderRepository struct {
	db     *gorm.DB
	locks  *keymutex.KeyMutex
	broker *feed.Broker[*models.PreOrder]
}

func toOrderRow(o *models.PreOrder) *orderRow {
	return &orderRow{
		ID:                   o.ID,
		CustomerID:           o.CustomerID,
		CustomerName:         o.CustomerName,
		VendorID:             o.VendorID,
		VendorName:           o.VendorName,
		Items:                o.Items,
		PickupTime:           o.PickupTime.UTC(),
		Status:               string(o.Status),
		EstimatedWaitMinutes: o.EstimatedWaitMinutes,
		ActualWaitMinutes:    o.ActualWaitMinutes,
		IsRecurring:          o.IsRecurring,
		RecurringTemplateID:  o.RecurringTemplateID,
		Notes:                o.Notes,
		TotalAmount:          o.TotalAmount,
		CreatedAt:            o.CreatedAt.UTC(),
		UpdatedAt:            o.UpdatedAt.UTC(),
	}
}

func (r *orderRow) model() *models.PreOrder {
	return &models.PreOrder{
		ID:                   r.ID,
		CustomerID:           r.CustomerID,
		CustomerName:         r.CustomerName,
		VendorID:             r.VendorID,
		VendorName:           r.VendorName,
		Items:                r.Items,
		PickupTime:           r.PickupTime,
		Status:               models.OrderStatus(r.Status),
		EstimatedWaitMinutes: r.EstimatedWaitMinutes,
		ActualWaitMinutes:    r.ActualWaitMinutes,
		IsRecurring:          r.IsRecurring,
		RecurringTemplateID:  r.RecurringTemplateID,
		Notes:                r.Notes,
		TotalAmount:          r.TotalAmount,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func (s *OrderRepository) Create(ctx context.Context, o *models.PreOrder) error {
	unlock := s.locks.Lock(o.ID)
	defer unlock()

	var n int64
	if err := s.db.WithContext(ctx).Model(&orderRow{}).Where("id = ?", o.ID).Count(&n).Error; err != nil {
		return fmt.Errorf("sqlite.CreateOrder: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("sqlite.CreateOrder: %w", models.ErrConflict)
	}
	row := toOrderRow(o)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("sqlite.CreateOrder: %w", err)
	}
	s.broker.Publish(row.model().Clone())
	return nil
}

func (s *OrderRepository) FindByID(ctx context.Context, id string) (*models.PreOrder, error) {
	var row orderRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("sqlite.FindOrderByID: %w", err)
	}
	return row.model(), nil
}

// List pushes identity filters into SQL and applies the pickup range in memory.
func (s *OrderRepository) List(ctx context.Context, f models.OrderFilter) ([]*models.PreOrder, error) {
	q := s.db.WithContext(ctx).Model(&orderRow{})
	if f.VendorID != "" {
		q = q.Where("vendor_id = ?", f.VendorID)
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status IN ?", statuses)
	}

	var rows []orderRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite.ListOrders: %w", err)
	}
	out := make([]*models.PreOrder, 0, len(rows))
	for i := range rows {
		o := rows[i].model()
		if f.Matches(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *OrderRepository) UpdateStatus(ctx context.Context, id string, from models.OrderStatus, patch models.StatusPatch) (*models.PreOrder, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	updates := map[string]any{
		"status":     string(patch.Status),
		"updated_at": patch.UpdatedAt.UTC(),
	}
	if patch.ActualWaitMinutes != nil {
		updates["actual_wait_minutes"] = *patch.ActualWaitMinutes
	}
	res := s.db.WithContext(ctx).Model(&orderRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("sqlite.UpdateOrderStatus: %w", res.Error)
	}

	o, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("sqlite.UpdateOrderStatus: status is %s: %w", o.Status, models.ErrConflict)
	}
	s.broker.Publish(o.Clone())
	return o, nil
}

func (s *OrderRepository) Subscribe(filter models.OrderFilter) *feed.Subscription[*models.PreOrder] {
	return s.broker.Subscribe(filter.Matches, feed.DefaultBuffer)
}
