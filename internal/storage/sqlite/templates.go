package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/pkg/keymutex"

	"gorm.io/gorm"
)

type TemplateRepository struct {
	db     *gorm.DB
	locks  *keymutex.KeyMutex
	broker *feed.Broker[*models.RecurringTemplate]
}

func toTemplateRow(t *models.RecurringTemplate) *templateRow {
	return &templateRow{
		ID:                 t.ID,
		CustomerID:         t.CustomerID,
		CustomerName:       t.CustomerName,
		VendorID:           t.VendorID,
		Items:              t.Items,
		PickupTimeOfDay:    t.PickupTimeOfDay,
		Notes:              t.Notes,
		TotalAmount:        t.TotalAmount,
		DaysOfWeek:         t.DaysOfWeek,
		Active:             t.Active,
		TotalWeeks:         t.TotalWeeks,
		NextExecution:      t.NextExecution.UTC(),
		LastMaterializedOn: t.LastMaterializedOn,
		CreatedAt:          t.CreatedAt.UTC(),
		UpdatedAt:          t.UpdatedAt.UTC(),
	}
}

func (r *templateRow) model() *models.RecurringTemplate {
	return &models.RecurringTemplate{
		ID:                 r.ID,
		CustomerID:         r.CustomerID,
		CustomerName:       r.CustomerName,
		VendorID:           r.VendorID,
		Items:              r.Items,
		PickupTimeOfDay:    r.PickupTimeOfDay,
		Notes:              r.Notes,
		TotalAmount:        r.TotalAmount,
		DaysOfWeek:         r.DaysOfWeek,
		Active:             r.Active,
		TotalWeeks:         r.TotalWeeks,
		NextExecution:      r.NextExecution,
		LastMaterializedOn: r.LastMaterializedOn,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func (s *TemplateRepository) Create(ctx context.Context, t *models.RecurringTemplate) error {
	unlock := s.locks.Lock(t.ID)
	defer unlock()

	var n int64
	if err := s.db.WithContext(ctx).Model(&templateRow{}).Where("id = ?", t.ID).Count(&n).Error; err != nil {
		return fmt.Errorf("sqlite.CreateTemplate: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("sqlite.CreateTemplate: %w", models.ErrConflict)
	}
	row := toTemplateRow(t)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("sqlite.CreateTemplate: %w", err)
	}
	s.broker.Publish(row.model().Clone())
	return nil
}

func (s *TemplateRepository) Get(ctx context.Context, id string) (*models.RecurringTemplate, error) {
	var row templateRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("sqlite.GetTemplate: %w", err)
	}
	return row.model(), nil
}

// Update writes the editable columns. The materialization marker and createdAt are kept.
func (s *TemplateRepository) Update(ctx context.Context, t *models.RecurringTemplate) error {
	unlock := s.locks.Lock(t.ID)
	defer unlock()

	row := toTemplateRow(t)
	res := s.db.WithContext(ctx).Model(&templateRow{}).Where("id = ?", t.ID).
		Select("items", "pickup_time_of_day", "notes", "total_amount", "days_of_week",
			"active", "total_weeks", "next_execution", "updated_at").
		Updates(row)
	if res.Error != nil {
		return fmt.Errorf("sqlite.UpdateTemplate: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrTemplateNotFound
	}
	return s.publish(ctx, t.ID)
}

func (s *TemplateRepository) SetMaterialized(ctx context.Context, id, prev, date string, next, now time.Time) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	res := s.db.WithContext(ctx).Model(&templateRow{}).
		Where("id = ? AND last_materialized_on = ?", id, prev).
		Updates(map[string]any{
			"last_materialized_on": date,
			"next_execution":       next.UTC(),
			"updated_at":           now.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("sqlite.SetMaterialized: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		cur, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("sqlite.SetMaterialized: marker is %q: %w", cur.LastMaterializedOn, models.ErrConflict)
	}
	return s.publish(ctx, id)
}

func (s *TemplateRepository) publish(ctx context.Context, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	s.broker.Publish(t)
	return nil
}

func (s *TemplateRepository) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	res := s.db.WithContext(ctx).Delete(&templateRow{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("sqlite.DeleteTemplate: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrTemplateNotFound
	}
	return nil
}

func (s *TemplateRepository) List(ctx context.Context, f models.TemplateFilter) ([]*models.RecurringTemplate, error) {
	q := s.db.WithContext(ctx).Model(&templateRow{})
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.VendorID != "" {
		q = q.Where("vendor_id = ?", f.VendorID)
	}
	if f.ActiveOnly {
		q = q.Where("active = ?", true)
	}

	var rows []templateRow
	if err := q.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite.ListTemplates: %w", err)
	}
	out := make([]*models.RecurringTemplate, len(rows))
	for i := range rows {
		out[i] = rows[i].model()
	}
	return out, nil
}

func (s *TemplateRepository) Subscribe(filter models.TemplateFilter) *feed.Subscription[*models.RecurringTemplate] {
	return s.broker.Subscribe(filter.Matches, feed.DefaultBuffer)
}
