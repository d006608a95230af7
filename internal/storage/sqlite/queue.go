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
	"gorm.io/gorm/clause"
)

// QueueRepository applies every counter change as one upsert or guarded update.
type QueueRepository struct {
	db     *gorm.DB
	locks  *keymutex.KeyMutex
	broker *feed.Broker[*models.VendorQueueState]
}

func (r *queueRow) model() *models.VendorQueueState {
	return &models.VendorQueueState{
		VendorID:           r.VendorID,
		ActiveOrderCount:   r.ActiveOrderCount,
		AveragePrepMinutes: r.AveragePrepMinutes,
		LastUpdated:        r.LastUpdated,
	}
}

func (s *QueueRepository) Get(ctx context.Context, vendorID string) (*models.VendorQueueState, error) {
	var row queueRow
	if err := s.db.WithContext(ctx).First(&row, "vendor_id = ?", vendorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite.GetQueue: %w", err)
	}
	return row.model(), nil
}

func (s *QueueRepository) List(ctx context.Context) ([]*models.VendorQueueState, error) {
	var rows []queueRow
	if err := s.db.WithContext(ctx).Order("vendor_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite.ListQueues: %w", err)
	}
	out := make([]*models.VendorQueueState, len(rows))
	for i := range rows {
		out[i] = rows[i].model()
	}
	return out, nil
}

func (s *QueueRepository) Increment(ctx context.Context, vendorID string, averagePrep float64, now time.Time) (models.CounterChange, error) {
	unlock := s.locks.Lock(vendorID)
	defer unlock()

	row := queueRow{VendorID: vendorID, ActiveOrderCount: 1, AveragePrepMinutes: averagePrep, LastUpdated: now.UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "vendor_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"active_order_count": gorm.Expr("active_order_count + 1"),
			"last_updated":       now.UTC(),
		}),
	}).Create(&row).Error
	if err != nil {
		return models.CounterChange{}, fmt.Errorf("sqlite.IncrementQueue: %w", err)
	}
	return s.changed(ctx, vendorID, false)
}

func (s *QueueRepository) Decrement(ctx context.Context, vendorID string, now time.Time) (models.CounterChange, error) {
	unlock := s.locks.Lock(vendorID)
	defer unlock()

	res := s.db.WithContext(ctx).Model(&queueRow{}).
		Where("vendor_id = ? AND active_order_count > 0", vendorID).
		Updates(map[string]any{
			"active_order_count": gorm.Expr("active_order_count - 1"),
			"last_updated":       now.UTC(),
		})
	if res.Error != nil {
		return models.CounterChange{}, fmt.Errorf("sqlite.DecrementQueue: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return s.changed(ctx, vendorID, false)
	}

	row := queueRow{VendorID: vendorID, LastUpdated: now.UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vendor_id"}},
		DoUpdates: clause.Assignments(map[string]any{"last_updated": now.UTC()}),
	}).Create(&row).Error
	if err != nil {
		return models.CounterChange{}, fmt.Errorf("sqlite.DecrementQueue: %w", err)
	}
	return s.changed(ctx, vendorID, true)
}

func (s *QueueRepository) changed(ctx context.Context, vendorID string, underflow bool) (models.CounterChange, error) {
	st, err := s.Get(ctx, vendorID)
	if err != nil {
		return models.CounterChange{}, err
	}
	snapshot := *st
	s.broker.Publish(&snapshot)
	return models.CounterChange{State: *st, Underflow: underflow}, nil
}

func (s *QueueRepository) Subscribe(vendorID string) *feed.Subscription[*models.VendorQueueState] {
	var filter func(*models.VendorQueueState) bool
	if vendorID != "" {
		filter = func(st *models.VendorQueueState) bool { return st.VendorID == vendorID }
	}
	return s.broker.Subscribe(filter, feed.DefaultBuffer)
}
