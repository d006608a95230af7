package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queueColumns = `vendor_id, active_order_count, average_prep_minutes, last_updated`

// QueueRepository keeps vendor counters. Every change is one atomic statement, so
// concurrent transitions never lose updates and no application lock is needed.
type QueueRepository struct {
	db     *pgxpool.Pool
	broker *feed.Broker[*models.VendorQueueState]
}

func scanQueue(row pgx.Row) (*models.VendorQueueState, error) {
	var st models.VendorQueueState
	if err := row.Scan(&st.VendorID, &st.ActiveOrderCount, &st.AveragePrepMinutes, &st.LastUpdated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan queue state: %w", err)
	}
	return &st, nil
}

func (r *QueueRepository) Get(ctx context.Context, vendorID string) (*models.VendorQueueState, error) {
	st, err := scanQueue(r.db.QueryRow(ctx, `SELECT `+queueColumns+` FROM vendor_queue_state WHERE vendor_id = $1`, vendorID))
	if err != nil {
		return nil, fmt.Errorf("repository.GetQueue: %w", err)
	}
	return st, nil
}

func (r *QueueRepository) List(ctx context.Context) ([]*models.VendorQueueState, error) {
	rows, err := r.db.Query(ctx, `SELECT `+queueColumns+` FROM vendor_queue_state ORDER BY vendor_id`)
	if err != nil {
		return nil, fmt.Errorf("repository.ListQueues: %w", err)
	}
	defer rows.Close()

	states := []*models.VendorQueueState{}
	for rows.Next() {
		st, err := scanQueue(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.ListQueues: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func (r *QueueRepository) Increment(ctx context.Context, vendorID string, averagePrep float64, now time.Time) (models.CounterChange, error) {
	query := `
		INSERT INTO vendor_queue_state (vendor_id, active_order_count, average_prep_minutes, last_updated)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (vendor_id) DO UPDATE
		SET active_order_count = vendor_queue_state.active_order_count + 1,
			last_updated = EXCLUDED.last_updated
		RETURNING ` + queueColumns

	st, err := scanQueue(r.db.QueryRow(ctx, query, vendorID, averagePrep, now))
	if err != nil {
		return models.CounterChange{}, fmt.Errorf("repository.IncrementQueue: %w", err)
	}
	return models.CounterChange{State: *st}, nil
}

// Decrement only matches rows above zero. When nothing matches, the row is created
// or touched at zero and the change is reported as an underflow.
func (r *QueueRepository) Decrement(ctx context.Context, vendorID string, now time.Time) (models.CounterChange, error) {
	query := `
		UPDATE vendor_queue_state
		SET active_order_count = active_order_count - 1, last_updated = $2
		WHERE vendor_id = $1 AND active_order_count > 0
		RETURNING ` + queueColumns

	st, err := scanQueue(r.db.QueryRow(ctx, query, vendorID, now))
	if err == nil {
		return models.CounterChange{State: *st}, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.CounterChange{}, fmt.Errorf("repository.DecrementQueue: %w", err)
	}

	repair := `
		INSERT INTO vendor_queue_state (vendor_id, active_order_count, average_prep_minutes, last_updated)
		VALUES ($1, 0, 0, $2)
		ON CONFLICT (vendor_id) DO UPDATE SET last_updated = EXCLUDED.last_updated
		RETURNING ` + queueColumns
	st, err = scanQueue(r.db.QueryRow(ctx, repair, vendorID, now))
	if err != nil {
		return models.CounterChange{}, fmt.Errorf("repository.DecrementQueue: %w", err)
	}
	return models.CounterChange{State: *st, Underflow: true}, nil
}

func (r *QueueRepository) Subscribe(vendorID string) *feed.Subscription[*models.VendorQueueState] {
	var filter func(*models.VendorQueueState) bool
	if vendorID != "" {
		filter = func(st *models.VendorQueueState) bool { return st.VendorID == vendorID }
	}
	return r.broker.Subscribe(filter, feed.DefaultBuffer)
}
