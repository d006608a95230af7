package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, customer_id, customer_name, vendor_id, vendor_name, items, pickup_time, status,
	estimated_wait_minutes, actual_wait_minutes, is_recurring, recurring_template_id, notes,
	total_amount, created_at, updated_at`

// OrderRepository stores pre-orders in the preorders table.
type OrderRepository struct {
	db     *pgxpool.Pool
	broker *feed.Broker[*models.PreOrder]
}

// Create inserts a new pre-order.
func (r *OrderRepository) Create(ctx context.Context, o *models.PreOrder) error {
	query := `
		INSERT INTO preorders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.Exec(ctx, query,
		o.ID, o.CustomerID, o.CustomerName, o.VendorID, o.VendorName, o.Items, o.PickupTime, string(o.Status),
		o.EstimatedWaitMinutes, o.ActualWaitMinutes, o.IsRecurring, nullString(o.RecurringTemplateID), o.Notes,
		o.TotalAmount, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("repository.CreateOrder: %w", models.ErrConflict)
		}
		return fmt.Errorf("repository.CreateOrder: %w", err)
	}
	return nil
}

// scanOrder is a helper function to scan a row into a PreOrder model.
func scanOrder(row pgx.Row) (*models.PreOrder, error) {
	var o models.PreOrder
	var status string
	var templateID *string
	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.CustomerName,
		&o.VendorID,
		&o.VendorName,
		&o.Items,
		&o.PickupTime,
		&status,
		&o.EstimatedWaitMinutes,
		&o.ActualWaitMinutes,
		&o.IsRecurring,
		&templateID,
		&o.Notes,
		&o.TotalAmount,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to scan pre-order: %w", err)
	}
	o.Status = models.OrderStatus(status)
	o.RecurringTemplateID = deref(templateID)
	return &o, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*models.PreOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM preorders WHERE id = $1`
	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("repository.FindOrderByID: %w", err)
	}
	return o, nil
}

// List returns matching orders oldest first.
func (r *OrderRepository) List(ctx context.Context, f models.OrderFilter) ([]*models.PreOrder, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.VendorID != "" {
		add("vendor_id = $%d", f.VendorID)
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if !f.PickupFrom.IsZero() {
		add("pickup_time >= $%d", f.PickupFrom)
	}
	if !f.PickupTo.IsZero() {
		add("pickup_time < $%d", f.PickupTo)
	}

	query := `SELECT ` + orderColumns + ` FROM preorders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.ListOrders: %w", err)
	}
	defer rows.Close()

	orders := []*models.PreOrder{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.ListOrders: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ListOrders: %w", err)
	}
	return orders, nil
}

// UpdateStatus applies patch only while the row still has status from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from models.OrderStatus, patch models.StatusPatch) (*models.PreOrder, error) {
	query := `
		UPDATE preorders
		SET status = $3, updated_at = $4, actual_wait_minutes = COALESCE($5, actual_wait_minutes)
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns

	o, err := scanOrder(r.db.QueryRow(ctx, query, id, string(from), string(patch.Status), patch.UpdatedAt, patch.ActualWaitMinutes))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, models.ErrOrderNotFound) {
		return nil, fmt.Errorf("repository.UpdateOrderStatus: %w", err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM preorders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("repository.UpdateOrderStatus: %w", err)
	}
	if !exists {
		return nil, models.ErrOrderNotFound
	}
	return nil, fmt.Errorf("repository.UpdateOrderStatus: %w", models.ErrConflict)
}

// Subscribe streams rows committed by any instance.
func (r *OrderRepository) Subscribe(filter models.OrderFilter) *feed.Subscription[*models.PreOrder] {
	return r.broker.Subscribe(filter.Matches, feed.DefaultBuffer)
}
