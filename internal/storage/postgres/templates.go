package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const templateColumns = `id, customer_id, customer_name, vendor_id, items, pickup_time_of_day, notes,
	total_amount, days_of_week, active, total_weeks, next_execution, last_materialized_on,
	created_at, updated_at`

// TemplateRepository stores recurring templates.
type TemplateRepository struct {
	db     *pgxpool.Pool
	broker *feed.Broker[*models.RecurringTemplate]
}

func (r *TemplateRepository) Create(ctx context.Context, t *models.RecurringTemplate) error {
	query := `
		INSERT INTO recurring_templates (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.Exec(ctx, query,
		t.ID, t.CustomerID, t.CustomerName, t.VendorID, t.Items, t.PickupTimeOfDay, t.Notes,
		t.TotalAmount, t.DaysOfWeek, t.Active, t.TotalWeeks, t.NextExecution, nullString(t.LastMaterializedOn),
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("repository.CreateTemplate: %w", models.ErrConflict)
		}
		return fmt.Errorf("repository.CreateTemplate: %w", err)
	}
	return nil
}

func scanTemplate(row pgx.Row) (*models.RecurringTemplate, error) {
	var t models.RecurringTemplate
	var marker *string
	err := row.Scan(
		&t.ID,
		&t.CustomerID,
		&t.CustomerName,
		&t.VendorID,
		&t.Items,
		&t.PickupTimeOfDay,
		&t.Notes,
		&t.TotalAmount,
		&t.DaysOfWeek,
		&t.Active,
		&t.TotalWeeks,
		&t.NextExecution,
		&marker,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}
	t.LastMaterializedOn = deref(marker)
	return &t, nil
}

func (r *TemplateRepository) Get(ctx context.Context, id string) (*models.RecurringTemplate, error) {
	t, err := scanTemplate(r.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM recurring_templates WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("repository.GetTemplate: %w", err)
	}
	return t, nil
}

// Update writes the editable columns. last_materialized_on and created_at are left alone.
func (r *TemplateRepository) Update(ctx context.Context, t *models.RecurringTemplate) error {
	query := `
		UPDATE recurring_templates
		SET items = $2, pickup_time_of_day = $3, notes = $4, total_amount = $5, days_of_week = $6,
			active = $7, total_weeks = $8, next_execution = $9, updated_at = $10
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, t.ID, t.Items, t.PickupTimeOfDay, t.Notes, t.TotalAmount,
		t.DaysOfWeek, t.Active, t.TotalWeeks, t.NextExecution, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository.UpdateTemplate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrTemplateNotFound
	}
	return nil
}

// SetMaterialized is a compare-and-swap on last_materialized_on, so two instances
// racing on the same day create one order between them.
func (r *TemplateRepository) SetMaterialized(ctx context.Context, id, prev, date string, next, now time.Time) error {
	query := `
		UPDATE recurring_templates
		SET last_materialized_on = $3, next_execution = $4, updated_at = $5
		WHERE id = $1 AND COALESCE(last_materialized_on, '') = $2`

	tag, err := r.db.Exec(ctx, query, id, prev, nullString(date), next, now)
	if err != nil {
		return fmt.Errorf("repository.SetMaterialized: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("repository.SetMaterialized: %w", models.ErrConflict)
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM recurring_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository.DeleteTemplate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrTemplateNotFound
	}
	return nil
}

func (r *TemplateRepository) List(ctx context.Context, f models.TemplateFilter) ([]*models.RecurringTemplate, error) {
	var where []string
	var args []any
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if f.VendorID != "" {
		args = append(args, f.VendorID)
		where = append(where, fmt.Sprintf("vendor_id = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "active")
	}

	query := `SELECT ` + templateColumns + ` FROM recurring_templates`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.ListTemplates: %w", err)
	}
	defer rows.Close()

	templates := []*models.RecurringTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.ListTemplates: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (r *TemplateRepository) Subscribe(filter models.TemplateFilter) *feed.Subscription[*models.RecurringTemplate] {
	return r.broker.Subscribe(filter.Matches, feed.DefaultBuffer)
}
