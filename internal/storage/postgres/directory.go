package postgres

import (
	"context"
	"errors"
	"fmt"

	"foodtruck-preorder/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory reads vendors and customers from their tables.
type Directory struct {
	db *pgxpool.Pool
}

func (d *Directory) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	var v models.Vendor
	err := d.db.QueryRow(ctx,
		`SELECT id, name, average_prep_minutes, custom_prep_minutes, use_custom_prep FROM vendors WHERE id = $1`, id,
	).Scan(&v.ID, &v.Name, &v.AveragePrepMinutes, &v.CustomPrepMinutes, &v.UseCustomPrep)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrVendorNotFound
		}
		return nil, fmt.Errorf("repository.GetVendor: %w", err)
	}
	return &v, nil
}

func (d *Directory) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	var tier string
	err := d.db.QueryRow(ctx, `SELECT id, name, email, tier FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &tier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.GetCustomer: %w", err)
	}
	c.Tier = models.CustomerTier(tier)
	return &c, nil
}

// GetTier treats unknown customers as standard.
func (d *Directory) GetTier(ctx context.Context, id string) (models.CustomerTier, error) {
	c, err := d.GetCustomer(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return models.TierStandard, nil
	}
	if err != nil {
		return "", err
	}
	return c.Tier, nil
}

// Seed upserts the configured vendors and customers in one transaction.
func (d *Directory) Seed(ctx context.Context, vendors []models.Vendor, customers []models.Customer) error {
	batch := &pgx.Batch{}
	for _, v := range vendors {
		batch.Queue(`
			INSERT INTO vendors (id, name, average_prep_minutes, custom_prep_minutes, use_custom_prep)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name,
				average_prep_minutes = EXCLUDED.average_prep_minutes,
				custom_prep_minutes = EXCLUDED.custom_prep_minutes,
				use_custom_prep = EXCLUDED.use_custom_prep`,
			v.ID, v.Name, v.AveragePrepMinutes, v.CustomPrepMinutes, v.UseCustomPrep)
	}
	for _, c := range customers {
		tier := c.Tier
		if tier == "" {
			tier = models.TierStandard
		}
		batch.Queue(`
			INSERT INTO customers (id, name, email, tier) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, tier = EXCLUDED.tier`,
			c.ID, c.Name, c.Email, string(tier))
	}
	if batch.Len() == 0 {
		return nil
	}

	tx, err := d.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.Seed: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("repository.Seed: %w", err)
	}
	return tx.Commit(ctx)
}
