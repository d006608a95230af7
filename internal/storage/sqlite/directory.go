package sqlite

import (
	"context"
	"errors"
	"fmt"

	"foodtruck-preorder/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Directory struct {
	db *gorm.DB
}

func (d *Directory) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	var row vendorRow
	if err := d.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrVendorNotFound
		}
		return nil, fmt.Errorf("sqlite.GetVendor: %w", err)
	}
	return &models.Vendor{
		ID:                 row.ID,
		Name:               row.Name,
		AveragePrepMinutes: row.AveragePrepMinutes,
		CustomPrepMinutes:  row.CustomPrepMinutes,
		UseCustomPrep:      row.UseCustomPrep,
	}, nil
}

func (d *Directory) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var row customerRow
	if err := d.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite.GetCustomer: %w", err)
	}
	return &models.Customer{ID: row.ID, Name: row.Name, Email: row.Email, Tier: models.CustomerTier(row.Tier)}, nil
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

// Seed upserts the configured vendors and customers.
func (d *Directory) Seed(ctx context.Context, vendors []models.Vendor, customers []models.Customer) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{UpdateAll: true})
		for _, v := range vendors {
			row := vendorRow{
				ID:                 v.ID,
				Name:               v.Name,
				AveragePrepMinutes: v.AveragePrepMinutes,
				CustomPrepMinutes:  v.CustomPrepMinutes,
				UseCustomPrep:      v.UseCustomPrep,
			}
			if err := upsert.Create(&row).Error; err != nil {
				return fmt.Errorf("sqlite.Seed: vendor %s: %w", v.ID, err)
			}
		}
		for _, c := range customers {
			tier := c.Tier
			if tier == "" {
				tier = models.TierStandard
			}
			row := customerRow{ID: c.ID, Name: c.Name, Email: c.Email, Tier: string(tier)}
			if err := upsert.Create(&row).Error; err != nil {
				return fmt.Errorf("sqlite.Seed: customer %s: %w", c.ID, err)
			}
		}
		return nil
	})
}
