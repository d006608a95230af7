package memory

import (
	"context"
	"sort"
	"sync"

	"foodtruck-preorder/internal/models"
)

// Directory is a read-only vendor and customer lookup seeded at startup.
type Directory struct {
	mu        sync.RWMutex
	vendors   map[string]models.Vendor
	customers map[string]models.Customer
}

func NewDirectory(vendors []models.Vendor, customers []models.Customer) *Directory {
	d := &Directory{
		vendors:   make(map[string]models.Vendor, len(vendors)),
		customers: make(map[string]models.Customer, len(customers)),
	}
	for _, v := range vendors {
		d.vendors[v.ID] = v
	}
	for _, c := range customers {
		d.customers[c.ID] = c
	}
	return d
}

func (d *Directory) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.vendors[id]
	if !ok {
		return nil, models.ErrVendorNotFound
	}
	return &v, nil
}

func (d *Directory) ListVendors(ctx context.Context) ([]*models.Vendor, error) {
	d.mu.RLock()
	out := make([]*models.Vendor, 0, len(d.vendors))
	for _, v := range d.vendors {
		v := v
		out = append(out, &v)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Directory) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.customers[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

// GetTier treats unknown customers as standard.
func (d *Directory) GetTier(ctx context.Context, id string) (models.CustomerTier, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.customers[id]; ok && c.Tier != "" {
		return c.Tier, nil
	}
	return models.TierStandard, nil
}
