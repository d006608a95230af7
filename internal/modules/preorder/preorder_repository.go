package preorder

import (
	"context"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
)

// RepositoryInterface defines the contract for the pre-order store.
// Implementations live in internal/storage.
type RepositoryInterface interface {
	Create(ctx context.Context, order *models.PreOrder) error
	// FindByID returns models.ErrOrderNotFound when the id is unknown.
	FindByID(ctx context.Context, id string) (*models.PreOrder, error)
	// List returns matching orders oldest first.
	List(ctx context.Context, filter models.OrderFilter) ([]*models.PreOrder, error)
	// UpdateStatus applies patch only if the stored status is still from, and returns
	// models.ErrConflict otherwise.
	UpdateStatus(ctx context.Context, id string, from models.OrderStatus, patch models.StatusPatch) (*models.PreOrder, error)
	// Subscribe streams committed snapshots matching filter.
	Subscribe(filter models.OrderFilter) *feed.Subscription[*models.PreOrder]
}
