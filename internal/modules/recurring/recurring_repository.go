package recurring

import (
	"context"
	"time"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
)

// RepositoryInterface defines the contract for the template store.
type RepositoryInterface interface {
	Create(ctx context.Context, t *models.RecurringTemplate) error
	// Get returns models.ErrTemplateNotFound when the id is unknown.
	Get(ctx context.Context, id string) (*models.RecurringTemplate, error)
	// Update stores the editable fields of t. It never touches LastMaterializedOn.
	Update(ctx context.Context, t *models.RecurringTemplate) error
	// SetMaterialized moves the marker from prev to date and stores next, failing with
	// models.ErrConflict when the marker no longer reads prev.
	SetMaterialized(ctx context.Context, id, prev, date string, next, now time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.TemplateFilter) ([]*models.RecurringTemplate, error)
	Subscribe(filter models.TemplateFilter) *feed.Subscription[*models.RecurringTemplate]
}
