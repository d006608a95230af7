package queue

import (
	"context"
	"time"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
)

// RepositoryInterface defines the contract for the queue-state store. Increment and
// Decrement must be atomic per vendor.
type RepositoryInterface interface {
	// Get returns models.ErrNotFound when the vendor has no queue state yet.
	Get(ctx context.Context, vendorID string) (*models.VendorQueueState, error)
	List(ctx context.Context) ([]*models.VendorQueueState, error)
	// Increment creates the state with averagePrep on first use.
	Increment(ctx context.Context, vendorID string, averagePrep float64, now time.Time) (models.CounterChange, error)
	// Decrement never goes below zero; it reports Underflow instead.
	Decrement(ctx context.Context, vendorID string, now time.Time) (models.CounterChange, error)
	Subscribe(vendorID string) *feed.Subscription[*models.VendorQueueState]
}
