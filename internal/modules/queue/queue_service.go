package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/pkg/logger"
)

// ServiceInterface defines the contract for the queue state tracker.
type ServiceInterface interface {
	Get(ctx context.Context, vendorID string) (*models.VendorQueueState, error)
	List(ctx context.Context) ([]*models.VendorQueueState, error)
	Subscribe(vendorID string) *feed.Subscription[*models.VendorQueueState]
}

type VendorDirectory interface {
	GetVendor(ctx context.Context, id string) (*models.Vendor, error)
}

// Service tracks per-vendor active order counts.
type Service struct {
	repo           RepositoryInterface
	vendors        VendorDirectory
	defaultAvgPrep float64
	log            *logger.Logger
	now            func() time.Time
}

// NewService creates a new queue service. defaultAvgPrep seeds vendors that have no
// average of their own.
func NewService(repo RepositoryInterface, vendors VendorDirectory, defaultAvgPrep float64, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:           repo,
		vendors:        vendors,
		defaultAvgPrep: defaultAvgPrep,
		log:            log.WithComponent("queue"),
		now:            time.Now,
	}
}

// Get returns the vendor's state, or models.ErrNotFound before its first order.
func (s *Service) Get(ctx context.Context, vendorID string) (*models.VendorQueueState, error) {
	state, err := s.repo.Get(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("queue.Get: %w", err)
	}
	return state, nil
}

func (s *Service) List(ctx context.Context) ([]*models.VendorQueueState, error) {
	states, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue.List: %w", err)
	}
	return states, nil
}

// Increment takes a queue slot for a newly admitted order.
func (s *Service) Increment(ctx context.Context, vendorID string) (*models.VendorQueueState, error) {
	avg := s.defaultAvgPrep
	if v, err := s.vendors.GetVendor(ctx, vendorID); err == nil {
		if v.AveragePrepMinutes > 0 {
			avg = v.AveragePrepMinutes
		}
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("queue.Increment: %w", err)
	}

	change, err := s.repo.Increment(ctx, vendorID, avg, s.now())
	if err != nil {
		return nil, fmt.Errorf("queue.Increment: %w", err)
	}
	s.log.Debug("queue slot taken", "vendor_id", vendorID, "active_order_count", change.State.ActiveOrderCount)
	return &change.State, nil
}

// Decrement releases a queue slot. A counter already at zero is left at zero and the
// inconsistency is logged, never returned.
func (s *Service) Decrement(ctx context.Context, vendorID string) (*models.VendorQueueState, error) {
	change, err := s.repo.Decrement(ctx, vendorID, s.now())
	if err != nil {
		return nil, fmt.Errorf("queue.Decrement: %w", err)
	}
	if change.Underflow {
		s.log.Warn("queue counter repaired", "vendor_id", vendorID, "error", models.ErrQueueCounterUnderflow)
	} else {
		s.log.Debug("queue slot released", "vendor_id", vendorID, "active_order_count", change.State.ActiveOrderCount)
	}
	return &change.State, nil
}

// Subscribe streams committed queue states. An empty vendorID follows every vendor.
func (s *Service) Subscribe(vendorID string) *feed.Subscription[*models.VendorQueueState] {
	return s.repo.Subscribe(vendorID)
}
