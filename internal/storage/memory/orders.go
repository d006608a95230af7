// Package memory is the in-process storage driver. Every store publishes committed
// snapshots to its change feed while still holding the record's lock, so
// subscribers see one record's updates in commit order.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/pkg/keymutex"
	"foodtruck-preorder/pkg/logger"
)

// OrderStore keeps pre-orders keyed by id.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*models.PreOrder
	seq    []string
	locks  *keymutex.KeyMutex
	broker *feed.Broker[*models.PreOrder]
}

func NewOrderStore(log *logger.Logger) *OrderStore {
	return &OrderStore{
		orders: make(map[string]*models.PreOrder),
		locks:  keymutex.New(),
		broker: feed.NewBroker[*models.PreOrder]("preorders", log),
	}
}

func (s *OrderStore) Create(ctx context.Context, o *models.PreOrder) error {
	unlock := s.locks.Lock(o.ID)
	defer unlock()

	s.mu.Lock()
	if _, exists := s.orders[o.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("memory.OrderStore.Create: %w", models.ErrConflict)
	}
	s.orders[o.ID] = o.Clone()
	s.seq = append(s.seq, o.ID)
	s.mu.Unlock()

	s.broker.Publish(o.Clone())
	return nil
}

func (s *OrderStore) FindByID(ctx context.Context, id string) (*models.PreOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *OrderStore) List(ctx context.Context, filter models.OrderFilter) ([]*models.PreOrder, error) {
	s.mu.RLock()
	out := make([]*models.PreOrder, 0, len(s.seq))
	for _, id := range s.seq {
		if o := s.orders[id]; filter.Matches(o) {
			out = append(out, o.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *OrderStore) UpdateStatus(ctx context.Context, id string, from models.OrderStatus, patch models.StatusPatch) (*models.PreOrder, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.Lock()
	o, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return nil, models.ErrOrderNotFound
	}
	if o.Status != from {
		s.mu.Unlock()
		return nil, fmt.Errorf("memory.OrderStore.UpdateStatus: status is %s: %w", o.Status, models.ErrConflict)
	}
	o.Status = patch.Status
	o.UpdatedAt = patch.UpdatedAt
	if patch.ActualWaitMinutes != nil {
		v := *patch.ActualWaitMinutes
		o.ActualWaitMinutes = &v
	}
	snapshot := o.Clone()
	s.mu.Unlock()

	s.broker.Publish(snapshot.Clone())
	return snapshot, nil
}

func (s *OrderStore) Subscribe(filter models.OrderFilter) *feed.Subscription[*models.PreOrder] {
	return s.broker.Subscribe(filter.Matches, feed.DefaultBuffer)
}

// Close ends every live subscription.
func (s *OrderStore) Close() {
	s.broker.Close()
}
