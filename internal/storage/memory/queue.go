package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/pkg/keymutex"
	"foodtruck-preorder/pkg/logger"
)

// QueueStore keeps one counter per vendor. Updates for different vendors never
// contend.
type QueueStore struct {
	mu     sync.RWMutex
	states map[string]*models.VendorQueueState
	locks  *keymutex.KeyMutex
	broker *feed.Broker[*models.VendorQueueState]
}

func NewQueueStore(log *logger.Logger) *QueueStore {
	return &QueueStore{
		states: make(map[string]*models.VendorQueueState),
		locks:  keymutex.New(),
		broker: feed.NewBroker[*models.VendorQueueState]("queue", log),
	}
}

func (s *QueueStore) Get(ctx context.Context, vendorID string) (*models.VendorQueueState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[vendorID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *QueueStore) List(ctx context.Context) ([]*models.VendorQueueState, error) {
	s.mu.RLock()
	out := make([]*models.VendorQueueState, 0, len(s.states))
	for _, st := range s.states {
		cp := *st
		out = append(out, &cp)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].VendorID < out[j].VendorID })
	return out, nil
}

func (s *QueueStore) Increment(ctx context.Context, vendorID string, averagePrep float64, now time.Time) (models.CounterChange, error) {
	return s.apply(vendorID, averagePrep, now, 1)
}

func (s *QueueStore) Decrement(ctx context.Context, vendorID string, now time.Time) (models.CounterChange, error) {
	return s.apply(vendorID, 0, now, -1)
}

func (s *QueueStore) apply(vendorID string, averagePrep float64, now time.Time, delta int) (models.CounterChange, error) {
	unlock := s.locks.Lock(vendorID)
	defer unlock()

	s.mu.Lock()
	st, ok := s.states[vendorID]
	if !ok {
		st = &models.VendorQueueState{VendorID: vendorID, AveragePrepMinutes: averagePrep}
		s.states[vendorID] = st
	}
	var change models.CounterChange
	if st.ActiveOrderCount+delta < 0 {
		st.ActiveOrderCount = 0
		change.Underflow = true
	} else {
		st.ActiveOrderCount += delta
	}
	st.LastUpdated = now
	change.State = *st
	s.mu.Unlock()

	snapshot := change.State
	s.broker.Publish(&snapshot)
	return change, nil
}

// Subscribe follows one vendor, or all vendors when vendorID is empty.
func (s *QueueStore) Subscribe(vendorID string) *feed.Subscription[*models.VendorQueueState] {
	var filter func(*models.VendorQueueState) bool
	if vendorID != "" {
		filter = func(st *models.VendorQueueState) bool { return st.VendorID == vendorID }
	}
	return s.broker.Subscribe(filter, feed.DefaultBuffer)
}

func (s *QueueStore) Close() {
	s.broker.Close()
}
