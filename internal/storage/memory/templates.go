package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"foodtruck-preorder/internal/feed"
	"foodtruck-preorder/internal/models"
	"foodtruck-preorder/pkg/keymutex"
	"foodtruck-preorder/pkg/logger"
)

// TemplateStore keeps recurring templates keyed by id.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*models.RecurringTemplate
	locks     *keymutex.KeyMutex
	broker    *feed.Broker[*models.RecurringTemplate]
}

func NewTemplateStore(log *logger.Logger) *TemplateStore {
	return &TemplateStore{
		templates: make(map[string]*models.RecurringTemplate),
		locks:     keymutex.New(),
		broker:    feed.NewBroker[*models.RecurringTemplate]("templates", log),
	}
}

func (s *TemplateStore) Create(ctx context.Context, t *models.RecurringTemplate) error {
	unlock := s.locks.Lock(t.ID)
	defer unlock()

	s.mu.Lock()
	if _, exists := s.templates[t.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("memory.TemplateStore.Create: %w", models.ErrConflict)
	}
	s.templates[t.ID] = t.Clone()
	s.mu.Unlock()

	s.broker.Publish(t.Clone())
	return nil
}

func (s *TemplateStore) Get(ctx context.Context, id string) (*models.RecurringTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, models.ErrTemplateNotFound
	}
	return t.Clone(), nil
}

// Update replaces the editable fields of t. The materialization marker is kept.
func (s *TemplateStore) Update(ctx context.Context, t *models.RecurringTemplate) error {
	unlock := s.locks.Lock(t.ID)
	defer unlock()

	s.mu.Lock()
	cur, ok := s.templates[t.ID]
	if !ok {
		s.mu.Unlock()
		return models.ErrTemplateNotFound
	}
	next := t.Clone()
	next.LastMaterializedOn = cur.LastMaterializedOn
	next.CreatedAt = cur.CreatedAt
	s.templates[t.ID] = next
	snapshot := next.Clone()
	s.mu.Unlock()

	s.broker.Publish(snapshot)
	return nil
}

// SetMaterialized moves the marker from prev to date only if it still reads prev.
func (s *TemplateStore) SetMaterialized(ctx context.Context, id, prev, date string, next, now time.Time) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.Lock()
	cur, ok := s.templates[id]
	if !ok {
		s.mu.Unlock()
		return models.ErrTemplateNotFound
	}
	if cur.LastMaterializedOn != prev {
		s.mu.Unlock()
		return fmt.Errorf("memory.TemplateStore.SetMaterialized: marker is %q: %w", cur.LastMaterializedOn, models.ErrConflict)
	}
	cur.LastMaterializedOn = date
	cur.NextExecution = next
	cur.UpdatedAt = now
	snapshot := cur.Clone()
	s.mu.Unlock()

	s.broker.Publish(snapshot)
	return nil
}

func (s *TemplateStore) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return models.ErrTemplateNotFound
	}
	delete(s.templates, id)
	return nil
}

// List returns matching templates oldest first.
func (s *TemplateStore) List(ctx context.Context, filter models.TemplateFilter) ([]*models.RecurringTemplate, error) {
	s.mu.RLock()
	out := make([]*models.RecurringTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		if filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *TemplateStore) Subscribe(filter models.TemplateFilter) *feed.Subscription[*models.RecurringTemplate] {
	return s.broker.Subscribe(filter.Matches, feed.DefaultBuffer)
}

func (s *TemplateStore) Close() {
	s.broker.Close()
}
