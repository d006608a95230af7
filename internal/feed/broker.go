// Package feed is the in-process change feed. Stores publish committed snapshots;
// dashboards and SSE streams subscribe with a filter and cancel when they go away.
package feed

import (
	"sync"
	"sync/atomic"

	"foodtruck-preorder/pkg/logger"
)

const DefaultBuffer = 64

// Broker fans snapshots out to subscribers. Publish never blocks: a subscriber whose
// buffer is full misses that snapshot.
type Broker[T any] struct {
	name   string
	log    *logger.Logger
	mu     sync.RWMutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
	closed bool
}

func NewBroker[T any](name string, log *logger.Logger) *Broker[T] {
	if log == nil {
		log = logger.Nop()
	}
	return &Broker[T]{
		name: name,
		log:  log.WithComponent("feed").With("feed", name),
		subs: make(map[uint64]*Subscription[T]),
	}
}

// Subscription is a live view on a broker. Read from C until it is closed.
type Subscription[T any] struct {
	id      uint64
	ch      chan T
	filter  func(T) bool
	broker  *Broker[T]
	once    sync.Once
	dropped atomic.Int64
}

// Subscribe registers a subscriber. A nil filter receives everything.
func (b *Broker[T]) Subscribe(filter func(T) bool, buffer int) *Subscription[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription[T]{ch: make(chan T, buffer), filter: filter, broker: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		s.once.Do(func() {})
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	return s
}

// Publish delivers v to every matching subscriber. Callers publishing updates of the
// same record must serialize their calls to keep per-record order.
func (b *Broker[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.filter != nil && !s.filter(v) {
			continue
		}
		select {
		case s.ch <- v:
		default:
			n := s.dropped.Add(1)
			b.log.Warn("subscriber buffer full, snapshot dropped", "subscriber", s.id, "dropped_total", n)
		}
	}
}

// Len is the number of live subscribers.
func (b *Broker[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		s.once.Do(func() { close(s.ch) })
	}
}

func (s *Subscription[T]) C() <-chan T { return s.ch }

// Dropped counts snapshots lost to a full buffer.
func (s *Subscription[T]) Dropped() int64 { return s.dropped.Load() }

// Close unsubscribes. Once it returns no further values are delivered.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		delete(b.subs, s.id)
		b.mu.Unlock()
		close(s.ch)
	})
}
