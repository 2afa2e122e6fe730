package audit

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
	seen   map[uuid.UUID]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{seen: make(map[uuid.UUID]struct{})}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.seen = make(map[uuid.UUID]struct{})
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID != uuid.Nil {
		if _, dup := s.seen[event.ID]; dup {
			return nil
		}
		s.seen[event.ID] = struct{}{}
	}
	event.Attributes = maps.Clone(event.Attributes)
	s.events = append(s.events, event)
	return nil
}

// ListByCID returns matching events newest first.
func (s *InMemoryStore) ListByCID(_ context.Context, cid string, filter ListFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if e.CID != cid || (filter.Action != "" && e.Action != filter.Action) {
			continue
		}
		e.Attributes = maps.Clone(e.Attributes)
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// All returns every stored event in insertion order.
func (s *InMemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}
