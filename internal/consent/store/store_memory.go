package store

import (
	"context"
	"sync"

	"cidledger/internal/consent/models"
	"cidledger/pkg/domain"
	"cidledger/pkg/platform/sentinel"
)

// InMemoryStore keeps chains in insertion order per CID. Append enforces the
// expected-previous precondition so a stale head cannot fork a chain.
type InMemoryStore struct {
	mu     sync.RWMutex
	chains map[domain.CID][]*models.Event
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{chains: make(map[domain.CID][]*models.Event)}
}

func (s *InMemoryStore) Head(_ context.Context, cid domain.CID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[cid]
	if len(chain) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return chain[len(chain)-1].Clone(), nil
}

// Append stores event if it links to the current head.
func (s *InMemoryStore) Append(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[event.CID]
	if len(chain) == 0 {
		if event.PreviousEventID != nil || event.Sequence != 1 {
			return sentinel.ErrConflict
		}
	} else {
		head := chain[len(chain)-1]
		if event.PreviousEventID == nil || *event.PreviousEventID != head.ID || event.Sequence != head.Sequence+1 {
			return sentinel.ErrConflict
		}
	}
	s.chains[event.CID] = append(chain, event.Clone())
	return nil
}

func (s *InMemoryStore) ListByCID(_ context.Context, cid domain.CID) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneChain(s.chains[cid]), nil
}

// ListByCIDs returns chains for the given CIDs; CIDs without events are absent.
func (s *InMemoryStore) ListByCIDs(_ context.Context, cids []domain.CID) (map[domain.CID][]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.CID][]*models.Event, len(cids))
	for _, cid := range cids {
		if chain := s.chains[cid]; len(chain) > 0 {
			out[cid] = cloneChain(chain)
		}
	}
	return out, nil
}

func (s *InMemoryStore) CountEvents(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, chain := range s.chains {
		n += int64(len(chain))
	}
	return n, nil
}

func (s *InMemoryStore) CountConsentStates(_ context.Context) (ConsentStates, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var states ConsentStates
	for _, chain := range s.chains {
		if len(chain) == 0 {
			continue
		}
		if stateOf(chain) == models.ConsentActive {
			states.Active++
		} else {
			states.Revoked++
		}
	}
	return states, nil
}

func cloneChain(chain []*models.Event) []*models.Event {
	out := make([]*models.Event, len(chain))
	for i, e := range chain {
		out[i] = e.Clone()
	}
	return out
}
