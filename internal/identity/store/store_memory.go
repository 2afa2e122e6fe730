package store

import (
	"context"
	"sort"
	"sync"

	"cidledger/internal/identity/models"
	"cidledger/pkg/domain"
	"cidledger/pkg/platform/sentinel"
)

// InMemoryStore keeps identities, verifications and contacts in maps.
// Intended for tests and local development.
type InMemoryStore struct {
	mu            sync.RWMutex
	identities    map[domain.CID]*models.Identity
	verifications map[domain.CID][]*models.Verification
	contacts      map[domain.CID]map[models.ContactType]*models.Contact
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		identities:    make(map[domain.CID]*models.Identity),
		verifications: make(map[domain.CID][]*models.Verification),
		contacts:      make(map[domain.CID]map[models.ContactType]*models.Contact),
	}
}

// Create inserts the identity and its verification together.
func (s *InMemoryStore) Create(_ context.Context, identity *models.Identity, verification *models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.identities[identity.CID]; exists {
		return sentinel.ErrConflict
	}
	s.identities[identity.CID] = identity.Clone()
	if verification != nil {
		v := *verification
		s.verifications[identity.CID] = append(s.verifications[identity.CID], &v)
	}
	return nil
}

func (s *InMemoryStore) FindByCID(_ context.Context, cid domain.CID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[cid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return identity.Clone(), nil
}

// FindMany returns the identities that exist; missing CIDs are absent from the map.
func (s *InMemoryStore) FindMany(_ context.Context, cids []domain.CID) (map[domain.CID]*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.CID]*models.Identity, len(cids))
	for _, cid := range cids {
		if identity, ok := s.identities[cid]; ok {
			out[cid] = identity.Clone()
		}
	}
	return out, nil
}

// Execute validates and mutates an identity under the store lock. mutate
// reports whether the record changed; unchanged records are not rewritten.
func (s *InMemoryStore) Execute(_ context.Context, cid domain.CID, validate func(*models.Identity) error, mutate func(*models.Identity) bool) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.identities[cid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := stored.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	if mutate(working) {
		s.identities[cid] = working.Clone()
	}
	return working, nil
}

func (s *InMemoryStore) UpsertContact(_ context.Context, contact *models.Contact) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[contact.CID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	byType, ok := s.contacts[contact.CID]
	if !ok {
		byType = make(map[models.ContactType]*models.Contact)
		s.contacts[contact.CID] = byType
	}
	stored := *contact
	if existing, ok := byType[contact.Type]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	byType[contact.Type] = &stored
	out := stored
	return &out, nil
}

func (s *InMemoryStore) ListVerifications(_ context.Context, cid domain.CID) ([]*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Verification, 0, len(s.verifications[cid]))
	for _, v := range s.verifications[cid] {
		c := *v
		out = append(out, &c)
	}
	return out, nil
}

func (s *InMemoryStore) ListContacts(_ context.Context, cid domain.CID) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Contact, 0, len(s.contacts[cid]))
	for _, c := range s.contacts[cid] {
		v := *c
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context) (map[models.Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Status]int64, len(models.AllStatuses))
	for _, identity := range s.identities {
		out[identity.Status]++
	}
	return out, nil
}
