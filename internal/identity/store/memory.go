package store

import (
	"context"
	"fmt"
	"sync"

	"visitid/internal/identity/models"
	"visitid/pkg/platform/sentinel"
)

// InMemoryStore keeps identity records in process. It favors clarity over
// performance and backs unit tests and single-node deployments. Secondary
// indexes mirror the unique columns of the Postgres schema so the same
// conflicts surface from both implementations.
type InMemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	byID     map[int64]models.Identity
	byToken  map[string]int64
	byHandle map[string]int64
	byPhone  map[string]int64
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[int64]models.Identity),
		byToken:  make(map[string]int64),
		byHandle: make(map[string]int64),
		byPhone:  make(map[string]int64),
	}
}

func (s *InMemoryStore) FindByVisitorToken(_ context.Context, token string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, fmt.Errorf("find by visitor token: %w", sentinel.ErrNotFound)
	}
	rec := s.byID[id]
	return &rec, nil
}

func (s *InMemoryStore) CheckUnique(_ context.Context, attr UniqueAttr, value string, excludeID int64) error {
	if value == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkUniqueLocked(attr, value, excludeID)
}

func (s *InMemoryStore) checkUniqueLocked(attr UniqueAttr, value string, excludeID int64) error {
	index, err := s.indexFor(attr)
	if err != nil {
		return err
	}
	if id, ok := index[value]; ok && id != excludeID {
		return &ConflictError{Attr: attr}
	}
	return nil
}

func (s *InMemoryStore) indexFor(attr UniqueAttr) (map[string]int64, error) {
	switch attr {
	case AttrVisitorToken:
		return s.byToken, nil
	case AttrUserHandle:
		return s.byHandle, nil
	case AttrPhone:
		return s.byPhone, nil
	default:
		return nil, fmt.Errorf("unknown unique attribute %q", attr)
	}
}

func (s *InMemoryStore) Insert(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Mirror the engine-level constraints: the insert itself re-checks
	// uniqueness so racing writers that passed CheckUnique still lose here.
	if err := s.checkUniqueLocked(AttrVisitorToken, identity.VisitorToken, 0); err != nil {
		return err
	}
	if identity.UserHandle != "" {
		if err := s.checkUniqueLocked(AttrUserHandle, identity.UserHandle, 0); err != nil {
			return err
		}
	}
	if identity.Phone != "" {
		if err := s.checkUniqueLocked(AttrPhone, identity.Phone, 0); err != nil {
			return err
		}
	}

	s.nextID++
	identity.ID = s.nextID
	s.byID[identity.ID] = *identity
	s.indexLocked(*identity)
	return nil
}

func (s *InMemoryStore) UpdateByID(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.byID[identity.ID]
	if !ok {
		return fmt.Errorf("update identity %d: %w", identity.ID, sentinel.ErrNotFound)
	}
	if err := s.checkUniqueLocked(AttrVisitorToken, identity.VisitorToken, identity.ID); err != nil {
		return err
	}
	if identity.UserHandle != "" {
		if err := s.checkUniqueLocked(AttrUserHandle, identity.UserHandle, identity.ID); err != nil {
			return err
		}
	}
	if identity.Phone != "" {
		if err := s.checkUniqueLocked(AttrPhone, identity.Phone, identity.ID); err != nil {
			return err
		}
	}

	s.unindexLocked(prev)
	s.byID[identity.ID] = *identity
	s.indexLocked(*identity)
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

func (s *InMemoryStore) indexLocked(rec models.Identity) {
	s.byToken[rec.VisitorToken] = rec.ID
	if rec.UserHandle != "" {
		s.byHandle[rec.UserHandle] = rec.ID
	}
	if rec.Phone != "" {
		s.byPhone[rec.Phone] = rec.ID
	}
}

func (s *InMemoryStore) unindexLocked(rec models.Identity) {
	delete(s.byToken, rec.VisitorToken)
	if rec.UserHandle != "" {
		delete(s.byHandle, rec.UserHandle)
	}
	if rec.Phone != "" {
		delete(s.byPhone, rec.Phone)
	}
}
