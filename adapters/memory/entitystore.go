// Package memory provides in-memory implementations of the ports, used for
// tests and for running without a portal backend.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/mesgate/domain/entity"
	"github.com/artpar/mesgate/ports"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = ports.ErrNotFound

// EntityStore is an in-memory implementation of ports.EntityStore.
type EntityStore struct {
	mu       sync.RWMutex
	entities map[string]entity.Entity // by entity id
}

// NewEntityStore creates a new in-memory entity store.
func NewEntityStore() *EntityStore {
	return &EntityStore{entities: make(map[string]entity.Entity)}
}

// List returns all entities ordered by entity id.
func (s *EntityStore) List(ctx context.Context) ([]entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get retrieves an entity by entity id.
func (s *EntityStore) Get(ctx context.Context, id string) (entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return entity.Entity{}, ErrNotFound
	}
	return e, nil
}

// FindMeter retrieves the meter entity with the given meter code.
func (s *EntityStore) FindMeter(ctx context.Context, meterCode string) (entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entities {
		if e.DeviceClass == entity.ClassMeter && e.Code == meterCode {
			return e, nil
		}
	}
	return entity.Entity{}, ErrNotFound
}

// Upsert creates or replaces entities.
func (s *EntityStore) Upsert(ctx context.Context, entities ...entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entities {
		s.entities[e.ID] = e
	}
	return nil
}

// Count returns the number of stored entities.
func (s *EntityStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

var _ ports.EntityStore = (*EntityStore)(nil)
