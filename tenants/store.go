package tenants

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store manages tenant persistence.
type Store interface {
	// Put stores a new tenant. Fails if the id is already taken.
	Put(t *Tenant) error

	// Get retrieves a tenant by id.
	Get(id string) (*Tenant, error)

	// List returns all tenants sorted by id.
	List() ([]*Tenant, error)

	// Update replaces an existing tenant in place.
	Update(t *Tenant) error

	// Delete removes a tenant.
	Delete(id string) error
}

// ErrNotFound is returned when a tenant id is unknown.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("tenant %s not found", e.ID)
}

// InMemoryStore implements Store using an in-memory map.
// Thread-safe with RWMutex; suitable for tests and single-node deployments.
type InMemoryStore struct {
	tenants map[string]*Tenant
	mu      sync.RWMutex
}

// NewInMemoryStore creates a new in-memory tenant store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tenants: make(map[string]*Tenant),
	}
}

// Put stores a new tenant and stamps its timestamps.
func (s *InMemoryStore) Put(t *Tenant) error {
	if t.ID == "" {
		return fmt.Errorf("tenant requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[t.ID]; exists {
		return fmt.Errorf("tenant %s already exists", t.ID)
	}

	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.tenants[t.ID] = t
	return nil
}

// Get retrieves a tenant by id.
func (s *InMemoryStore) Get(id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tenants[id]; ok {
		return t, nil
	}
	return nil, &ErrNotFound{ID: id}
}

// List returns all tenants sorted by id.
func (s *InMemoryStore) List() ([]*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update replaces an existing tenant, preserving CreatedAt.
func (s *InMemoryStore) Update(t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tenants[t.ID]
	if !ok {
		return &ErrNotFound{ID: t.ID}
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now()
	s.tenants[t.ID] = t
	return nil
}

// Delete removes a tenant.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[id]; !ok {
		return &ErrNotFound{ID: id}
	}
	delete(s.tenants, id)
	return nil
}
