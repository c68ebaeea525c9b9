package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"fingov/internal/sla/models"
	"fingov/pkg/platform/sentinel"
)

type policyKey struct {
	tenantID string
	state    string
}

// InMemoryStore keeps SLA instances and the policy matrix in memory for
// tests. Row locking degrades to map access under one mutex, which preserves
// the sweep's observable behavior in a single process.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*models.Instance
	policies  map[policyKey]models.Policy
}

// NewMemory constructs an empty in-memory SLA store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[string]*models.Instance),
		policies:  make(map[policyKey]models.Policy),
	}
}

// SetPolicy seeds one policy matrix row.
func (s *InMemoryStore) SetPolicy(policy models.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policyKey{policy.TenantID, policy.State}] = policy
}

func copyInstance(i *models.Instance) *models.Instance {
	out := *i
	if i.BreachedAt != nil {
		at := *i.BreachedAt
		out.BreachedAt = &at
	}
	return &out
}

func (s *InMemoryStore) Create(_ context.Context, instance *models.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[instance.ID] = copyInstance(instance)
	return nil
}

func (s *InMemoryStore) DeleteUnbreached(_ context.Context, tenantID, entityType, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, instance := range s.instances {
		if instance.TenantID == tenantID &&
			instance.EntityType == entityType &&
			instance.EntityID == entityID &&
			!instance.Breached {
			delete(s.instances, id)
		}
	}
	return nil
}

func (s *InMemoryStore) SelectDue(_ context.Context, now time.Time, limit int) ([]*models.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*models.Instance
	for _, instance := range s.instances {
		if instance.Breached || instance.DueAt.After(now) {
			continue
		}
		due = append(due, copyInstance(instance))
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// LockDue re-reads the instance. Map access under the store mutex stands in
// for the row lock; the breached re-check in the sweep carries the idempotency
// guarantee here.
func (s *InMemoryStore) LockDue(_ context.Context, id string) (*models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, ok := s.instances[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyInstance(instance), nil
}

func (s *InMemoryStore) MarkBreached(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, ok := s.instances[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	at = at.UTC()
	instance.Breached = true
	instance.BreachedAt = &at
	instance.UpdatedAt = at
	return nil
}

func (s *InMemoryStore) FindPolicy(_ context.Context, tenantID, state string) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.policies[policyKey{tenantID, state}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &policy, nil
}

// Find returns the instance by ID, for test assertions.
func (s *InMemoryStore) Find(id string) (*models.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	instance, ok := s.instances[id]
	if !ok {
		return nil, false
	}
	return copyInstance(instance), true
}

// Active returns the unbreached instance for an entity, for test assertions.
func (s *InMemoryStore) Active(tenantID, entityType, entityID string) (*models.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, instance := range s.instances {
		if instance.TenantID == tenantID &&
			instance.EntityType == entityType &&
			instance.EntityID == entityID &&
			!instance.Breached {
			return copyInstance(instance), true
		}
	}
	return nil, false
}
