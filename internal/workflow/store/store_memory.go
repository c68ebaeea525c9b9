package store

import (
	"context"
	"sync"

	"fingov/internal/workflow/models"
	"fingov/pkg/platform/sentinel"
)

type instanceKey struct {
	tenantID   string
	entityType string
	entityID   string
}

// InMemoryStore keeps workflow instances in memory for tests and the local
// development path. Copies in, copies out.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[instanceKey]*models.Instance
}

// NewMemory constructs an empty in-memory workflow store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{instances: make(map[instanceKey]*models.Instance)}
}

func keyOf(i *models.Instance) instanceKey {
	return instanceKey{tenantID: i.TenantID, entityType: i.EntityType, entityID: i.EntityID}
}

func copyInstance(i *models.Instance) *models.Instance {
	out := *i
	out.ApprovalChain = append([]string(nil), i.ApprovalChain...)
	if i.Context != nil {
		out.Context = make(map[string]any, len(i.Context))
		for k, v := range i.Context {
			out.Context[k] = v
		}
	}
	return &out
}

func (s *InMemoryStore) Create(_ context.Context, instance *models.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOf(instance)
	if _, ok := s.instances[key]; ok {
		return sentinel.ErrAlreadyExists
	}
	s.instances[key] = copyInstance(instance)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, tenantID, entityType, entityID string) (*models.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	instance, ok := s.instances[instanceKey{tenantID, entityType, entityID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyInstance(instance), nil
}

func (s *InMemoryStore) FindForUpdate(ctx context.Context, tenantID, entityType, entityID string) (*models.Instance, error) {
	return s.Find(ctx, tenantID, entityType, entityID)
}

func (s *InMemoryStore) Update(_ context.Context, instance *models.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOf(instance)
	if _, ok := s.instances[key]; !ok {
		return sentinel.ErrNotFound
	}
	s.instances[key] = copyInstance(instance)
	return nil
}
