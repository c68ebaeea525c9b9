// Package store persists workflow instances.
package store

import (
	"context"

	"fingov/internal/workflow/models"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return sentinel.ErrNotFound when the requested instance does not exist
// - Return sentinel.ErrAlreadyExists on duplicate creation
// - Return wrapped errors with context for infrastructure failures

// Store is the persistence port for workflow instances. Implementations honor
// a transaction carried in the context; FindForUpdate additionally takes an
// exclusive row lock when running inside one.
type Store interface {
	Create(ctx context.Context, instance *models.Instance) error
	Find(ctx context.Context, tenantID, entityType, entityID string) (*models.Instance, error)
	FindForUpdate(ctx context.Context, tenantID, entityType, entityID string) (*models.Instance, error)
	Update(ctx context.Context, instance *models.Instance) error
}
