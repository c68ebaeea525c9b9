// Package store persists SLA timers and reads the policy matrix.
package store

import (
	"context"
	"time"

	"fingov/internal/sla/models"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return sentinel.ErrNotFound when the requested row does not exist or is
//   currently locked by another worker (LockDue)
// - Return wrapped errors with context for infrastructure failures

// Store is the persistence port for SLA instances. SelectDue and LockDue
// implement the sweep's two-phase locking discipline: both skip rows already
// locked by another worker so concurrent sweepers partition the backlog
// instead of contending on it.
type Store interface {
	Create(ctx context.Context, instance *models.Instance) error
	// DeleteUnbreached removes the active timer for an entity, if any.
	// Breached timers are never deleted.
	DeleteUnbreached(ctx context.Context, tenantID, entityType, entityID string) error
	// SelectDue returns unbreached instances past due as of now, skipping
	// rows locked by another worker.
	SelectDue(ctx context.Context, now time.Time, limit int) ([]*models.Instance, error)
	// LockDue re-reads one instance under an exclusive row lock, skipping it
	// if another worker holds the lock.
	LockDue(ctx context.Context, id string) (*models.Instance, error)
	MarkBreached(ctx context.Context, id string, at time.Time) error
}

// PolicyStore reads the policy matrix. The matrix is reference data; this
// engine never writes it.
type PolicyStore interface {
	FindPolicy(ctx context.Context, tenantID, state string) (*models.Policy, error)
}
