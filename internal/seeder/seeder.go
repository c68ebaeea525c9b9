// Package seeder populates in-memory stores with a development policy matrix.
// Postgres deployments load the matrix from sla_policy_matrix instead.
package seeder

import (
	"log/slog"

	slamodels "fingov/internal/sla/models"
)

// PolicySink accepts seeded SLA policies. The in-memory SLA store implements
// it; the postgres store deliberately does not.
type PolicySink interface {
	SetPolicy(policy slamodels.Policy)
}

// Seeder installs demo governance data for store-less runs.
type Seeder struct {
	policies PolicySink
	logger   *slog.Logger
}

// New creates a seeder writing into the given policy sink.
func New(policies PolicySink, logger *slog.Logger) *Seeder {
	return &Seeder{policies: policies, logger: logger}
}

// SeedPolicies installs the development SLA policy matrix for tenantID.
// Review states get timers; draft and terminal states do not.
func (s *Seeder) SeedPolicies(tenantID string) {
	matrix := []slamodels.Policy{
		{
			TenantID:       tenantID,
			State:          "under_review",
			Hours:          48,
			ActionOnBreach: slamodels.BreachEscalate,
		},
		{
			TenantID:       tenantID,
			State:          "escalated",
			Hours:          24,
			ActionOnBreach: slamodels.BreachAdvanceLevel,
		},
	}

	for _, policy := range matrix {
		s.policies.SetPolicy(policy)
	}
	s.logger.Info("seeded sla policy matrix",
		"tenant_id", tenantID,
		"policies", len(matrix),
	)
}
