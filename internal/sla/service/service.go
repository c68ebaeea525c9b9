// Package service implements the SLA timer engine: timers start when a
// workflow enters a policied state, stop on normal exit, and a periodic sweep
// executes the configured breach action on expiry. Concurrent sweepers
// partition the backlog through skip-locked reads.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fingov/internal/audit"
	slamodels "fingov/internal/sla/models"
	"fingov/internal/sla/store"
	wfmodels "fingov/internal/workflow/models"
	wfservice "fingov/internal/workflow/service"
	domainerrors "fingov/pkg/domain-errors"
	"fingov/pkg/platform/sentinel"
	txctx "fingov/pkg/platform/tx"
)

const defaultSweepBatch = 100

// WorkflowPort is the slice of the workflow engine breach processing drives.
//
//go:generate mockgen -source=service.go -destination=mocks/workflow_mock.go -package=mocks WorkflowPort
type WorkflowPort interface {
	Transition(ctx context.Context, ref wfservice.EntityRef, action wfmodels.Action, actor wfservice.Actor) (wfmodels.Outcome, error)
	ForceAdvanceLevel(ctx context.Context, ref wfservice.EntityRef, reason string, actor wfservice.Actor) (wfmodels.Outcome, error)
}

// AuditLog is the slice of the ledger the SLA engine writes to.
type AuditLog interface {
	LogUserAction(action, description string, actor audit.Actor, severity audit.Severity) (*audit.Event, error)
}

// SweepReport summarizes one ProcessBreaches run.
type SweepReport struct {
	Candidates int
	Breached   int
	Skipped    int
	Failed     int
}

// Service manages SLA timers for workflow instances.
type Service struct {
	store    store.Store
	policies store.PolicyStore
	workflow WorkflowPort
	auditl   AuditLog
	runner   txctx.Runner
	logger   *slog.Logger
	now      func() time.Time
	workers  int
	batch    int
}

// Option configures the Service.
type Option func(*Service)

// WithClock injects the time source for deterministic testing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithWorkers sets the sweep parallelism.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithBatchSize caps how many candidates one sweep pass picks up.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batch = n
		}
	}
}

// New constructs the SLA engine.
func New(st store.Store, policies store.PolicyStore, workflow WorkflowPort, auditLog AuditLog, runner txctx.Runner, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    st,
		policies: policies,
		workflow: workflow,
		auditl:   auditLog,
		runner:   runner,
		logger:   logger,
		now:      time.Now,
		workers:  1,
		batch:    defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a timer for the entity's current state. States without a
// policy matrix row are not time-boxed; Start is a no-op for them and returns
// a nil instance.
func (s *Service) Start(ctx context.Context, tenantID, entityType, entityID, state string) (*slamodels.Instance, error) {
	policy, err := s.policies.FindPolicy(ctx, tenantID, state)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "look up sla policy")
	}

	now := s.now().UTC()
	instance := &slamodels.Instance{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		EntityType:     entityType,
		EntityID:       entityID,
		State:          state,
		DueAt:          now.Add(time.Duration(policy.Hours) * time.Hour),
		ActionOnBreach: policy.ActionOnBreach,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, instance); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "create sla instance")
	}

	s.logger.InfoContext(ctx, "sla timer started",
		"tenant_id", tenantID,
		"entity_type", entityType,
		"entity_id", entityID,
		"state", state,
		"due_at", instance.DueAt,
	)
	return instance, nil
}

// Stop removes the entity's active timer, if any. Called whenever the entity
// leaves a timed state or reaches a terminal one. Breached timers stay.
func (s *Service) Stop(ctx context.Context, tenantID, entityType, entityID string) error {
	if err := s.store.DeleteUnbreached(ctx, tenantID, entityType, entityID); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "stop sla timer")
	}
	return nil
}

// Restart replaces the entity's timer for a new state inside the caller's
// unit of work.
func (s *Service) Restart(ctx context.Context, tenantID, entityType, entityID, state string) (*slamodels.Instance, error) {
	if err := s.Stop(ctx, tenantID, entityType, entityID); err != nil {
		return nil, err
	}
	return s.Start(ctx, tenantID, entityType, entityID, state)
}

// ProcessBreaches is the periodic sweep. Candidates are read with a
// skip-locked select, then each is re-locked and re-checked inside its own
// transaction before the breach action runs. One candidate failing rolls back
// that candidate only; the sweep continues.
func (s *Service) ProcessBreaches(ctx context.Context) (SweepReport, error) {
	now := s.now().UTC()

	var candidates []*slamodels.Instance
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		candidates, err = s.store.SelectDue(ctx, now, s.batch)
		return err
	})
	if err != nil {
		return SweepReport{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "select due sla instances")
	}

	report := SweepReport{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return report, nil
	}

	results := make([]breachResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			results[i] = s.processOne(gctx, candidate)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch r {
		case breachApplied:
			report.Breached++
		case breachSkipped:
			report.Skipped++
		case breachFailed:
			report.Failed++
		}
	}

	s.logger.InfoContext(ctx, "sla sweep complete",
		"candidates", report.Candidates,
		"breached", report.Breached,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

type breachResult int

const (
	breachApplied breachResult = iota
	breachSkipped
	breachFailed
)

// processOne handles a single candidate in its own transaction. Errors roll
// back that transaction, leave the instance unbreached for a later sweep, and
// are recorded as critical ledger entries.
func (s *Service) processOne(ctx context.Context, candidate *slamodels.Instance) breachResult {
	skipped := false
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		locked, err := s.store.LockDue(ctx, candidate.ID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				skipped = true
				return nil
			}
			return err
		}
		// Another worker may have breached it between select and lock.
		if locked.Breached {
			skipped = true
			return nil
		}

		if err := s.executeBreachAction(ctx, locked); err != nil {
			return err
		}
		return s.store.MarkBreached(ctx, locked.ID, s.now().UTC())
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "sla breach processing failed",
			"sla_id", candidate.ID,
			"entity_id", candidate.EntityID,
			"error", err,
		)
		if _, aerr := s.auditl.LogUserAction(
			"sla_breach_failed",
			fmt.Sprintf("breach action %q failed for %s/%s: %v",
				candidate.ActionOnBreach, candidate.EntityType, candidate.EntityID, err),
			audit.Actor{ID: "system", Name: "SLA Breach Processor"},
			audit.SeverityCritical,
		); aerr != nil {
			s.logger.ErrorContext(ctx, "failed to record breach failure", "error", aerr)
		}
		return breachFailed
	}
	if skipped {
		return breachSkipped
	}
	return breachApplied
}

// executeBreachAction applies the policy's configured action. advance_level
// bypasses the role check entirely and is recorded at ERROR severity; every
// other action runs as an ordinary system-actor transition.
func (s *Service) executeBreachAction(ctx context.Context, instance *slamodels.Instance) error {
	ref := wfservice.EntityRef{
		TenantID:   instance.TenantID,
		EntityType: instance.EntityType,
		EntityID:   instance.EntityID,
	}
	reason := fmt.Sprintf("sla breached in state %q (due %s)", instance.State, instance.DueAt.Format(time.RFC3339))

	if instance.ActionOnBreach == slamodels.BreachAdvanceLevel {
		if _, err := s.workflow.ForceAdvanceLevel(ctx, ref, reason, wfservice.SystemActor); err != nil {
			return err
		}
		if _, err := s.auditl.LogUserAction(
			"sla_breach_advance_level",
			fmt.Sprintf("approval level force-advanced for %s/%s: %s", instance.EntityType, instance.EntityID, reason),
			audit.Actor{ID: "system", Name: "SLA Breach Processor"},
			audit.SeverityError,
		); err != nil {
			return err
		}
		return nil
	}

	action, err := breachTransition(instance.ActionOnBreach)
	if err != nil {
		return err
	}
	if _, err := s.workflow.Transition(ctx, ref, action, wfservice.SystemActor); err != nil {
		return err
	}
	return nil
}

func breachTransition(action slamodels.BreachAction) (wfmodels.Action, error) {
	switch action {
	case slamodels.BreachApprove:
		return wfmodels.ActionApprove, nil
	case slamodels.BreachReject:
		return wfmodels.ActionReject, nil
	case slamodels.BreachEscalate:
		return wfmodels.ActionEscalate, nil
	default:
		return "", fmt.Errorf("unknown breach action %q", action)
	}
}
