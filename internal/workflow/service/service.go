// Package service implements the approval workflow state machine: idempotent
// instance creation with a context-derived approval chain, table-driven
// transitions, and level-by-level approval consumption. Invalid transition
// attempts are recoverable outcomes, never hard errors.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fingov/internal/audit"
	"fingov/internal/rules"
	"fingov/internal/workflow/models"
	"fingov/internal/workflow/store"
	domainerrors "fingov/pkg/domain-errors"
	"fingov/pkg/platform/sentinel"
)

// Actor identifies who is driving a transition.
type Actor struct {
	ID   string
	Name string
	Role string
}

func (a Actor) auditActor() audit.Actor {
	return audit.Actor{ID: a.ID, Name: a.Name}
}

// SystemActor is the identity breach processing acts under.
var SystemActor = Actor{ID: "system", Name: "SLA Breach Processor", Role: "system"}

// EntityRef addresses one governed entity's workflow instance.
type EntityRef struct {
	TenantID   string
	EntityType string
	EntityID   string
}

// AuditLog is the slice of the ledger the workflow engine writes to.
type AuditLog interface {
	LogStateChange(entityType, entityID, fromState, toState, reason string, actor audit.Actor) (*audit.Event, error)
	LogHumanDecision(entityType, entityID, decision, reason string, actor audit.Actor, previousState, newState map[string]any) (*audit.Event, error)
	LogUserAction(action, description string, actor audit.Actor, severity audit.Severity) (*audit.Event, error)
}

// Service drives workflow instances through their lifecycle.
type Service struct {
	store  store.Store
	auditl AuditLog
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithClock injects the time source for deterministic testing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the workflow engine.
func New(st store.Store, auditLog AuditLog, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		auditl: auditLog,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize creates the workflow instance for an entity, deriving its
// approval chain from context. Idempotent: an existing instance is returned
// unchanged, even if context would now derive a different chain.
func (s *Service) Initialize(ctx context.Context, ref EntityRef, entityCtx map[string]any) (*models.Instance, error) {
	existing, err := s.store.Find(ctx, ref.TenantID, ref.EntityType, ref.EntityID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "find workflow instance")
	}

	now := s.now().UTC()
	instance := &models.Instance{
		EntityID:      ref.EntityID,
		EntityType:    ref.EntityType,
		TenantID:      ref.TenantID,
		State:         models.StateDraft,
		ApprovalLevel: 0,
		ApprovalChain: models.ResolveApprovalChain(models.ChainContextFrom(entityCtx)),
		Context:       entityCtx,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, instance); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			// Lost a creation race; the winner's instance is authoritative.
			return s.Metadata(ctx, ref)
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "create workflow instance")
	}

	s.logger.InfoContext(ctx, "workflow instance created",
		"tenant_id", ref.TenantID,
		"entity_type", ref.EntityType,
		"entity_id", ref.EntityID,
		"approval_chain", instance.ApprovalChain,
	)
	return instance, nil
}

// Metadata returns the current instance without mutating it.
func (s *Service) Metadata(ctx context.Context, ref EntityRef) (*models.Instance, error) {
	instance, err := s.store.Find(ctx, ref.TenantID, ref.EntityType, ref.EntityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "workflow instance not found")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "find workflow instance")
	}
	return instance, nil
}

// Transition applies one action to the instance. An action not permitted from
// the current state, or an approval by the wrong role, leaves state unchanged,
// writes a critical ledger entry, and reports Applied=false.
func (s *Service) Transition(ctx context.Context, ref EntityRef, action models.Action, actor Actor) (models.Outcome, error) {
	instance, err := s.store.FindForUpdate(ctx, ref.TenantID, ref.EntityType, ref.EntityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Outcome{}, domainerrors.New(domainerrors.CodeNotFound, "workflow instance not found")
		}
		return models.Outcome{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "lock workflow instance")
	}

	outcome := s.apply(instance, action, actor)
	if !outcome.Applied {
		if _, aerr := s.auditl.LogUserAction(
			string(action),
			fmt.Sprintf("invalid transition attempt on %s/%s: %s", ref.EntityType, ref.EntityID, outcome.Reason),
			actor.auditActor(),
			audit.SeverityCritical,
		); aerr != nil {
			return models.Outcome{}, domainerrors.Wrap(aerr, domainerrors.CodeInternal, "record invalid transition")
		}
		return outcome, nil
	}

	from := instance.State
	instance.State = outcome.State
	instance.ApprovalLevel = outcome.Level
	instance.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, instance); err != nil {
		return models.Outcome{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "persist workflow transition")
	}

	if _, err := s.auditl.LogStateChange(
		ref.EntityType, ref.EntityID,
		string(from), string(outcome.State),
		outcome.Reason,
		actor.auditActor(),
	); err != nil {
		return models.Outcome{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "record state change")
	}

	s.logger.InfoContext(ctx, "workflow transition applied",
		"entity_type", ref.EntityType,
		"entity_id", ref.EntityID,
		"action", string(action),
		"from", string(from),
		"to", string(outcome.State),
		"level", outcome.Level,
	)
	return outcome, nil
}

// apply computes the outcome of one action without touching storage.
func (s *Service) apply(instance *models.Instance, action models.Action, actor Actor) models.Outcome {
	if _, permitted := instance.State.Next(action); !permitted {
		return models.Outcome{
			Applied: false,
			State:   instance.State,
			Level:   instance.ApprovalLevel,
			Reason:  fmt.Sprintf("action %q not permitted from state %q", action, instance.State),
		}
	}

	if action == models.ActionApprove {
		return s.applyApproval(instance, actor)
	}

	next, _ := instance.State.Next(action)
	return models.Outcome{
		Applied: true,
		State:   next,
		Level:   instance.ApprovalLevel,
		Reason:  fmt.Sprintf("action %q", action),
	}
}

// applyApproval consumes one approval-chain level. The table target for the
// approve action is ignored: completion of the chain decides approved vs
// awaiting the next approver.
func (s *Service) applyApproval(instance *models.Instance, actor Actor) models.Outcome {
	pending := instance.PendingRole()
	if pending == "" || actor.Role != pending {
		return models.Outcome{
			Applied: false,
			State:   instance.State,
			Level:   instance.ApprovalLevel,
			Reason: fmt.Sprintf("unauthorized approval: role %q cannot approve at level %d (expects %q)",
				actor.Role, instance.ApprovalLevel, pending),
		}
	}
	return s.advanceLevel(instance, fmt.Sprintf("approved by %s at level %d", actor.Role, instance.ApprovalLevel))
}

func (s *Service) advanceLevel(instance *models.Instance, reason string) models.Outcome {
	level := instance.ApprovalLevel + 1
	state := models.StateUnderReview
	complete := level >= len(instance.ApprovalChain)
	if complete {
		state = models.StateApproved
	}
	return models.Outcome{
		Applied:  true,
		State:    state,
		Level:    level,
		Complete: complete,
		Reason:   reason,
	}
}

// ForceAdvanceLevel advances the approval chain without a role check. The
// escape valve for stuck approvals; breach processing records its own ERROR
// entry around this call.
func (s *Service) ForceAdvanceLevel(ctx context.Context, ref EntityRef, reason string, actor Actor) (models.Outcome, error) {
	instance, err := s.store.FindForUpdate(ctx, ref.TenantID, ref.EntityType, ref.EntityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Outcome{}, domainerrors.New(domainerrors.CodeNotFound, "workflow instance not found")
		}
		return models.Outcome{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "lock workflow instance")
	}
	if instance.State.Terminal() {
		return models.Outcome{
			Applied: false,
			State:   instance.State,
			Level:   instance.ApprovalLevel,
			Reason:  fmt.Sprintf("cannot advance terminal state %q", instance.State),
		}, nil
	}

	from := instance.State
	outcome := s.advanceLevel(instance, reason)
	instance.State = outcome.State
	instance.ApprovalLevel = outcome.Level
	instance.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, instance); err != nil {
		return models.Outcome{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "persist forced advance")
	}

	if _, err := s.auditl.LogStateChange(
		ref.EntityType, ref.EntityID,
		string(from), string(outcome.State),
		reason,
		actor.auditActor(),
	); err != nil {
		return models.Outcome{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "record forced advance")
	}
	return outcome, nil
}

// AfterValidation turns a policy result into a workflow action and applies
// it: critical findings escalate, any other finding routes to review, and a
// clean result approves.
func (s *Service) AfterValidation(ctx context.Context, ref EntityRef, result rules.Result, actor Actor) (models.Outcome, error) {
	return s.Transition(ctx, ref, actionForSeverity(result.Severity), actor)
}

func actionForSeverity(severity rules.Severity) models.Action {
	switch severity {
	case rules.SeverityCritical:
		return models.ActionEscalate
	case rules.SeverityHigh, rules.SeverityMedium, rules.SeverityLow:
		return models.ActionReview
	default:
		return models.ActionApprove
	}
}

// HumanDecision records an explicit approve/reject by a named person and
// applies the matching transition. System identities are rejected by the
// ledger before any state changes.
func (s *Service) HumanDecision(ctx context.Context, ref EntityRef, decision models.Action, reason string, actor Actor) (models.Outcome, error) {
	if decision != models.ActionApprove && decision != models.ActionReject {
		return models.Outcome{}, domainerrors.New(domainerrors.CodeInvalidInput,
			fmt.Sprintf("decision must be approve or reject, got %q", decision))
	}
	if audit.IsSystemUser(actor.ID) {
		return models.Outcome{}, domainerrors.New(domainerrors.CodeInvalidInput,
			"human decisions require a non-system user")
	}

	before, err := s.Metadata(ctx, ref)
	if err != nil {
		return models.Outcome{}, err
	}

	outcome, err := s.Transition(ctx, ref, decision, actor)
	if err != nil {
		return models.Outcome{}, err
	}

	if _, err := s.auditl.LogHumanDecision(
		ref.EntityType, ref.EntityID,
		string(decision), reason,
		actor.auditActor(),
		map[string]any{"state": string(before.State), "approval_level": before.ApprovalLevel},
		map[string]any{"state": string(outcome.State), "approval_level": outcome.Level},
	); err != nil {
		return models.Outcome{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "record human decision")
	}
	return outcome, nil
}

// Escalate routes the instance to the escalated state.
func (s *Service) Escalate(ctx context.Context, ref EntityRef, reason string, actor Actor) (models.Outcome, error) {
	outcome, err := s.Transition(ctx, ref, models.ActionEscalate, actor)
	if err != nil {
		return models.Outcome{}, err
	}
	if outcome.Applied && reason != "" {
		s.logger.WarnContext(ctx, "workflow escalated",
			"entity_type", ref.EntityType,
			"entity_id", ref.EntityID,
			"reason", reason,
		)
	}
	return outcome, nil
}
