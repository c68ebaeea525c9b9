package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fingov/internal/audit"
	"fingov/internal/rules"
	"fingov/internal/workflow/models"
	"fingov/internal/workflow/store"
	domainerrors "fingov/pkg/domain-errors"
)

type recordedEntry struct {
	kind     string
	action   string
	from     string
	to       string
	severity audit.Severity
	actor    audit.Actor
}

type fakeAuditLog struct {
	entries []recordedEntry
}

func (f *fakeAuditLog) LogStateChange(entityType, entityID, fromState, toState, reason string, actor audit.Actor) (*audit.Event, error) {
	f.entries = append(f.entries, recordedEntry{kind: "state_change", from: fromState, to: toState, actor: actor})
	return &audit.Event{}, nil
}

func (f *fakeAuditLog) LogHumanDecision(entityType, entityID, decision, reason string, actor audit.Actor, previousState, newState map[string]any) (*audit.Event, error) {
	if audit.IsSystemUser(actor.ID) {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "system user")
	}
	f.entries = append(f.entries, recordedEntry{kind: "human_decision", action: decision, actor: actor})
	return &audit.Event{}, nil
}

func (f *fakeAuditLog) LogUserAction(action, description string, actor audit.Actor, severity audit.Severity) (*audit.Event, error) {
	f.entries = append(f.entries, recordedEntry{kind: "user_action", action: action, severity: severity, actor: actor})
	return &audit.Event{}, nil
}

func (f *fakeAuditLog) byKind(kind string) []recordedEntry {
	var out []recordedEntry
	for _, e := range f.entries {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type WorkflowServiceSuite struct {
	suite.Suite
	ctx      context.Context
	store    *store.InMemoryStore
	auditLog *fakeAuditLog
	svc      *Service
	ref      EntityRef
}

func TestWorkflowServiceSuite(t *testing.T) {
	suite.Run(t, new(WorkflowServiceSuite))
}

func (s *WorkflowServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()
	s.auditLog = &fakeAuditLog{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	s.svc = New(s.store, s.auditLog, logger, WithClock(func() time.Time { return now }))
	s.ref = EntityRef{TenantID: "acme", EntityType: "forecast_version", EntityID: "FV-2026-Q3"}
}

func (s *WorkflowServiceSuite) initialize(context map[string]any) *models.Instance {
	instance, err := s.svc.Initialize(s.ctx, s.ref, context)
	s.Require().NoError(err)
	return instance
}

func (s *WorkflowServiceSuite) TestInitializeDerivesChainAndIsIdempotent() {
	instance := s.initialize(map[string]any{"amount": "2000000"})
	s.Equal(models.StateDraft, instance.State)
	s.Equal(0, instance.ApprovalLevel)
	s.Equal([]string{"manager", "fpna_head"}, instance.ApprovalChain)

	// Re-initializing with context that would derive a different chain does
	// not rewrite the in-flight one.
	again, err := s.svc.Initialize(s.ctx, s.ref, map[string]any{"amount": "50000000"})
	s.Require().NoError(err)
	s.Equal([]string{"manager", "fpna_head"}, again.ApprovalChain)
}

func (s *WorkflowServiceSuite) TestSmallAmountSingleApprover() {
	instance := s.initialize(map[string]any{"amount": "500000"})
	s.Equal([]string{"manager"}, instance.ApprovalChain)
}

func (s *WorkflowServiceSuite) TestExtremeVarianceGoesStraightToCFO() {
	instance := s.initialize(map[string]any{"amount": "500000", "variance_pct": "0.35"})
	s.Equal([]string{"cfo"}, instance.ApprovalChain)
}

func (s *WorkflowServiceSuite) TestApprovalChainConsumedInOrder() {
	s.initialize(map[string]any{"amount": "2000000"})

	outcome, err := s.svc.Transition(s.ctx, s.ref, models.ActionReview, Actor{ID: "u-1", Role: "analyst"})
	s.Require().NoError(err)
	s.True(outcome.Applied)
	s.Equal(models.StateUnderReview, outcome.State)

	// Wrong role at level 0: no-op plus a critical ledger entry.
	outcome, err = s.svc.Transition(s.ctx, s.ref, models.ActionApprove, Actor{ID: "u-3", Role: "fpna_head"})
	s.Require().NoError(err)
	s.False(outcome.Applied)
	s.Equal(models.StateUnderReview, outcome.State)
	s.Equal(0, outcome.Level)
	s.Contains(outcome.Reason, "unauthorized approval")

	critical := s.auditLog.byKind("user_action")
	s.Require().Len(critical, 1)
	s.Equal(audit.SeverityCritical, critical[0].severity)

	// Correct roles walk the chain to terminal approval.
	outcome, err = s.svc.Transition(s.ctx, s.ref, models.ActionApprove, Actor{ID: "u-2", Role: "manager"})
	s.Require().NoError(err)
	s.True(outcome.Applied)
	s.Equal(models.StateUnderReview, outcome.State)
	s.Equal(1, outcome.Level)
	s.False(outcome.Complete)

	outcome, err = s.svc.Transition(s.ctx, s.ref, models.ActionApprove, Actor{ID: "u-3", Role: "fpna_head"})
	s.Require().NoError(err)
	s.True(outcome.Applied)
	s.Equal(models.StateApproved, outcome.State)
	s.True(outcome.Complete)

	instance, err := s.svc.Metadata(s.ctx, s.ref)
	s.Require().NoError(err)
	s.Equal(models.StateApproved, instance.State)
	s.Equal(2, instance.ApprovalLevel)
}

func (s *WorkflowServiceSuite) TestInvalidTransitionIsNoOpWithCriticalEntry() {
	s.initialize(map[string]any{"amount": "500000"})

	outcome, err := s.svc.Transition(s.ctx, s.ref, models.ActionEscalate, Actor{ID: "u-1", Role: "manager"})
	s.Require().NoError(err, "invalid transitions never raise")
	s.False(outcome.Applied)
	s.Equal(models.StateDraft, outcome.State)

	instance, err := s.svc.Metadata(s.ctx, s.ref)
	s.Require().NoError(err)
	s.Equal(models.StateDraft, instance.State, "state unchanged")

	critical := s.auditLog.byKind("user_action")
	s.Require().Len(critical, 1)
	s.Equal(audit.SeverityCritical, critical[0].severity)
	s.Empty(s.auditLog.byKind("state_change"))
}

func (s *WorkflowServiceSuite) TestTerminalStatesAcceptNothing() {
	s.initialize(map[string]any{"amount": "500000"})
	_, err := s.svc.Transition(s.ctx, s.ref, models.ActionReject, Actor{ID: "u-1", Role: "manager"})
	s.Require().NoError(err)

	outcome, err := s.svc.Transition(s.ctx, s.ref, models.ActionReview, Actor{ID: "u-1", Role: "manager"})
	s.Require().NoError(err)
	s.False(outcome.Applied)
	s.Equal(models.StateRejected, outcome.State)
}

func (s *WorkflowServiceSuite) TestAfterValidationMapsSeverityToAction() {
	s.initialize(map[string]any{"amount": "500000"})
	_, err := s.svc.Transition(s.ctx, s.ref, models.ActionReview, Actor{ID: "u-1", Role: "analyst"})
	s.Require().NoError(err)

	outcome, err := s.svc.AfterValidation(s.ctx, s.ref,
		rules.Result{Passed: false, Severity: rules.SeverityCritical}, Actor{ID: "u-1", Role: "analyst"})
	s.Require().NoError(err)
	s.True(outcome.Applied)
	s.Equal(models.StateEscalated, outcome.State)
}

func (s *WorkflowServiceSuite) TestHumanDecisionRejectsSystemUsers() {
	s.initialize(map[string]any{"amount": "500000"})

	_, err := s.svc.HumanDecision(s.ctx, s.ref, models.ActionReject, "stale data", Actor{ID: "scheduler", Role: "manager"})
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeInvalidInput))

	instance, err := s.svc.Metadata(s.ctx, s.ref)
	s.Require().NoError(err)
	s.Equal(models.StateDraft, instance.State, "no state change on rejected call")
}

func (s *WorkflowServiceSuite) TestHumanDecisionRecordsLedgerEntry() {
	s.initialize(map[string]any{"amount": "500000"})
	_, err := s.svc.Transition(s.ctx, s.ref, models.ActionReview, Actor{ID: "u-1", Role: "analyst"})
	s.Require().NoError(err)

	outcome, err := s.svc.HumanDecision(s.ctx, s.ref, models.ActionApprove, "numbers verified", Actor{ID: "u-2", Name: "Dana", Role: "manager"})
	s.Require().NoError(err)
	s.True(outcome.Applied)
	s.Equal(models.StateApproved, outcome.State, "single-level chain completes")

	decisions := s.auditLog.byKind("human_decision")
	s.Require().Len(decisions, 1)
	s.Equal("approve", decisions[0].action)
	s.Equal("u-2", decisions[0].actor.ID)
}

func (s *WorkflowServiceSuite) TestForceAdvanceBypassesRoleCheck() {
	s.initialize(map[string]any{"amount": "2000000"})
	_, err := s.svc.Transition(s.ctx, s.ref, models.ActionReview, Actor{ID: "u-1", Role: "analyst"})
	s.Require().NoError(err)

	outcome, err := s.svc.ForceAdvanceLevel(s.ctx, s.ref, "sla breach", SystemActor)
	s.Require().NoError(err)
	s.True(outcome.Applied)
	s.Equal(1, outcome.Level)
	s.Equal(models.StateUnderReview, outcome.State)

	outcome, err = s.svc.ForceAdvanceLevel(s.ctx, s.ref, "sla breach", SystemActor)
	s.Require().NoError(err)
	s.True(outcome.Complete)
	s.Equal(models.StateApproved, outcome.State)

	outcome, err = s.svc.ForceAdvanceLevel(s.ctx, s.ref, "sla breach", SystemActor)
	s.Require().NoError(err)
	s.False(outcome.Applied, "terminal instances cannot be advanced")
}

func (s *WorkflowServiceSuite) TestMetadataUnknownEntity() {
	_, err := s.svc.Metadata(s.ctx, EntityRef{TenantID: "acme", EntityType: "invoice", EntityID: "nope"})
	s.Require().Error(err)
	s.True(domainerrors.HasCode(err, domainerrors.CodeNotFound))
}
