package governance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"fingov/internal/audit"
	"fingov/internal/rules"
	slamodels "fingov/internal/sla/models"
	slastore "fingov/internal/sla/store"
	slaservice "fingov/internal/sla/service"
	wfmodels "fingov/internal/workflow/models"
	wfservice "fingov/internal/workflow/service"
	wfstore "fingov/internal/workflow/store"
	txctx "fingov/pkg/platform/tx"
)

type ledgerEntry struct {
	kind     string
	passed   bool
	severity audit.Severity
}

type fakeLedger struct {
	entries []ledgerEntry
}

func (f *fakeLedger) LogEntityValidation(entityType, entityID string, passed bool, actionRequired, maxSeverity string, violations []map[string]any, actor audit.Actor) (*audit.Event, error) {
	f.entries = append(f.entries, ledgerEntry{kind: "entity_validated", passed: passed})
	return &audit.Event{}, nil
}

func (f *fakeLedger) LogUserAction(action, description string, actor audit.Actor, severity audit.Severity) (*audit.Event, error) {
	f.entries = append(f.entries, ledgerEntry{kind: "user_action", severity: severity})
	return &audit.Event{}, nil
}

func (f *fakeLedger) LogStateChange(entityType, entityID, fromState, toState, reason string, actor audit.Actor) (*audit.Event, error) {
	f.entries = append(f.entries, ledgerEntry{kind: "state_change"})
	return &audit.Event{}, nil
}

func (f *fakeLedger) LogHumanDecision(entityType, entityID, decision, reason string, actor audit.Actor, previousState, newState map[string]any) (*audit.Event, error) {
	f.entries = append(f.entries, ledgerEntry{kind: "human_decision"})
	return &audit.Event{}, nil
}

func (f *fakeLedger) count(kind string) int {
	n := 0
	for _, e := range f.entries {
		if e.kind == kind {
			n++
		}
	}
	return n
}

type OrchestratorSuite struct {
	suite.Suite
	ctx      context.Context
	clock    time.Time
	wfStore  *wfstore.InMemoryStore
	slaStore *slastore.InMemoryStore
	ledger   *fakeLedger
	orch     *Orchestrator
	user     rules.UserContext
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	s.wfStore = wfstore.NewMemory()
	s.slaStore = slastore.NewMemory()
	s.ledger = &fakeLedger{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return s.clock }

	workflow := wfservice.New(s.wfStore, s.ledger, logger, wfservice.WithClock(now))
	sla := slaservice.New(s.slaStore, s.slaStore, workflow, s.ledger, txctx.NopRunner{}, logger,
		slaservice.WithClock(now))
	engine := rules.New(rules.DefaultConfig(), rules.WithClock(now))

	s.orch = New(engine, workflow, sla, s.ledger, txctx.NopRunner{}, logger)
	s.user = rules.UserContext{
		UserID:             "u-1",
		UserName:           "Riley",
		Role:               "analyst",
		TenantID:           "acme",
		AllowedCostCenters: []string{"CC-100"},
	}
}

func (s *OrchestratorSuite) editRequest() Request {
	return Request{
		TenantID:   "acme",
		EntityType: "forecast_version",
		EntityID:   "FV-1",
		ActionType: ActionEdit,
		Edit: &rules.EditRequest{
			CostCenterID:  "CC-100",
			OldValue:      decimal.RequireFromString("100000"),
			NewValue:      decimal.RequireFromString("105000"),
			VersionStatus: "draft",
		},
		EntityContext: map[string]any{"amount": "500000"},
	}
}

func (s *OrchestratorSuite) TestPolicyFailureMutatesNothing() {
	req := s.editRequest()
	req.Edit.VersionLocked = true

	result, err := s.orch.Execute(s.ctx, req, s.user)
	s.Require().NoError(err, "policy failures are soft outcomes")
	s.Equal(StatusPolicyFailed, result.Status)
	s.Require().NotNil(result.Validation)
	s.False(result.Validation.Passed)
	s.Equal(rules.SeverityCritical, result.Validation.Severity)

	// Nothing was created or transitioned.
	_, err = s.wfStore.Find(s.ctx, "acme", "forecast_version", "FV-1")
	s.Require().Error(err)
	_, active := s.slaStore.Active("acme", "forecast_version", "FV-1")
	s.False(active)
	s.Zero(s.ledger.count("state_change"))
	s.Zero(s.ledger.count("entity_validated"))
}

func (s *OrchestratorSuite) TestCleanEditInitializesAndStaysDraft() {
	result, err := s.orch.Execute(s.ctx, s.editRequest(), s.user)
	s.Require().NoError(err)
	s.Equal(StatusSuccess, result.Status)
	s.Require().NotNil(result.Validation)
	s.True(result.Validation.Passed)

	// A clean edit derives "approve", which draft does not permit: the
	// attempt is recorded and the instance stays in draft.
	instance, err := s.wfStore.Find(s.ctx, "acme", "forecast_version", "FV-1")
	s.Require().NoError(err)
	s.Equal(wfmodels.StateDraft, instance.State)
	s.Equal([]string{"manager"}, instance.ApprovalChain)
	s.Equal(1, s.ledger.count("entity_validated"))
}

func (s *OrchestratorSuite) TestSubmitThenApproveWalksWorkflow() {
	// Seed the instance in under_review via an explicit review transition,
	// then run a governed approval.
	workflow := wfservice.New(s.wfStore, s.ledger, slog.New(slog.NewTextHandler(io.Discard, nil)),
		wfservice.WithClock(func() time.Time { return s.clock }))
	ref := wfservice.EntityRef{TenantID: "acme", EntityType: "forecast_version", EntityID: "FV-1"}
	_, err := workflow.Initialize(s.ctx, ref, map[string]any{"amount": "500000"})
	s.Require().NoError(err)
	_, err = workflow.Transition(s.ctx, ref, wfmodels.ActionReview, wfservice.Actor{ID: "u-1", Role: "analyst"})
	s.Require().NoError(err)

	s.slaStore.SetPolicy(slamodels.Policy{
		TenantID: "acme", State: "under_review", Hours: 24, ActionOnBreach: slamodels.BreachEscalate,
	})

	manager := s.user
	manager.UserID = "u-2"
	manager.Role = "manager"

	req := Request{
		TenantID:   "acme",
		EntityType: "forecast_version",
		EntityID:   "FV-1",
		ActionType: ActionApprove,
		Approval:   &rules.ApprovalRequest{VersionStatus: "under_review"},
	}
	result, err := s.orch.Execute(s.ctx, req, manager)
	s.Require().NoError(err)
	s.Equal(StatusSuccess, result.Status)
	s.Equal(wfmodels.StateApproved, result.State, "single-level chain completes")

	// Terminal state: the timer is stopped, not restarted.
	_, active := s.slaStore.Active("acme", "forecast_version", "FV-1")
	s.False(active)
}

func (s *OrchestratorSuite) TestMidChainApprovalRestartsSLA() {
	// Two-level chain: the first governed approval keeps the instance in
	// under_review awaiting the next approver, so its timer restarts.
	workflow := wfservice.New(s.wfStore, s.ledger, slog.New(slog.NewTextHandler(io.Discard, nil)),
		wfservice.WithClock(func() time.Time { return s.clock }))
	ref := wfservice.EntityRef{TenantID: "acme", EntityType: "forecast_version", EntityID: "FV-1"}
	_, err := workflow.Initialize(s.ctx, ref, map[string]any{"amount": "2000000"})
	s.Require().NoError(err)
	_, err = workflow.Transition(s.ctx, ref, wfmodels.ActionReview, wfservice.Actor{ID: "u-1", Role: "analyst"})
	s.Require().NoError(err)

	s.slaStore.SetPolicy(slamodels.Policy{
		TenantID: "acme", State: "under_review", Hours: 24, ActionOnBreach: slamodels.BreachEscalate,
	})

	manager := s.user
	manager.UserID = "u-2"
	manager.Role = "manager"

	req := Request{
		TenantID:   "acme",
		EntityType: "forecast_version",
		EntityID:   "FV-1",
		ActionType: ActionApprove,
		Approval:   &rules.ApprovalRequest{VersionStatus: "under_review"},
	}
	result, err := s.orch.Execute(s.ctx, req, manager)
	s.Require().NoError(err)
	s.Equal(StatusSuccess, result.Status)
	s.Equal(wfmodels.StateUnderReview, result.State)
	s.Require().NotNil(result.Outcome)
	s.Equal(1, result.Outcome.Level)

	timer, active := s.slaStore.Active("acme", "forecast_version", "FV-1")
	s.Require().True(active)
	s.Equal(s.clock.Add(24*time.Hour), timer.DueAt)
}

func (s *OrchestratorSuite) TestUnknownActionTypeIsSoftInvalid() {
	req := s.editRequest()
	req.ActionType = "transmogrify"

	result, err := s.orch.Execute(s.ctx, req, s.user)
	s.Require().NoError(err)
	s.Equal(StatusInvalidAction, result.Status)
	s.Nil(result.Validation)

	_, err = s.wfStore.Find(s.ctx, "acme", "forecast_version", "FV-1")
	s.Require().Error(err, "invalid actions touch nothing")
}

func (s *OrchestratorSuite) TestMissingPayloadIsSoftInvalid() {
	req := s.editRequest()
	req.Edit = nil

	result, err := s.orch.Execute(s.ctx, req, s.user)
	s.Require().NoError(err)
	s.Equal(StatusInvalidAction, result.Status)
}
