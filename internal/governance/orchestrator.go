// Package governance coordinates policy evaluation, workflow transitions, SLA
// timers, and the audit ledger behind a single transactional entry point.
package governance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fingov/internal/audit"
	"fingov/internal/governance/metrics"
	"fingov/internal/rules"
	slamodels "fingov/internal/sla/models"
	wfmodels "fingov/internal/workflow/models"
	wfservice "fingov/internal/workflow/service"
	domainerrors "fingov/pkg/domain-errors"
	txctx "fingov/pkg/platform/tx"
)

// ActionType selects which policy entry point a call runs.
type ActionType string

const (
	ActionEdit    ActionType = "edit"
	ActionSubmit  ActionType = "submit"
	ActionApprove ActionType = "approve"
)

// Status is the soft outcome of an orchestrated call. Hard errors are
// returned as errors; everything else is data.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusPolicyFailed  Status = "policy_failed"
	StatusInvalidAction Status = "invalid_action"
)

// Request is one governed action. Exactly one payload field matching
// ActionType must be set.
type Request struct {
	TenantID   string
	EntityType string
	EntityID   string
	ActionType ActionType

	Edit       *rules.EditRequest
	Submission *rules.SubmissionRequest
	Approval   *rules.ApprovalRequest

	// EntityContext feeds approval-chain derivation on first touch.
	EntityContext map[string]any
}

// Result is the orchestrator's soft outcome.
type Result struct {
	Status     Status
	State      wfmodels.State
	Outcome    *wfmodels.Outcome
	Validation *rules.Result
}

// WorkflowEngine is the slice of the workflow service the orchestrator drives.
type WorkflowEngine interface {
	Initialize(ctx context.Context, ref wfservice.EntityRef, entityCtx map[string]any) (*wfmodels.Instance, error)
	Metadata(ctx context.Context, ref wfservice.EntityRef) (*wfmodels.Instance, error)
	AfterValidation(ctx context.Context, ref wfservice.EntityRef, result rules.Result, actor wfservice.Actor) (wfmodels.Outcome, error)
}

// SLAEngine is the slice of the SLA service the orchestrator drives.
type SLAEngine interface {
	Restart(ctx context.Context, tenantID, entityType, entityID, state string) (*slamodels.Instance, error)
	Stop(ctx context.Context, tenantID, entityType, entityID string) error
}

// AuditLog is the slice of the ledger the orchestrator writes to.
type AuditLog interface {
	LogEntityValidation(entityType, entityID string, passed bool, actionRequired, maxSeverity string, violations []map[string]any, actor audit.Actor) (*audit.Event, error)
	LogUserAction(action, description string, actor audit.Actor, severity audit.Severity) (*audit.Event, error)
}

// Orchestrator runs the governance pipeline. Each Execute call is one unit of
// work: a policy failure or any hard error leaves workflow and SLA state
// untouched.
type Orchestrator struct {
	engine   *rules.Engine
	workflow WorkflowEngine
	sla      SLAEngine
	auditl   AuditLog
	runner   txctx.Runner
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New constructs the orchestrator.
func New(engine *rules.Engine, workflow WorkflowEngine, sla SLAEngine, auditLog AuditLog, runner txctx.Runner, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:   engine,
		workflow: workflow,
		sla:      sla,
		auditl:   auditLog,
		runner:   runner,
		logger:   logger,
		tracer:   otel.Tracer("fingov/governance"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs one governed action end to end. Policy failures and unknown
// action types are soft outcomes returned as data with no workflow or SLA
// mutation; any hard error rolls back, writes a critical ledger entry, and
// propagates.
func (o *Orchestrator) Execute(ctx context.Context, req Request, user rules.UserContext) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "governance.execute", trace.WithAttributes(
		attribute.String("action_type", string(req.ActionType)),
		attribute.String("entity_type", req.EntityType),
		attribute.String("entity_id", req.EntityID),
	))
	defer span.End()
	start := time.Now()

	validation, err := o.evaluate(req, user)
	if err != nil {
		o.countAction(req.ActionType, StatusInvalidAction)
		return &Result{Status: StatusInvalidAction}, nil
	}

	actor := wfservice.Actor{ID: user.UserID, Name: user.UserName, Role: user.Role}
	ref := wfservice.EntityRef{TenantID: req.TenantID, EntityType: req.EntityType, EntityID: req.EntityID}

	if !validation.Passed {
		// The failed ValidationResult goes back unmodified; no workflow or
		// SLA mutation happens on this path.
		o.recordPolicyFailure(req, validation)
		o.countAction(req.ActionType, StatusPolicyFailed)
		result := &Result{Status: StatusPolicyFailed, Validation: &validation}
		if instance, merr := o.workflow.Metadata(ctx, ref); merr == nil {
			result.State = instance.State
		}
		return result, nil
	}

	var result Result
	err = o.runner.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := o.workflow.Initialize(ctx, ref, req.EntityContext); err != nil {
			return err
		}

		outcome, err := o.workflow.AfterValidation(ctx, ref, validation, actor)
		if err != nil {
			return err
		}

		if outcome.Applied {
			if outcome.State.Terminal() {
				if err := o.sla.Stop(ctx, req.TenantID, req.EntityType, req.EntityID); err != nil {
					return err
				}
			} else if _, err := o.sla.Restart(ctx, req.TenantID, req.EntityType, req.EntityID, string(outcome.State)); err != nil {
				return err
			}
		}

		if _, err := o.auditl.LogEntityValidation(
			req.EntityType, req.EntityID,
			true, string(validation.ActionRequired), string(validation.Severity),
			validation.ViolationMaps(),
			audit.Actor{ID: user.UserID, Name: user.UserName},
		); err != nil {
			return err
		}
		if o.metrics != nil {
			o.metrics.LedgerAppends.Inc()
		}

		result = Result{
			Status:     StatusSuccess,
			State:      outcome.State,
			Outcome:    &outcome,
			Validation: &validation,
		}
		return nil
	})

	if o.metrics != nil {
		o.metrics.ExecuteLatency.WithLabelValues(string(req.ActionType)).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "governance pipeline failed")
		o.recordHardFailure(ctx, req, user, err)
		o.countAction(req.ActionType, Status("error"))
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "execute governed action")
	}

	o.countAction(req.ActionType, StatusSuccess)
	return &result, nil
}

// evaluate dispatches to the policy entry point for the action type.
func (o *Orchestrator) evaluate(req Request, user rules.UserContext) (rules.Result, error) {
	switch req.ActionType {
	case ActionEdit:
		if req.Edit == nil {
			return rules.Result{}, fmt.Errorf("edit payload is required")
		}
		return o.engine.ValidateEdit(user, *req.Edit), nil
	case ActionSubmit:
		if req.Submission == nil {
			return rules.Result{}, fmt.Errorf("submission payload is required")
		}
		return o.engine.ValidateSubmission(user, *req.Submission), nil
	case ActionApprove:
		if req.Approval == nil {
			return rules.Result{}, fmt.Errorf("approval payload is required")
		}
		return o.engine.ValidateApproval(user, *req.Approval), nil
	default:
		return rules.Result{}, fmt.Errorf("unknown action type %q", req.ActionType)
	}
}

func (o *Orchestrator) recordPolicyFailure(req Request, validation rules.Result) {
	if o.metrics == nil {
		return
	}
	o.metrics.PolicyFailures.WithLabelValues(string(req.ActionType), string(validation.Severity)).Inc()
	for _, v := range validation.Violations {
		o.metrics.RuleViolations.WithLabelValues(v.RuleID).Inc()
	}
}

// recordHardFailure writes the critical ledger entry for an aborted pipeline.
// The unit of work already rolled back, so this append is deliberately
// outside it.
func (o *Orchestrator) recordHardFailure(ctx context.Context, req Request, user rules.UserContext, cause error) {
	if _, err := o.auditl.LogUserAction(
		string(req.ActionType),
		fmt.Sprintf("governance pipeline aborted for %s/%s: %v", req.EntityType, req.EntityID, cause),
		audit.Actor{ID: user.UserID, Name: user.UserName},
		audit.SeverityCritical,
	); err != nil {
		o.logger.ErrorContext(ctx, "failed to record pipeline failure",
			"entity_type", req.EntityType,
			"entity_id", req.EntityID,
			"error", err,
		)
	}
}

func (o *Orchestrator) countAction(actionType ActionType, status Status) {
	if o.metrics == nil {
		return
	}
	o.metrics.ActionsExecuted.WithLabelValues(string(actionType), string(status)).Inc()
}
