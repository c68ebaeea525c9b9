package rules

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// EditRequest is a proposed change to a plan/forecast cell.
type EditRequest struct {
	CostCenterID  string
	OldValue      decimal.Decimal
	NewValue      decimal.Decimal
	VersionStatus string
	VersionLocked bool
	PeriodLocked  bool
}

// SubmissionRequest is a proposed submission of a version for review.
type SubmissionRequest struct {
	VersionStatus string
}

// ApprovalRequest is a proposed approval decision on a version.
type ApprovalRequest struct {
	VersionStatus string
}

// ValidateEdit runs the edit rule family: locks, caller scope, lifecycle,
// and materiality of the proposed change.
func (e *Engine) ValidateEdit(user UserContext, req EditRequest) Result {
	var violations []Violation

	if v := e.checkVersionLock(req); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkPeriodLock(req); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkUserScope(user, req); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkLifecycleEdit(req.VersionStatus); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkMateriality(req); v != nil {
		violations = append(violations, *v)
	}

	return resultFrom(violations)
}

// ValidateSubmission runs the submission rule family: lifecycle state and
// submitter authorization.
func (e *Engine) ValidateSubmission(user UserContext, req SubmissionRequest) Result {
	var violations []Violation

	if req.VersionStatus != "draft" {
		v := e.violation(
			"GOV-100", "Invalid Submission State", SeverityHigh,
			"Only draft versions can be submitted",
			"version_status", "draft", req.VersionStatus,
			"Revert version to draft before submitting",
		)
		violations = append(violations, v)
	}
	if user.Role != "analyst" && user.Role != "manager" {
		v := e.violation(
			"GOV-101", "Unauthorized Submission", SeverityCritical,
			"User not permitted to submit",
			"role", "analyst/manager", user.Role,
			"Escalate to authorized user",
		)
		violations = append(violations, v)
	}

	return resultFrom(violations)
}

// ValidateApproval runs the approval rule family: lifecycle state and
// approver authorization.
func (e *Engine) ValidateApproval(user UserContext, req ApprovalRequest) Result {
	var violations []Violation

	if req.VersionStatus != "submitted" && req.VersionStatus != "under_review" {
		v := e.violation(
			"GOV-200", "Invalid Approval State", SeverityHigh,
			"Version must be submitted before approval",
			"version_status", "submitted", req.VersionStatus,
			"Submit version before approval",
		)
		violations = append(violations, v)
	}
	if user.Role != "manager" && user.Role != "fpna_head" && user.Role != "cfo" {
		v := e.violation(
			"GOV-201", "Unauthorized Approval", SeverityCritical,
			"User not authorized to approve",
			"role", "manager/fpna_head/cfo", user.Role,
			"Escalate to authorized approver",
		)
		violations = append(violations, v)
	}

	return resultFrom(violations)
}

func (e *Engine) checkVersionLock(req EditRequest) *Violation {
	if !req.VersionLocked {
		return nil
	}
	v := e.violation(
		"GOV-001", "Version Locked", SeverityCritical,
		"Version is locked and cannot be edited",
		"version", "unlocked", "locked",
		"Create new version to modify values",
	)
	return &v
}

func (e *Engine) checkPeriodLock(req EditRequest) *Violation {
	if !req.PeriodLocked {
		return nil
	}
	v := e.violation(
		"GOV-002", "Period Locked", SeverityCritical,
		"Fiscal period is locked",
		"period", "open", "locked",
		"Request CFO unlock",
	)
	return &v
}

func (e *Engine) checkUserScope(user UserContext, req EditRequest) *Violation {
	if slices.Contains(user.AllowedCostCenters, req.CostCenterID) {
		return nil
	}
	v := e.violation(
		"GOV-003", "Unauthorized Scope", SeverityCritical,
		"User does not own this cost center",
		"cost_center_id", fmt.Sprint(user.AllowedCostCenters), req.CostCenterID,
		"Contact admin for scope update",
	)
	return &v
}

func (e *Engine) checkLifecycleEdit(versionStatus string) *Violation {
	if versionStatus == "draft" {
		return nil
	}
	v := e.violation(
		"GOV-004", "Edit Not Allowed", SeverityHigh,
		"Only draft versions can be edited",
		"version_status", "draft", versionStatus,
		"Create new draft version",
	)
	return &v
}

// checkMateriality flags changes whose fractional delta from the prior value
// exceeds the configured threshold. A zero prior value has no meaningful
// percentage delta and is skipped.
func (e *Engine) checkMateriality(req EditRequest) *Violation {
	if req.OldValue.IsZero() {
		return nil
	}
	ratio := req.NewValue.Sub(req.OldValue).Abs().Div(req.OldValue.Abs())
	if ratio.LessThanOrEqual(e.cfg.MaterialityThreshold) {
		return nil
	}
	v := e.violation(
		"GOV-005", "Significant Forecast Change", SeverityHigh,
		fmt.Sprintf("Forecast change exceeds %s%% threshold",
			e.cfg.MaterialityThreshold.Mul(decimal.NewFromInt(100))),
		"amount", req.OldValue.String(), req.NewValue.String(),
		"Manager review required",
	)
	return &v
}
