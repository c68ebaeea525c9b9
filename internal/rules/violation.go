package rules

import "time"

// Severity grades a single violation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Action is the disposition a validation result demands.
type Action string

const (
	ActionApprove            Action = "approve"
	ActionApproveWithWarning Action = "approve_with_warning"
	ActionReview             Action = "review"
	ActionEscalate           Action = "escalate"
	ActionReject             Action = "reject"
)

// Violation is one failed policy check. Produced fresh per evaluation and
// never mutated afterwards.
type Violation struct {
	RuleID      string
	RuleName    string
	Severity    Severity
	Description string
	Field       string
	Expected    string
	Actual      string
	Remediation string
	Timestamp   time.Time
}

// Map renders the violation for audit details and API responses.
func (v Violation) Map() map[string]any {
	return map[string]any{
		"rule_id":        v.RuleID,
		"rule_name":      v.RuleName,
		"severity":       string(v.Severity),
		"description":    v.Description,
		"field":          v.Field,
		"expected_value": v.Expected,
		"actual_value":   v.Actual,
		"remediation":    v.Remediation,
		"timestamp":      v.Timestamp.UTC(),
	}
}

// Result is the outcome of running one rule set against a proposed action.
// Derived, not persisted independently.
type Result struct {
	Passed         bool
	Violations     []Violation
	Severity       Severity // max across violations; empty when none
	ActionRequired Action
}

// ViolationMaps renders all violations for audit details.
func (r Result) ViolationMaps() []map[string]any {
	out := make([]map[string]any, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Map())
	}
	return out
}

// resultFrom derives the overall result from collected violations: severity
// is the maximum grade, and the required action follows from it. Only-advisory
// outcomes approve with a warning instead of forcing a review.
func resultFrom(violations []Violation) Result {
	r := Result{
		Passed:     len(violations) == 0,
		Violations: violations,
	}
	if r.Passed {
		r.ActionRequired = ActionApprove
		return r
	}
	for _, v := range violations {
		if severityRank[v.Severity] > severityRank[r.Severity] {
			r.Severity = v.Severity
		}
	}
	switch r.Severity {
	case SeverityCritical:
		r.ActionRequired = ActionReject
	case SeverityHigh:
		r.ActionRequired = ActionEscalate
	case SeverityMedium:
		r.ActionRequired = ActionReview
	default:
		r.ActionRequired = ActionApproveWithWarning
	}
	return r
}
