// Package models defines SLA timers and the breach-policy vocabulary.
package models

import "time"

// BreachAction is what the sweep executes when a timer expires.
type BreachAction string

const (
	// BreachAdvanceLevel force-advances the workflow's approval level with no
	// role check. The escape valve for stuck approvals.
	BreachAdvanceLevel BreachAction = "advance_level"
	BreachApprove      BreachAction = "approve"
	BreachReject       BreachAction = "reject"
	BreachEscalate     BreachAction = "escalate"
)

// Policy is one row of the policy matrix: how long an entity may sit in a
// workflow state for a tenant, and what happens when it overstays.
type Policy struct {
	TenantID       string
	State          string
	Hours          int
	ActionOnBreach BreachAction
}

// Instance is one active timer. At most one unbreached instance exists per
// entity; breached instances are kept (never deleted) as evidence.
type Instance struct {
	ID             string
	TenantID       string
	EntityType     string
	EntityID       string
	State          string
	DueAt          time.Time
	ActionOnBreach BreachAction
	Breached       bool
	BreachedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
