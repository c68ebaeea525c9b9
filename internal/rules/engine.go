// Package rules implements the stateless policy evaluator. Every rule is an
// independent pure check returning an optional Violation; the engine runs the
// full applicable set and collects all violations so callers see every problem
// at once. All monetary comparisons use exact decimal arithmetic.
package rules

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config carries the tunable thresholds the rule families consult.
type Config struct {
	// AmountTolerance is the maximum difference for two amounts to count as
	// "the same" during duplicate detection.
	AmountTolerance decimal.Decimal
	// DuplicateLookbackDays bounds how far back duplicate detection looks.
	DuplicateLookbackDays int
	// DuplicateDateWindowDays is the proximity window: equal amounts further
	// apart than this are recurring charges, not duplicates.
	DuplicateDateWindowDays int
	// SpikeLookbackDays bounds the trailing-average baseline window.
	SpikeLookbackDays int
	// SpikeMultiplier is how many times the trailing average an amount must
	// exceed before it is flagged as a spike.
	SpikeMultiplier decimal.Decimal
	// MaterialityThreshold is the fractional delta beyond which a forecast
	// change requires manager review.
	MaterialityThreshold decimal.Decimal
}

// DefaultConfig mirrors the production policy defaults.
func DefaultConfig() Config {
	return Config{
		AmountTolerance:         decimal.RequireFromString("0.01"),
		DuplicateLookbackDays:   90,
		DuplicateDateWindowDays: 7,
		SpikeLookbackDays:       90,
		SpikeMultiplier:         decimal.NewFromInt(3),
		MaterialityThreshold:    decimal.RequireFromString("0.15"),
	}
}

// UserContext describes the caller on whose behalf an action is evaluated.
type UserContext struct {
	UserID             string
	UserName           string
	Role               string
	TenantID           string
	AllowedCostCenters []string
}

// Engine evaluates business rules against proposed financial actions.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	cfg Config
	now func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithClock injects the time source for deterministic testing.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a rule engine with the given thresholds.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) violation(ruleID, ruleName string, severity Severity, description, field, expected, actual, remediation string) Violation {
	return Violation{
		RuleID:      ruleID,
		RuleName:    ruleName,
		Severity:    severity,
		Description: description,
		Field:       field,
		Expected:    expected,
		Actual:      actual,
		Remediation: remediation,
		Timestamp:   e.now().UTC(),
	}
}
