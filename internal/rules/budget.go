package rules

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Expense is a proposed spend against a budget line.
type Expense struct {
	ExpenseID  string
	Department string
	Amount     decimal.Decimal
}

// Budget is the allocation an expense is validated against.
type Budget struct {
	Allocated             decimal.Decimal
	AuthorizedDepartments []string
}

// Vendor is a supplier record checked before transacting.
type Vendor struct {
	VendorID string
	Status   string
}

// ValidateBudget checks an expense against its budget line and period spend.
func (e *Engine) ValidateBudget(expense Expense, budget Budget, periodSpend decimal.Decimal) Result {
	var violations []Violation

	if v := e.checkBudgetOverrun(expense.Amount, budget.Allocated, periodSpend); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkDepartmentAuthorization(expense, budget); v != nil {
		violations = append(violations, *v)
	}

	return resultFrom(violations)
}

// ValidateVendor checks a vendor's onboarding and status.
func (e *Engine) ValidateVendor(vendor Vendor, approvedVendors []string) Result {
	var violations []Violation

	if !slices.Contains(approvedVendors, vendor.VendorID) {
		violations = append(violations, e.violation(
			"VEN-001", "Unapproved Vendor", SeverityCritical,
			"Vendor is not on the approved vendor list",
			"vendor_id", "Approved vendor", vendor.VendorID,
			"BLOCK, complete vendor onboarding before transacting",
		))
	}
	if v := e.checkVendorStatus(vendor); v != nil {
		violations = append(violations, *v)
	}

	return resultFrom(violations)
}

// checkBudgetOverrun treats a non-positive allocation as a configuration
// problem in its own right, not a disabled check.
func (e *Engine) checkBudgetOverrun(amount, allocated, spent decimal.Decimal) *Violation {
	if allocated.LessThanOrEqual(decimal.Zero) {
		v := e.violation(
			"BUD-000", "Invalid Budget Configuration", SeverityCritical,
			fmt.Sprintf("Budget allocation is %s so no valid budget is defined", allocated),
			"allocated", "> 0", allocated.String(),
			"BLOCK, define a valid budget before approving expenses",
		)
		return &v
	}
	newTotal := spent.Add(amount)
	if newTotal.GreaterThan(allocated) {
		v := e.violation(
			"BUD-001", "Budget Overrun", SeverityCritical,
			fmt.Sprintf("Expense would bring period spend to %s against budget of %s", newTotal, allocated),
			"amount", allocated.String(), newTotal.String(),
			"ESCALATE, obtain CFO or budget-owner approval",
		)
		return &v
	}
	return nil
}

func (e *Engine) checkDepartmentAuthorization(expense Expense, budget Budget) *Violation {
	if slices.Contains(budget.AuthorizedDepartments, expense.Department) {
		return nil
	}
	v := e.violation(
		"BUD-003", "Unauthorized Department", SeverityHigh,
		fmt.Sprintf("Department %q is not authorized for this budget", expense.Department),
		"department", fmt.Sprint(budget.AuthorizedDepartments), expense.Department,
		"HOLD, re-route to an authorized department or request a budget amendment",
	)
	return &v
}

func (e *Engine) checkVendorStatus(vendor Vendor) *Violation {
	status := strings.ToLower(vendor.Status)
	if status == "active" {
		return nil
	}
	severity := SeverityHigh
	if status == "blocked" {
		severity = SeverityCritical
	}
	v := e.violation(
		"VEN-002", "Inactive Vendor", severity,
		fmt.Sprintf("Vendor status is %q, not active", status),
		"status", "active", status,
		"BLOCK, resolve vendor status before processing invoices",
	)
	return &v
}
