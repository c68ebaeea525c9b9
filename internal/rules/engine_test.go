package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type RuleEngineSuite struct {
	suite.Suite
	engine *Engine
	now    time.Time
}

func TestRuleEngineSuite(t *testing.T) {
	suite.Run(t, new(RuleEngineSuite))
}

func (s *RuleEngineSuite) SetupTest() {
	s.now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	s.engine = New(DefaultConfig(), WithClock(func() time.Time { return s.now }))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (s *RuleEngineSuite) validInvoice() Invoice {
	return Invoice{
		InvoiceID:   "INV-1001",
		VendorID:    "VEN-07",
		Amount:      dec("12500.00"),
		Currency:    "USD",
		InvoiceDate: "2026-06-10",
		Description: "June retainer",
		PONumber:    "PO-12345",
	}
}

func (s *RuleEngineSuite) validContract() Contract {
	return Contract{
		VendorID:    "VEN-07",
		RateCeiling: dec("50000"),
		StartDate:   "2026-01-01",
		EndDate:     "2026-12-31",
		Currency:    "USD",
	}
}

func (s *RuleEngineSuite) ruleIDs(r Result) []string {
	ids := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		ids = append(ids, v.RuleID)
	}
	return ids
}

func (s *RuleEngineSuite) TestCleanInvoicePasses() {
	r := s.engine.ValidateInvoice(s.validInvoice(), s.validContract(), nil)
	s.True(r.Passed)
	s.Empty(r.Violations)
	s.Equal(Severity(""), r.Severity)
	s.Equal(ActionApprove, r.ActionRequired)
}

func (s *RuleEngineSuite) TestActionDerivedFromMaxSeverity() {
	s.Run("only advisory approves with warning", func() {
		inv := s.validInvoice()
		inv.PONumber = "PO-BAD"
		r := s.engine.ValidateInvoice(inv, s.validContract(), nil)
		s.False(r.Passed)
		s.Equal(SeverityLow, r.Severity)
		s.Equal(ActionApproveWithWarning, r.ActionRequired)
	})

	s.Run("medium requires review", func() {
		inv := s.validInvoice()
		inv.Currency = "EUR"
		r := s.engine.ValidateInvoice(inv, s.validContract(), nil)
		s.Equal(SeverityMedium, r.Severity)
		s.Equal(ActionReview, r.ActionRequired)
	})

	s.Run("high escalates", func() {
		inv := s.validInvoice()
		inv.InvoiceDate = "2025-03-01"
		r := s.engine.ValidateInvoice(inv, s.validContract(), nil)
		s.Equal(SeverityHigh, r.Severity)
		s.Equal(ActionEscalate, r.ActionRequired)
	})

	s.Run("critical rejects", func() {
		inv := s.validInvoice()
		inv.Amount = dec("90000")
		r := s.engine.ValidateInvoice(inv, s.validContract(), nil)
		s.Equal(SeverityCritical, r.Severity)
		s.Equal(ActionReject, r.ActionRequired)
	})
}

func (s *RuleEngineSuite) TestAllViolationsCollected() {
	inv := s.validInvoice()
	inv.Currency = "EUR"    // INV-002 medium
	inv.PONumber = "PO-1"   // INV-005 low
	inv.Amount = dec("-50") // INV-009 medium
	r := s.engine.ValidateInvoice(inv, s.validContract(), nil)

	s.False(r.Passed)
	s.ElementsMatch([]string{"INV-002", "INV-005", "INV-009"}, s.ruleIDs(r))
}

func (s *RuleEngineSuite) TestNonPositiveCeilingIsConfigViolation() {
	contract := s.validContract()
	contract.RateCeiling = decimal.Zero
	r := s.engine.ValidateInvoice(s.validInvoice(), contract, nil)

	s.Require().Len(r.Violations, 1)
	s.Equal("MSA-003", r.Violations[0].RuleID)
	s.Equal(SeverityMedium, r.Violations[0].Severity, "never silently skipped")
}

func (s *RuleEngineSuite) TestContractDateRangeDistinctions() {
	s.Run("malformed contract dates block at high", func() {
		contract := s.validContract()
		contract.StartDate = "not-a-date"
		r := s.engine.ValidateInvoice(s.validInvoice(), contract, nil)
		s.Contains(s.ruleIDs(r), "MSA-000a")
		s.Equal(SeverityHigh, r.Severity)
	})

	s.Run("inverted contract range is its own finding", func() {
		contract := s.validContract()
		contract.StartDate = "2026-12-31"
		contract.EndDate = "2026-01-01"
		r := s.engine.ValidateInvoice(s.validInvoice(), contract, nil)
		s.Contains(s.ruleIDs(r), "MSA-005")
	})

	s.Run("malformed invoice date rejects at critical", func() {
		inv := s.validInvoice()
		inv.InvoiceDate = "06/10/2026"
		r := s.engine.ValidateInvoice(inv, s.validContract(), nil)
		s.Contains(s.ruleIDs(r), "MSA-000b")
		s.Equal(SeverityCritical, r.Severity)
	})

	s.Run("date outside window flags review", func() {
		inv := s.validInvoice()
		inv.InvoiceDate = "2027-02-01"
		r := s.engine.ValidateInvoice(inv, s.validContract(), nil)
		s.Contains(s.ruleIDs(r), "MSA-002")
	})
}

func (s *RuleEngineSuite) TestZeroAndNegativeAmountsAreDistinct() {
	inv := s.validInvoice()
	inv.Amount = decimal.Zero
	r := s.engine.ValidateInvoice(inv, s.validContract(), nil)
	s.Contains(s.ruleIDs(r), "INV-007")
	s.NotContains(s.ruleIDs(r), "INV-009")

	inv.Amount = dec("-200")
	r = s.engine.ValidateInvoice(inv, s.validContract(), nil)
	s.Contains(s.ruleIDs(r), "INV-009")
	s.NotContains(s.ruleIDs(r), "INV-007")
}

func (s *RuleEngineSuite) TestDuplicateNeedsAmountAndProximity() {
	inv := s.validInvoice()

	s.Run("same amount days apart is a duplicate", func() {
		hist := []Invoice{{
			InvoiceID: "INV-0990", VendorID: "VEN-07",
			Amount: dec("12500.00"), InvoiceDate: "2026-06-07",
		}}
		r := s.engine.ValidateInvoice(inv, s.validContract(), hist)
		s.Contains(s.ruleIDs(r), "INV-001")
		s.Equal(ActionReject, r.ActionRequired)
	})

	s.Run("same amount months apart is a recurring charge", func() {
		hist := []Invoice{{
			InvoiceID: "INV-0900", VendorID: "VEN-07",
			Amount: dec("12500.00"), InvoiceDate: "2026-04-10",
		}}
		r := s.engine.ValidateInvoice(inv, s.validContract(), hist)
		s.NotContains(s.ruleIDs(r), "INV-001")
	})

	s.Run("close dates with different amounts are not duplicates", func() {
		hist := []Invoice{{
			InvoiceID: "INV-0991", VendorID: "VEN-07",
			Amount: dec("9800.00"), InvoiceDate: "2026-06-08",
		}}
		r := s.engine.ValidateInvoice(inv, s.validContract(), hist)
		s.NotContains(s.ruleIDs(r), "INV-001")
	})
}

func (s *RuleEngineSuite) TestSpikeDetectionBaselines() {
	inv := s.validInvoice()
	inv.Amount = dec("40000")
	contract := s.validContract()
	contract.RateCeiling = dec("100000")

	s.Run("spike against recent average", func() {
		hist := []Invoice{
			{InvoiceID: "h1", VendorID: "VEN-07", Amount: dec("10000"), InvoiceDate: "2026-05-10"},
			{InvoiceID: "h2", VendorID: "VEN-07", Amount: dec("11000"), InvoiceDate: "2026-04-20"},
		}
		r := s.engine.ValidateInvoice(inv, contract, hist)
		s.Contains(s.ruleIDs(r), "INV-006")
	})

	s.Run("stale history is an advisory, not a skip", func() {
		hist := []Invoice{
			{InvoiceID: "h3", VendorID: "VEN-07", Amount: dec("10000"), InvoiceDate: "2025-09-01"},
		}
		r := s.engine.ValidateInvoice(inv, contract, hist)
		s.Contains(s.ruleIDs(r), "INV-008")
		s.NotContains(s.ruleIDs(r), "INV-006")
	})

	s.Run("no history at all is silent", func() {
		hist := []Invoice{
			{InvoiceID: "h4", VendorID: "VEN-99", Amount: dec("10000"), InvoiceDate: "2026-06-01"},
		}
		r := s.engine.ValidateInvoice(inv, contract, hist)
		s.NotContains(s.ruleIDs(r), "INV-006")
		s.NotContains(s.ruleIDs(r), "INV-008")
	})
}

func (s *RuleEngineSuite) TestValidateEdit() {
	user := UserContext{
		UserID: "u-1", Role: "analyst",
		AllowedCostCenters: []string{"CC-100", "CC-200"},
	}
	base := EditRequest{
		CostCenterID:  "CC-100",
		OldValue:      dec("100000"),
		NewValue:      dec("105000"),
		VersionStatus: "draft",
	}

	s.Run("clean edit passes", func() {
		r := s.engine.ValidateEdit(user, base)
		s.True(r.Passed)
	})

	s.Run("locked version is critical", func() {
		req := base
		req.VersionLocked = true
		r := s.engine.ValidateEdit(user, req)
		s.Contains(s.ruleIDs(r), "GOV-001")
		s.Equal(ActionReject, r.ActionRequired)
	})

	s.Run("locked period is critical", func() {
		req := base
		req.PeriodLocked = true
		r := s.engine.ValidateEdit(user, req)
		s.Contains(s.ruleIDs(r), "GOV-002")
	})

	s.Run("cost center outside scope is critical", func() {
		req := base
		req.CostCenterID = "CC-999"
		r := s.engine.ValidateEdit(user, req)
		s.Contains(s.ruleIDs(r), "GOV-003")
	})

	s.Run("non-draft lifecycle blocks edit", func() {
		req := base
		req.VersionStatus = "submitted"
		r := s.engine.ValidateEdit(user, req)
		s.Contains(s.ruleIDs(r), "GOV-004")
		s.Equal(ActionEscalate, r.ActionRequired)
	})

	s.Run("material change requires review", func() {
		req := base
		req.NewValue = dec("120000") // 20% > 15% threshold
		r := s.engine.ValidateEdit(user, req)
		s.Contains(s.ruleIDs(r), "GOV-005")
	})

	s.Run("change at threshold is not material", func() {
		req := base
		req.NewValue = dec("115000") // exactly 15%
		r := s.engine.ValidateEdit(user, req)
		s.NotContains(s.ruleIDs(r), "GOV-005")
	})

	s.Run("zero prior value skips materiality", func() {
		req := base
		req.OldValue = decimal.Zero
		req.NewValue = dec("500000")
		r := s.engine.ValidateEdit(user, req)
		s.NotContains(s.ruleIDs(r), "GOV-005")
	})
}

func (s *RuleEngineSuite) TestValidateSubmission() {
	analyst := UserContext{UserID: "u-1", Role: "analyst"}

	r := s.engine.ValidateSubmission(analyst, SubmissionRequest{VersionStatus: "draft"})
	s.True(r.Passed)

	r = s.engine.ValidateSubmission(analyst, SubmissionRequest{VersionStatus: "approved"})
	s.Contains(s.ruleIDs(r), "GOV-100")

	viewer := UserContext{UserID: "u-2", Role: "viewer"}
	r = s.engine.ValidateSubmission(viewer, SubmissionRequest{VersionStatus: "draft"})
	s.Contains(s.ruleIDs(r), "GOV-101")
	s.Equal(ActionReject, r.ActionRequired)
}

func (s *RuleEngineSuite) TestValidateApproval() {
	manager := UserContext{UserID: "u-3", Role: "manager"}

	r := s.engine.ValidateApproval(manager, ApprovalRequest{VersionStatus: "submitted"})
	s.True(r.Passed)

	r = s.engine.ValidateApproval(manager, ApprovalRequest{VersionStatus: "under_review"})
	s.True(r.Passed)

	r = s.engine.ValidateApproval(manager, ApprovalRequest{VersionStatus: "draft"})
	s.Contains(s.ruleIDs(r), "GOV-200")

	analyst := UserContext{UserID: "u-1", Role: "analyst"}
	r = s.engine.ValidateApproval(analyst, ApprovalRequest{VersionStatus: "submitted"})
	s.Contains(s.ruleIDs(r), "GOV-201")
}

func (s *RuleEngineSuite) TestValidateBudget() {
	budget := Budget{Allocated: dec("100000"), AuthorizedDepartments: []string{"ops"}}

	s.Run("within budget passes", func() {
		r := s.engine.ValidateBudget(Expense{ExpenseID: "e1", Department: "ops", Amount: dec("1000")}, budget, dec("50000"))
		s.True(r.Passed)
	})

	s.Run("non-positive allocation is a config violation", func() {
		r := s.engine.ValidateBudget(Expense{Department: "ops", Amount: dec("1")}, Budget{Allocated: decimal.Zero, AuthorizedDepartments: []string{"ops"}}, decimal.Zero)
		s.Contains(s.ruleIDs(r), "BUD-000")
	})

	s.Run("overrun is critical", func() {
		r := s.engine.ValidateBudget(Expense{Department: "ops", Amount: dec("60000")}, budget, dec("50000"))
		s.Contains(s.ruleIDs(r), "BUD-001")
	})

	s.Run("unauthorized department holds", func() {
		r := s.engine.ValidateBudget(Expense{Department: "r&d", Amount: dec("1")}, budget, decimal.Zero)
		s.Contains(s.ruleIDs(r), "BUD-003")
	})
}

func (s *RuleEngineSuite) TestValidateVendor() {
	r := s.engine.ValidateVendor(Vendor{VendorID: "VEN-07", Status: "active"}, []string{"VEN-07"})
	s.True(r.Passed)

	r = s.engine.ValidateVendor(Vendor{VendorID: "VEN-08", Status: "active"}, []string{"VEN-07"})
	s.Contains(s.ruleIDs(r), "VEN-001")

	r = s.engine.ValidateVendor(Vendor{VendorID: "VEN-07", Status: "blocked"}, []string{"VEN-07"})
	s.Contains(s.ruleIDs(r), "VEN-002")
	s.Equal(SeverityCritical, r.Severity)

	r = s.engine.ValidateVendor(Vendor{VendorID: "VEN-07", Status: "pending"}, []string{"VEN-07"})
	s.Equal(SeverityHigh, r.Severity)
}
