package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is the transaction record the invoice rule family inspects.
// Dates stay as wire strings so malformed input is a reportable violation,
// not a parse failure upstream of the engine.
type Invoice struct {
	InvoiceID   string
	VendorID    string
	Amount      decimal.Decimal
	Currency    string
	InvoiceDate string
	Description string
	PONumber    string
}

// Contract is the master service agreement an invoice is validated against.
type Contract struct {
	VendorID    string
	RateCeiling decimal.Decimal
	StartDate   string
	EndDate     string
	Currency    string
}

var poFormat = regexp.MustCompile(`^PO-\d{5}$`)

// ValidateInvoice runs the full invoice rule set. Order matters only where
// rules depend on each other: the vendor-match check runs before the ceiling
// and date checks on the same contract fields. All violations are collected;
// nothing short-circuits.
func (e *Engine) ValidateInvoice(inv Invoice, contract Contract, historical []Invoice) Result {
	var violations []Violation

	if len(historical) > 0 {
		if v := e.checkDuplicateInvoice(inv, historical); v != nil {
			violations = append(violations, *v)
		}
	}

	for _, check := range []func(Invoice, Contract) *Violation{
		e.checkContractVendorMatch,
		e.checkRateCeiling,
		e.checkContractDateRange,
		e.checkCurrencyMatch,
	} {
		if v := check(inv, contract); v != nil {
			violations = append(violations, *v)
		}
	}

	violations = append(violations, e.checkRequiredFields(inv)...)

	if v := e.checkPOFormat(inv); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkAmountSign(inv); v != nil {
		violations = append(violations, *v)
	}
	violations = append(violations, e.checkAmountReasonableness(inv, historical)...)

	return resultFrom(violations)
}

// parseISO accepts full RFC 3339 timestamps, bare datetimes, and bare dates.
func parseISO(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO date: %q", s)
}

// checkDuplicateInvoice requires BOTH amount similarity AND date proximity
// inside the configured window. Two recurring charges with equal amounts
// months apart are not duplicates.
func (e *Engine) checkDuplicateInvoice(inv Invoice, historical []Invoice) *Violation {
	invDate, err := parseISO(inv.InvoiceDate)
	if err != nil {
		// Malformed invoice; the required-field and date checks report it.
		return nil
	}
	cutoff := e.now().AddDate(0, 0, -e.cfg.DuplicateLookbackDays)

	for _, h := range historical {
		if h.VendorID != inv.VendorID {
			continue
		}
		histDate, err := parseISO(h.InvoiceDate)
		if err != nil || !histDate.After(cutoff) {
			continue
		}

		amountMatch := h.Amount.Sub(inv.Amount).Abs().LessThanOrEqual(e.cfg.AmountTolerance)
		days := invDate.Sub(histDate).Hours() / 24
		if days < 0 {
			days = -days
		}
		dateProximity := days <= float64(e.cfg.DuplicateDateWindowDays)

		if amountMatch && dateProximity {
			v := e.violation(
				"INV-001", "Duplicate Invoice", SeverityCritical,
				fmt.Sprintf("Duplicate: same amount within %d-day window", e.cfg.DuplicateDateWindowDays),
				"invoice_id", "Unique invoice", h.InvoiceID,
				"REJECT duplicate and verify with vendor",
			)
			return &v
		}
	}
	return nil
}

func (e *Engine) checkContractVendorMatch(inv Invoice, contract Contract) *Violation {
	if inv.VendorID == "" || contract.VendorID == "" || inv.VendorID == contract.VendorID {
		return nil
	}
	v := e.violation(
		"MSA-004", "Contract Vendor Mismatch", SeverityCritical,
		"Invoice vendor does not match contract vendor",
		"vendor_id", contract.VendorID, inv.VendorID,
		"REJECT and resubmit against the correct contract",
	)
	return &v
}

// checkRateCeiling treats a non-positive ceiling as a configuration problem
// worth reporting, never a silent bypass of the ceiling check.
func (e *Engine) checkRateCeiling(inv Invoice, contract Contract) *Violation {
	if contract.RateCeiling.LessThanOrEqual(decimal.Zero) {
		v := e.violation(
			"MSA-003", "Unconfigured Rate Ceiling", SeverityMedium,
			fmt.Sprintf("Contract rate_ceiling is %s so the ceiling check is disabled", contract.RateCeiling),
			"rate_ceiling", "> 0", contract.RateCeiling.String(),
			"REVIEW and configure a valid ceiling on the contract record",
		)
		return &v
	}
	if inv.Amount.GreaterThan(contract.RateCeiling) {
		v := e.violation(
			"MSA-001", "Rate Ceiling Violation", SeverityCritical,
			"Invoice amount exceeds contract rate ceiling",
			"amount", contract.RateCeiling.String(), inv.Amount.String(),
			"REJECT or renegotiate the contract ceiling",
		)
		return &v
	}
	return nil
}

// checkContractDateRange distinguishes a malformed contract record (blocks
// processing) from a malformed invoice record (rejects the transaction), and
// flags inverted contract ranges separately.
func (e *Engine) checkContractDateRange(inv Invoice, contract Contract) *Violation {
	start, startErr := parseISO(contract.StartDate)
	end, endErr := parseISO(contract.EndDate)
	if startErr != nil || endErr != nil {
		v := e.violation(
			"MSA-000a", "Invalid Contract Date Configuration", SeverityHigh,
			"Contract start_date or end_date is not a valid ISO datetime",
			"contract.start_date / contract.end_date", "ISO format",
			fmt.Sprintf("%s / %s", contract.StartDate, contract.EndDate),
			"BLOCK and fix the contract record before processing invoices",
		)
		return &v
	}

	if !start.Before(end) {
		v := e.violation(
			"MSA-005", "Inverted Contract Date Range", SeverityHigh,
			fmt.Sprintf("Contract start_date (%s) is not before end_date (%s)",
				start.Format("2006-01-02"), end.Format("2006-01-02")),
			"contract.start_date", fmt.Sprintf("< %s", end.Format("2006-01-02")), start.Format("2006-01-02"),
			"BLOCK and correct the contract date range",
		)
		return &v
	}

	invDate, err := parseISO(inv.InvoiceDate)
	if err != nil {
		v := e.violation(
			"MSA-000b", "Invalid Invoice Date", SeverityCritical,
			"invoice_date is not a valid ISO datetime",
			"invoice_date", "ISO format", inv.InvoiceDate,
			"REJECT, correct invoice_date and resubmit",
		)
		return &v
	}

	if invDate.Before(start) || invDate.After(end) {
		v := e.violation(
			"MSA-002", "Contract Date Range Violation", SeverityHigh,
			"Invoice date falls outside the contract validity window",
			"invoice_date",
			fmt.Sprintf("%s to %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
			invDate.Format("2006-01-02"),
			"REVIEW and confirm the contract is active for this period",
		)
		return &v
	}
	return nil
}

func (e *Engine) checkCurrencyMatch(inv Invoice, contract Contract) *Violation {
	if strings.EqualFold(inv.Currency, contract.Currency) {
		return nil
	}
	v := e.violation(
		"INV-002", "Currency Mismatch", SeverityMedium,
		"Invoice currency does not match contract currency",
		"currency", contract.Currency, inv.Currency,
		"REVIEW, obtain FX approval or resubmit in the correct currency",
	)
	return &v
}

func (e *Engine) checkRequiredFields(inv Invoice) []Violation {
	required := []struct {
		name  string
		value string
	}{
		{"invoice_id", inv.InvoiceID},
		{"vendor_id", inv.VendorID},
		{"currency", inv.Currency},
		{"invoice_date", inv.InvoiceDate},
		{"description", inv.Description},
	}
	var violations []Violation
	for _, f := range required {
		if strings.TrimSpace(f.value) != "" {
			continue
		}
		violations = append(violations, e.violation(
			"INV-003-"+f.name, "Missing Required Field", SeverityHigh,
			fmt.Sprintf("Required field %q is missing or blank", f.name),
			f.name, "Non-empty value", "Missing / blank",
			"HOLD, provide the missing field and resubmit",
		))
	}
	return violations
}

func (e *Engine) checkPOFormat(inv Invoice) *Violation {
	if inv.PONumber == "" || poFormat.MatchString(inv.PONumber) {
		return nil
	}
	v := e.violation(
		"INV-005", "Invalid PO Format", SeverityLow,
		"PO number does not match required format PO-XXXXX",
		"po_number", "PO-XXXXX (5 digits)", inv.PONumber,
		"WARNING, verify PO number with procurement",
	)
	return &v
}

// checkAmountSign reports zero and negative amounts as distinct violation
// kinds: a zero amount is a possible ghost invoice, a negative amount is a
// credit note needing separate routing.
func (e *Engine) checkAmountSign(inv Invoice) *Violation {
	if inv.Amount.IsNegative() {
		v := e.violation(
			"INV-009", "Unrouted Credit Note", SeverityMedium,
			fmt.Sprintf("Negative invoice amount (%s) indicates a credit note", inv.Amount),
			"amount", ">= 0", inv.Amount.String(),
			"REVIEW, route to the credit note workflow for GL treatment",
		)
		return &v
	}
	if inv.Amount.IsZero() {
		v := e.violation(
			"INV-007", "Zero Invoice Amount", SeverityLow,
			"Invoice amount is zero, possible ghost/test invoice",
			"amount", "> 0", inv.Amount.String(),
			"WARNING, confirm intentional zero-amount invoice with vendor",
		)
		return &v
	}
	return nil
}

// checkAmountReasonableness compares the amount against the vendor's trailing
// average. "History exists but none of it is recent" is an advisory; "no
// history at all" is silently skipped.
func (e *Engine) checkAmountReasonableness(inv Invoice, historical []Invoice) []Violation {
	if len(historical) == 0 {
		return nil
	}

	cutoff := e.now().AddDate(0, 0, -e.cfg.SpikeLookbackDays)
	var inWindow []decimal.Decimal
	hasHistory := false

	for _, h := range historical {
		if h.VendorID != inv.VendorID {
			continue
		}
		histDate, err := parseISO(h.InvoiceDate)
		if err != nil {
			continue
		}
		hasHistory = true
		if !histDate.After(cutoff) {
			continue
		}
		inWindow = append(inWindow, h.Amount)
	}

	if hasHistory && len(inWindow) == 0 {
		return []Violation{e.violation(
			"INV-008", "No Recent Invoice Baseline", SeverityLow,
			fmt.Sprintf("Vendor has historical invoices but none within the %d-day window; spike check skipped",
				e.cfg.SpikeLookbackDays),
			"invoice_date", fmt.Sprintf("History within %d days", e.cfg.SpikeLookbackDays), "None found",
			"INFO, review manually or extend the lookback window",
		)}
	}
	if len(inWindow) == 0 {
		return nil
	}

	sum := decimal.Zero
	for _, amount := range inWindow {
		sum = sum.Add(amount)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(inWindow))))

	if inv.Amount.GreaterThan(avg.Mul(e.cfg.SpikeMultiplier)) {
		return []Violation{e.violation(
			"INV-006", "Unusual Amount Spike", SeverityMedium,
			fmt.Sprintf("Invoice (%s) exceeds %s times the vendor average (%s)",
				inv.Amount, e.cfg.SpikeMultiplier, avg.StringFixed(2)),
			"amount", avg.StringFixed(2), inv.Amount.String(),
			"REVIEW, confirm scope change or renegotiated rate with vendor",
		)}
	}
	return nil
}
