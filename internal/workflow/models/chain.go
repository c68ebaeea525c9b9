package models

import (
	"slices"

	"github.com/shopspring/decimal"
)

// roleHierarchy is the fixed ordering chains are sorted by after derivation.
var roleHierarchy = []string{"manager", "fpna_head", "cfo"}

var (
	chainTierCFO  = decimal.New(10_000_000, 0)
	chainTierDual = decimal.New(1_000_000, 0)
	riskCFOFloor  = decimal.New(5_000_000, 0)

	varianceCollapse = decimal.RequireFromString("0.30")
	varianceAppend   = decimal.RequireFromString("0.20")
)

// ChainContext carries the instance-context inputs chain derivation reads.
// Variance is a fraction of the prior value, not a percentage.
type ChainContext struct {
	Amount   decimal.Decimal
	Risk     string
	Variance decimal.Decimal
}

// ResolveApprovalChain derives the ordered approver roles for a new instance.
// Pure function of its input: base tier by monetary magnitude, high risk
// appends senior approvers, and extreme variance collapses the chain straight
// to the CFO. The result is deduplicated and sorted by hierarchy order.
func ResolveApprovalChain(ctx ChainContext) []string {
	var chain []string
	switch {
	case ctx.Amount.GreaterThanOrEqual(chainTierCFO):
		chain = []string{"cfo"}
	case ctx.Amount.GreaterThanOrEqual(chainTierDual):
		chain = []string{"manager", "fpna_head"}
	default:
		chain = []string{"manager"}
	}

	if ctx.Risk == "high" {
		chain = appendRole(chain, "fpna_head")
		if ctx.Amount.GreaterThanOrEqual(riskCFOFloor) {
			chain = appendRole(chain, "cfo")
		}
	}

	switch {
	case ctx.Variance.GreaterThanOrEqual(varianceCollapse):
		chain = []string{"cfo"}
	case ctx.Variance.GreaterThanOrEqual(varianceAppend):
		chain = appendRole(chain, "fpna_head")
	}

	return sortByHierarchy(dedupe(chain))
}

// ChainContextFrom extracts derivation inputs from a free-form instance
// context map. Unknown or mistyped keys fall back to zero values rather than
// failing: an empty context yields the minimal [manager] chain.
func ChainContextFrom(context map[string]any) ChainContext {
	var ctx ChainContext
	if v, ok := context["amount"]; ok {
		ctx.Amount = toDecimal(v)
	}
	if v, ok := context["risk"].(string); ok {
		ctx.Risk = v
	}
	if v, ok := context["variance_pct"]; ok {
		ctx.Variance = toDecimal(v)
	}
	return ctx
}

func toDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case string:
		if d, err := decimal.NewFromString(n); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	}
	return decimal.Zero
}

func appendRole(chain []string, role string) []string {
	if slices.Contains(chain, role) {
		return chain
	}
	return append(chain, role)
}

func dedupe(chain []string) []string {
	seen := make(map[string]struct{}, len(chain))
	out := chain[:0]
	for _, role := range chain {
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func sortByHierarchy(chain []string) []string {
	slices.SortStableFunc(chain, func(a, b string) int {
		return hierarchyRank(a) - hierarchyRank(b)
	})
	return chain
}

func hierarchyRank(role string) int {
	if i := slices.Index(roleHierarchy, role); i >= 0 {
		return i
	}
	return len(roleHierarchy)
}
