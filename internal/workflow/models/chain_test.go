package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type ChainSuite struct {
	suite.Suite
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (s *ChainSuite) TestMagnitudeTiers() {
	s.Equal([]string{"manager"},
		ResolveApprovalChain(ChainContext{Amount: amount("500000")}))
	s.Equal([]string{"manager", "fpna_head"},
		ResolveApprovalChain(ChainContext{Amount: amount("2000000")}))
	s.Equal([]string{"cfo"},
		ResolveApprovalChain(ChainContext{Amount: amount("10000000")}))
}

func (s *ChainSuite) TestHighRiskAppendsSeniorApprovers() {
	s.Equal([]string{"manager", "fpna_head"},
		ResolveApprovalChain(ChainContext{Amount: amount("500000"), Risk: "high"}))

	// High risk at 5M+ pulls in the CFO as well.
	s.Equal([]string{"manager", "fpna_head", "cfo"},
		ResolveApprovalChain(ChainContext{Amount: amount("6000000"), Risk: "high"}))

	// Already-present roles are not duplicated.
	s.Equal([]string{"manager", "fpna_head"},
		ResolveApprovalChain(ChainContext{Amount: amount("2000000"), Risk: "high"}))
}

func (s *ChainSuite) TestVarianceOverrides() {
	s.Equal([]string{"cfo"},
		ResolveApprovalChain(ChainContext{Amount: amount("500000"), Variance: amount("0.35")}),
		"extreme variance collapses the chain regardless of magnitude")

	s.Equal([]string{"manager", "fpna_head"},
		ResolveApprovalChain(ChainContext{Amount: amount("500000"), Variance: amount("0.25")}))

	s.Equal([]string{"cfo"},
		ResolveApprovalChain(ChainContext{Amount: amount("2000000"), Variance: amount("0.30")}),
		"collapse threshold is inclusive")
}

func (s *ChainSuite) TestChainSortedByHierarchy() {
	// cfo base tier plus high risk appending fpna_head must still come out in
	// hierarchy order, not append order.
	chain := ResolveApprovalChain(ChainContext{Amount: amount("12000000"), Risk: "high"})
	s.Equal([]string{"fpna_head", "cfo"}, chain)
}

func (s *ChainSuite) TestContextExtraction() {
	ctx := ChainContextFrom(map[string]any{
		"amount":       "2500000.50",
		"risk":         "high",
		"variance_pct": 0.25,
	})
	s.True(ctx.Amount.Equal(amount("2500000.50")))
	s.Equal("high", ctx.Risk)
	s.True(ctx.Variance.Equal(amount("0.25")))

	empty := ChainContextFrom(nil)
	s.Equal([]string{"manager"}, ResolveApprovalChain(empty))
}

func (s *ChainSuite) TestStateTable() {
	next, ok := StateDraft.Next(ActionReview)
	s.True(ok)
	s.Equal(StateUnderReview, next)

	_, ok = StateDraft.Next(ActionApprove)
	s.False(ok, "draft cannot be approved directly")

	_, ok = StateApproved.Next(ActionReject)
	s.False(ok, "terminal states permit nothing")

	s.True(StateApproved.Terminal())
	s.True(StateRejected.Terminal())
	s.False(StateEscalated.Terminal())
}
