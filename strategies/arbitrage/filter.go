package arbitrage

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/arbengine/types"
)

// Rejection reasons
const (
	ReasonAccepted       = ""
	ReasonMalformed      = "malformed"
	ReasonLowProfit      = "profit_below_threshold"
	ReasonSlippageTooBig = "slippage_above_threshold"
)

// Filter accepts opportunities whose expected profit reaches MinProfit (wei)
// and whose slippage does not exceed MaxSlippage (percent).
type Filter struct {
	MinProfit   *big.Int
	MaxSlippage float64
}

// NewFilter creates a new threshold filter
func NewFilter(minProfit *big.Int, maxSlippage float64) Filter {
	if minProfit == nil {
		minProfit = new(big.Int)
	}
	return Filter{MinProfit: new(big.Int).Set(minProfit), MaxSlippage: maxSlippage}
}

// Accepts reports whether opp passes both thresholds
func (f Filter) Accepts(opp types.Opportunity) bool {
	return f.Evaluate(opp) == ReasonAccepted
}

// Evaluate returns the rejection reason for opp, empty when accepted
func (f Filter) Evaluate(opp types.Opportunity) string {
	switch {
	case opp.ExpectedProfit == nil || opp.ExpectedProfit.Sign() < 0,
		opp.OptimalAmount == nil || opp.OptimalAmount.Sign() <= 0,
		opp.ContractAddress == (common.Address{}),
		math.IsNaN(opp.Slippage) || opp.Slippage < 0:
		return ReasonMalformed
	case f.MinProfit != nil && opp.ExpectedProfit.Cmp(f.MinProfit) < 0:
		return ReasonLowProfit
	case opp.Slippage > f.MaxSlippage:
		return ReasonSlippageTooBig
	}
	return ReasonAccepted
}

// Apply splits opps into accepted and rejected, both in feed order
func (f Filter) Apply(opps []types.Opportunity) (accepted, rejected []types.Opportunity) {
	for _, opp := range opps {
		if f.Accepts(opp) {
			accepted = append(accepted, opp)
		} else {
			rejected = append(rejected, opp)
		}
	}
	return accepted, rejected
}
