package utils

import (
	"errors"
	"math/big"

	"github.com/michaelpento.lv/liquidator/protocol"
	"github.com/michaelpento.lv/liquidator/types"
	"github.com/michaelpento.lv/liquidator/utils/math"
)

// ProfitCalculator weighs a sized liquidation against its cost. All values
// are oracle USD units.
type ProfitCalculator struct {
	slippageBps *big.Int
	threshold   *big.Int
}

// NewProfitCalculator creates a calculator charging slippageBps of the
// seized value and requiring threshold above gas cost
func NewProfitCalculator(slippageBps int64, threshold *big.Int) *ProfitCalculator {
	if threshold == nil {
		threshold = new(big.Int)
	}
	return &ProfitCalculator{
		slippageBps: big.NewInt(slippageBps),
		threshold:   new(big.Int).Set(threshold),
	}
}

// Slippage is the expected loss swapping rewardedUSD of collateral back
func (p *ProfitCalculator) Slippage(rewardedUSD *big.Int) *big.Int {
	return math.PercentMul(rewardedUSD, p.slippageBps)
}

// CalculateExpectedProfit returns rewarded - repaid - slippage. The result
// may be negative.
func (p *ProfitCalculator) CalculateExpectedProfit(params *types.UserLiquidationParams) (*big.Int, error) {
	if params == nil || params.RewardedUSD == nil || params.DebtMarket == nil {
		return nil, errors.New("invalid parameters")
	}

	profit := new(big.Int).Sub(params.RewardedUSD, protocol.RepaidUSD(params))
	return profit.Sub(profit, p.Slippage(params.RewardedUSD)), nil
}

// IsProfitable is true iff expectedProfit > gasCostUSD + threshold
func (p *ProfitCalculator) IsProfitable(expectedProfit, gasCostUSD *big.Int) bool {
	if expectedProfit == nil {
		return false
	}
	if gasCostUSD == nil {
		gasCostUSD = new(big.Int)
	}
	return math.ExceedsWithMargin(expectedProfit, gasCostUSD, p.threshold)
}

// Threshold returns a copy of the configured margin
func (p *ProfitCalculator) Threshold() *big.Int {
	return new(big.Int).Set(p.threshold)
}
