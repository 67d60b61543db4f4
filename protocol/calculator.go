package protocol

import (
	"math/big"

	"github.com/michaelpento.lv/liquidator/types"
	"github.com/michaelpento.lv/liquidator/utils/math"
)

// CloseFactorDivisor caps a single liquidation at half of the user's debt
var CloseFactorDivisor = big.NewInt(2)

// MaxLiquidationAmount sizes a liquidation between a debt and a collateral
// market. toLiquidate is in debt native units, rewardedUSD is the USD value
// of the collateral claimed at the liquidation bonus.
//
// The close factor bounds toLiquidate to half of the borrow balance. When
// the bonus-adjusted claim would exceed the collateral the user holds, the
// repay amount is recomputed from the collateral side, rounding down so the
// claim never exceeds totalSupplyBalanceUSD.
func MaxLiquidationAmount(debt, collateral *types.MarketLiquidationParams) (toLiquidate, rewardedUSD *big.Int) {
	if debt == nil || debt.TotalBorrowBalance == nil {
		return new(big.Int), new(big.Int)
	}
	toLiquidate = new(big.Int).Div(debt.TotalBorrowBalance, CloseFactorDivisor)

	if collateral == nil || collateral.LiquidationBonus == nil || collateral.LiquidationBonus.Sign() == 0 {
		return toLiquidate, new(big.Int)
	}
	bonus := collateral.LiquidationBonus
	collateralUSD := collateral.TotalSupplyBalanceUSD
	if collateralUSD == nil {
		collateralUSD = new(big.Int)
	}

	rewardedUSD = math.PercentMul(math.ToUSD(toLiquidate, debt.Price, debt.Decimals), bonus)
	if rewardedUSD.Cmp(collateralUSD) <= 0 {
		return toLiquidate, rewardedUSD
	}

	maxRepayUSD := math.MulDiv(collateralUSD, math.PercentageFactor, bonus)
	toLiquidate = math.FromUSD(maxRepayUSD, debt.Price, debt.Decimals)
	rewardedUSD = math.MulDiv(math.ToUSD(toLiquidate, debt.Price, debt.Decimals), bonus, math.PercentageFactor)

	return toLiquidate, rewardedUSD
}

// RepayCapacityUSD is the most debt, in USD, that the collateral market can
// cover once the liquidation bonus is paid out of it
func RepayCapacityUSD(collateral *types.MarketLiquidationParams) *big.Int {
	if collateral == nil {
		return new(big.Int)
	}
	return math.PercentDiv(collateral.TotalSupplyBalanceUSD, collateral.LiquidationBonus)
}

// RepaidUSD is the USD value of the debt repaid by a sized liquidation
func RepaidUSD(p *types.UserLiquidationParams) *big.Int {
	if p == nil || p.DebtMarket == nil {
		return new(big.Int)
	}
	return math.ToUSD(p.ToLiquidate, p.DebtMarket.Price, p.DebtMarket.Decimals)
}
