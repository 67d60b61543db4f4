package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap/zapcore"
)

// UserHealth is a borrower returned by discovery together with its health factor
type UserHealth struct {
	Address      common.Address
	HealthFactor *big.Int
}

// MarketLiquidationParams holds one user's normalized position in one market
type MarketLiquidationParams struct {
	Market     common.Address
	Underlying common.Address
	Decimals   uint8

	// LiquidationBonus uses percent-math base 1e4 and includes the repaid
	// principal: 10500 means a 5% bonus. Zero marks a market that cannot be
	// seized as collateral.
	LiquidationBonus *big.Int

	TotalSupplyBalance *big.Int
	TotalBorrowBalance *big.Int
	Price              *big.Int

	TotalSupplyBalanceUSD *big.Int
	TotalBorrowBalanceUSD *big.Int
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (m *MarketLiquidationParams) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("market", m.Market.Hex())
	enc.AddString("underlying", m.Underlying.Hex())
	enc.AddString("price", bigString(m.Price))
	enc.AddString("totalBorrowBalanceUSD", bigString(m.TotalBorrowBalanceUSD))
	enc.AddString("totalSupplyBalanceUSD", bigString(m.TotalSupplyBalanceUSD))
	enc.AddString("liquidationBonus", bigString(m.LiquidationBonus))
	return nil
}

// UserLiquidationParams is the sized liquidation for a single user
type UserLiquidationParams struct {
	User             common.Address
	DebtMarket       *MarketLiquidationParams
	CollateralMarket *MarketLiquidationParams
	ToLiquidate      *big.Int
	RewardedUSD      *big.Int
}

// LiquidationParams is the execution payload handed to a liquidation handler
type LiquidationParams struct {
	PoolTokenBorrowed   common.Address
	PoolTokenCollateral common.Address

	// Optional overrides for handlers calling the lending pool directly
	UnderlyingBorrowed   common.Address
	UnderlyingCollateral common.Address

	User     common.Address
	Amount   *big.Int
	SwapPath []byte
}

// DebtAsset returns the asset a direct pool call repays
func (p *LiquidationParams) DebtAsset() common.Address {
	if p.UnderlyingBorrowed != (common.Address{}) {
		return p.UnderlyingBorrowed
	}
	return p.PoolTokenBorrowed
}

// CollateralAsset returns the asset a direct pool call seizes
func (p *LiquidationParams) CollateralAsset() common.Address {
	if p.UnderlyingCollateral != (common.Address{}) {
		return p.UnderlyingCollateral
	}
	return p.PoolTokenCollateral
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
