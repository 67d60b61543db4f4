package protocol

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/liquidator/types"
)

// Adapter is the read surface of a lending protocol used by the bot
type Adapter interface {
	// Markets lists the protocol markets (receipt token addresses)
	Markets(ctx context.Context) ([]common.Address, error)

	// UserHealthFactor returns the 1e18-scaled health factor. A failed read
	// returns zero so the user falls outside every liquidation band.
	UserHealthFactor(ctx context.Context, user common.Address) *big.Int

	SupplyBalance(ctx context.Context, market, user common.Address) (*big.Int, error)
	BorrowBalance(ctx context.Context, market, user common.Address) (*big.Int, error)

	// Normalize resolves the market price and converts balances to USD
	Normalize(ctx context.Context, market common.Address, balances ...*big.Int) (*Normalized, error)

	LiquidationBonus(ctx context.Context, market common.Address) (*big.Int, error)
	Underlying(ctx context.Context, market common.Address) (common.Address, error)
	Decimals(ctx context.Context, underlying common.Address) (uint8, error)
	AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error)

	GetMaxLiquidationAmount(debt, collateral *types.MarketLiquidationParams) (toLiquidate, rewardedUSD *big.Int)
}

// Normalized is a market price together with USD balances in input order
type Normalized struct {
	Underlying common.Address
	Decimals   uint8
	Price      *big.Int
	USD        []*big.Int
}
