package aave

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/liquidator/types"
	"github.com/michaelpento.lv/liquidator/utils/testutils"
)

var (
	pool         = testutils.Address(0x1000)
	dataProvider = testutils.Address(0x1001)
	oracle       = testutils.Address(0x1002)

	dai        = testutils.Address(0x2000)
	aDai       = testutils.Address(0x2001)
	varDebtDai = testutils.Address(0x2002)
	stbDebtDai = testutils.Address(0x2003)

	usdc        = testutils.Address(0x3000)
	aUsdc       = testutils.Address(0x3001)
	varDebtUsdc = testutils.Address(0x3002)

	borrower = testutils.Address(0x9999)
)

type chain struct {
	backend *testutils.Backend
}

func newChain(t *testing.T) *chain {
	b := testutils.NewBackend()
	parsedPool := testutils.ParseABI(t, poolABI)
	parsedProvider := testutils.ParseABI(t, dataProviderABI)
	parsedOracle := testutils.ParseABI(t, oracleABI)
	parsedToken := testutils.ParseABI(t, tokenABI)

	hf, _ := new(big.Int).SetString("950000000000000000", 10)
	b.Handle(pool, parsedPool, "getUserAccountData", testutils.Returns(
		big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(4), big.NewInt(5), hf))
	b.Handle(pool, parsedPool, "getReservesList", testutils.Returns([]common.Address{dai, usdc}))

	b.Handle(dataProvider, parsedProvider, "getReserveTokensAddresses", func(args []interface{}) ([]interface{}, error) {
		switch args[0].(common.Address) {
		case dai:
			return []interface{}{aDai, stbDebtDai, varDebtDai}, nil
		default:
			return []interface{}{aUsdc, common.Address{}, varDebtUsdc}, nil
		}
	})
	b.Handle(dataProvider, parsedProvider, "getReserveConfigurationData", func(args []interface{}) ([]interface{}, error) {
		collateral := args[0].(common.Address) == usdc
		return []interface{}{
			big.NewInt(18), big.NewInt(7500), big.NewInt(8000), big.NewInt(10500), big.NewInt(1000),
			collateral, true, false, true, false,
		}, nil
	})
	b.Handle(oracle, parsedOracle, "getAssetPrice", testutils.Returns(big.NewInt(100_000_000)))

	b.Handle(aDai, parsedToken, "UNDERLYING_ASSET_ADDRESS", testutils.Returns(dai))
	b.Handle(aUsdc, parsedToken, "UNDERLYING_ASSET_ADDRESS", testutils.Returns(usdc))
	b.Handle(dai, parsedToken, "decimals", testutils.Returns(uint8(18)))
	b.Handle(usdc, parsedToken, "decimals", testutils.Returns(uint8(6)))
	b.Handle(aUsdc, parsedToken, "balanceOf", testutils.Returns(testutils.Units(400, 6)))
	b.Handle(varDebtDai, parsedToken, "balanceOf", testutils.Returns(testutils.Units(900, 18)))
	b.Handle(stbDebtDai, parsedToken, "balanceOf", testutils.Returns(testutils.Units(100, 18)))
	b.Handle(varDebtUsdc, parsedToken, "balanceOf", testutils.Returns(big.NewInt(0)))

	return &chain{backend: b}
}

func newTestAdapter(t *testing.T, c *chain, cfg *Config) *Adapter {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Pool, cfg.DataProvider, cfg.Oracle = pool, dataProvider, oracle
	adapter, err := NewAdapter(c.backend, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return adapter
}

func TestNewAdapterValidation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	_, err := NewAdapter(nil, &Config{}, logger)
	assert.Error(t, err)
	_, err = NewAdapter(testutils.NewBackend(), nil, logger)
	assert.Error(t, err)
	_, err = NewAdapter(testutils.NewBackend(), &Config{}, nil)
	assert.Error(t, err)
}

func TestAdapter(t *testing.T) {
	ctx := context.Background()
	c := newChain(t)
	adapter := newTestAdapter(t, c, nil)

	t.Run("Markets", func(t *testing.T) {
		markets, err := adapter.Markets(ctx)
		require.NoError(t, err)
		assert.Equal(t, []common.Address{aDai, aUsdc}, markets)

		underlying, err := adapter.Underlying(ctx, aDai)
		require.NoError(t, err)
		assert.Equal(t, dai, underlying)
	})

	t.Run("PinnedMarkets", func(t *testing.T) {
		pinned := newTestAdapter(t, c, &Config{Markets: []common.Address{aUsdc}})
		markets, err := pinned.Markets(ctx)
		require.NoError(t, err)
		assert.Equal(t, []common.Address{aUsdc}, markets)
	})

	t.Run("HealthFactor", func(t *testing.T) {
		assert.Equal(t, "950000000000000000", adapter.UserHealthFactor(ctx, borrower).String())
	})

	t.Run("HealthFactorFailureIsZero", func(t *testing.T) {
		broken := testutils.NewBackend()
		a, err := NewAdapter(broken, &Config{Pool: pool}, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Equal(t, int64(0), a.UserHealthFactor(ctx, borrower).Int64())
	})

	t.Run("Balances", func(t *testing.T) {
		supply, err := adapter.SupplyBalance(ctx, aUsdc, borrower)
		require.NoError(t, err)
		assert.Equal(t, testutils.Units(400, 6), supply)

		borrow, err := adapter.BorrowBalance(ctx, aDai, borrower)
		require.NoError(t, err)
		assert.Equal(t, testutils.Units(1000, 18), borrow)

		borrow, err = adapter.BorrowBalance(ctx, aUsdc, borrower)
		require.NoError(t, err)
		assert.Equal(t, int64(0), borrow.Int64())
	})

	t.Run("Normalize", func(t *testing.T) {
		n, err := adapter.Normalize(ctx, aUsdc, testutils.Units(400, 6), big.NewInt(0))
		require.NoError(t, err)
		assert.Equal(t, usdc, n.Underlying)
		assert.Equal(t, uint8(6), n.Decimals)
		assert.Equal(t, "40000000000", n.USD[0].String())
		assert.Equal(t, "0", n.USD[1].String())
	})

	t.Run("LiquidationBonus", func(t *testing.T) {
		bonus, err := adapter.LiquidationBonus(ctx, aUsdc)
		require.NoError(t, err)
		assert.Equal(t, int64(10500), bonus.Int64())

		// DAI is not enabled as collateral in the fixture
		bonus, err = adapter.LiquidationBonus(ctx, aDai)
		require.NoError(t, err)
		assert.Equal(t, int64(0), bonus.Int64())
	})

	t.Run("UnderlyingOverride", func(t *testing.T) {
		override := newTestAdapter(t, c, &Config{Underlyings: map[common.Address]common.Address{aUsdc: dai}})
		underlying, err := override.Underlying(ctx, aUsdc)
		require.NoError(t, err)
		assert.Equal(t, dai, underlying)
	})

	t.Run("UnknownMarket", func(t *testing.T) {
		_, err := adapter.Underlying(ctx, testutils.Address(0xdead))
		assert.Error(t, err)
	})

	t.Run("MaxLiquidationAmount", func(t *testing.T) {
		debt := &types.MarketLiquidationParams{
			Decimals:           18,
			TotalBorrowBalance: testutils.Units(1000, 18),
			Price:              big.NewInt(100_000_000),
		}
		collateral := &types.MarketLiquidationParams{
			Decimals:              6,
			LiquidationBonus:      big.NewInt(10500),
			TotalSupplyBalanceUSD: big.NewInt(40_000_000_000),
			Price:                 big.NewInt(100_000_000),
		}
		toLiquidate, rewarded := adapter.GetMaxLiquidationAmount(debt, collateral)
		assert.Equal(t, "380952380950000000000", toLiquidate.String())
		assert.True(t, rewarded.Cmp(collateral.TotalSupplyBalanceUSD) <= 0)
	})
}
