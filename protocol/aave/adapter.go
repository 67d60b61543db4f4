package aave

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/liquidator/protocol"
	"github.com/michaelpento.lv/liquidator/types"
	"github.com/michaelpento.lv/liquidator/utils/math"
)

const defaultCacheSize = 256

// Config holds the Aave V3 deployment the adapter reads from
type Config struct {
	Pool         common.Address
	DataProvider common.Address
	Oracle       common.Address

	// Markets pins the market universe instead of reading the reserves list
	Markets []common.Address

	// Underlyings maps markets to underlyings without a chain read
	Underlyings map[common.Address]common.Address

	CacheSize int
}

type reserveTokens struct {
	aToken       common.Address
	stableDebt   common.Address
	variableDebt common.Address
}

// Adapter implements protocol.Adapter for Aave V3 style pools
type Adapter struct {
	caller bind.ContractCaller
	cfg    *Config
	logger *zap.Logger

	pool         *bind.BoundContract
	dataProvider *bind.BoundContract
	oracle       *bind.BoundContract
	tokenABI     abi.ABI

	underlyings *lru.Cache
	decimals    *lru.Cache
	reserves    *lru.Cache
}

var _ protocol.Adapter = (*Adapter)(nil)

// NewAdapter creates an Aave adapter reading through caller
func NewAdapter(caller bind.ContractCaller, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	parse := func(name, def string) (abi.ABI, error) {
		parsed, err := abi.JSON(strings.NewReader(def))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse %s ABI: %w", name, err)
		}
		return parsed, nil
	}
	parsedPool, err := parse("pool", poolABI)
	if err != nil {
		return nil, err
	}
	parsedProvider, err := parse("data provider", dataProviderABI)
	if err != nil {
		return nil, err
	}
	parsedOracle, err := parse("oracle", oracleABI)
	if err != nil {
		return nil, err
	}
	parsedToken, err := parse("token", tokenABI)
	if err != nil {
		return nil, err
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	underlyings, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create underlying cache: %w", err)
	}
	decimals, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create decimals cache: %w", err)
	}
	reserves, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create reserve cache: %w", err)
	}

	return &Adapter{
		caller:       caller,
		cfg:          cfg,
		logger:       logger,
		pool:         bind.NewBoundContract(cfg.Pool, parsedPool, caller, nil, nil),
		dataProvider: bind.NewBoundContract(cfg.DataProvider, parsedProvider, caller, nil, nil),
		oracle:       bind.NewBoundContract(cfg.Oracle, parsedOracle, caller, nil, nil),
		tokenABI:     parsedToken,
		underlyings:  underlyings,
		decimals:     decimals,
		reserves:     reserves,
	}, nil
}

func (a *Adapter) token(address common.Address) *bind.BoundContract {
	return bind.NewBoundContract(address, a.tokenABI, a.caller, nil, nil)
}

// Markets returns the aToken of every pool reserve unless markets are pinned
func (a *Adapter) Markets(ctx context.Context) ([]common.Address, error) {
	if len(a.cfg.Markets) > 0 {
		return a.cfg.Markets, nil
	}

	var out []interface{}
	if err := a.pool.Call(&bind.CallOpts{Context: ctx}, &out, "getReservesList"); err != nil {
		return nil, fmt.Errorf("failed to get reserves list: %w", err)
	}
	reserveList := out[0].([]common.Address)

	markets := make([]common.Address, 0, len(reserveList))
	for _, reserve := range reserveList {
		tokens, err := a.reserveTokens(ctx, reserve)
		if err != nil {
			return nil, err
		}
		a.underlyings.Add(tokens.aToken, reserve)
		markets = append(markets, tokens.aToken)
	}
	return markets, nil
}

// UserHealthFactor reads the pool health factor, returning zero on failure
func (a *Adapter) UserHealthFactor(ctx context.Context, user common.Address) *big.Int {
	var out []interface{}
	if err := a.pool.Call(&bind.CallOpts{Context: ctx}, &out, "getUserAccountData", user); err != nil {
		a.logger.Warn("Failed to read health factor",
			zap.String("user", user.Hex()),
			zap.Error(err))
		return new(big.Int)
	}
	return out[5].(*big.Int)
}

// SupplyBalance is the user's aToken balance
func (a *Adapter) SupplyBalance(ctx context.Context, market, user common.Address) (*big.Int, error) {
	return a.balanceOf(ctx, market, user)
}

// BorrowBalance sums the user's variable and stable debt for the market
func (a *Adapter) BorrowBalance(ctx context.Context, market, user common.Address) (*big.Int, error) {
	underlying, err := a.Underlying(ctx, market)
	if err != nil {
		return nil, err
	}
	tokens, err := a.reserveTokens(ctx, underlying)
	if err != nil {
		return nil, err
	}

	total := new(big.Int)
	for _, debtToken := range []common.Address{tokens.variableDebt, tokens.stableDebt} {
		if debtToken == (common.Address{}) {
			continue
		}
		balance, err := a.balanceOf(ctx, debtToken, user)
		if err != nil {
			return nil, err
		}
		total.Add(total, balance)
	}
	return total, nil
}

func (a *Adapter) balanceOf(ctx context.Context, token, user common.Address) (*big.Int, error) {
	var out []interface{}
	if err := a.token(token).Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", user); err != nil {
		return nil, fmt.Errorf("failed to get balance of %s in %s: %w", user.Hex(), token.Hex(), err)
	}
	return out[0].(*big.Int), nil
}

// Normalize converts balances of market into oracle USD units
func (a *Adapter) Normalize(ctx context.Context, market common.Address, balances ...*big.Int) (*protocol.Normalized, error) {
	underlying, err := a.Underlying(ctx, market)
	if err != nil {
		return nil, err
	}
	decimals, err := a.Decimals(ctx, underlying)
	if err != nil {
		return nil, err
	}
	price, err := a.AssetPrice(ctx, underlying)
	if err != nil {
		return nil, err
	}

	usd := make([]*big.Int, len(balances))
	for i, balance := range balances {
		usd[i] = math.ToUSD(balance, price, decimals)
	}
	return &protocol.Normalized{
		Underlying: underlying,
		Decimals:   decimals,
		Price:      price,
		USD:        usd,
	}, nil
}

// LiquidationBonus returns the reserve bonus, or zero when the reserve
// cannot be used as collateral
func (a *Adapter) LiquidationBonus(ctx context.Context, market common.Address) (*big.Int, error) {
	underlying, err := a.Underlying(ctx, market)
	if err != nil {
		return nil, err
	}

	var out []interface{}
	if err := a.dataProvider.Call(&bind.CallOpts{Context: ctx}, &out, "getReserveConfigurationData", underlying); err != nil {
		return nil, fmt.Errorf("failed to get reserve configuration for %s: %w", underlying.Hex(), err)
	}
	if enabled, _ := out[5].(bool); !enabled {
		return new(big.Int), nil
	}
	return out[3].(*big.Int), nil
}

// Underlying resolves the asset behind a market
func (a *Adapter) Underlying(ctx context.Context, market common.Address) (common.Address, error) {
	if underlying, ok := a.cfg.Underlyings[market]; ok {
		return underlying, nil
	}
	if cached, ok := a.underlyings.Get(market); ok {
		return cached.(common.Address), nil
	}

	var out []interface{}
	if err := a.token(market).Call(&bind.CallOpts{Context: ctx}, &out, "UNDERLYING_ASSET_ADDRESS"); err != nil {
		return common.Address{}, fmt.Errorf("failed to get underlying of %s: %w", market.Hex(), err)
	}
	underlying := out[0].(common.Address)
	a.underlyings.Add(market, underlying)
	return underlying, nil
}

// Decimals returns the ERC20 decimals of underlying
func (a *Adapter) Decimals(ctx context.Context, underlying common.Address) (uint8, error) {
	if cached, ok := a.decimals.Get(underlying); ok {
		return cached.(uint8), nil
	}

	var out []interface{}
	if err := a.token(underlying).Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("failed to get decimals of %s: %w", underlying.Hex(), err)
	}
	decimals := out[0].(uint8)
	a.decimals.Add(underlying, decimals)
	return decimals, nil
}

// AssetPrice reads the oracle price of asset
func (a *Adapter) AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error) {
	var out []interface{}
	if err := a.oracle.Call(&bind.CallOpts{Context: ctx}, &out, "getAssetPrice", asset); err != nil {
		return nil, fmt.Errorf("failed to get price of %s: %w", asset.Hex(), err)
	}
	return out[0].(*big.Int), nil
}

// GetMaxLiquidationAmount sizes a liquidation between two normalized markets
func (a *Adapter) GetMaxLiquidationAmount(debt, collateral *types.MarketLiquidationParams) (*big.Int, *big.Int) {
	return protocol.MaxLiquidationAmount(debt, collateral)
}

func (a *Adapter) reserveTokens(ctx context.Context, underlying common.Address) (reserveTokens, error) {
	if cached, ok := a.reserves.Get(underlying); ok {
		return cached.(reserveTokens), nil
	}

	var out []interface{}
	if err := a.dataProvider.Call(&bind.CallOpts{Context: ctx}, &out, "getReserveTokensAddresses", underlying); err != nil {
		return reserveTokens{}, fmt.Errorf("failed to get reserve tokens of %s: %w", underlying.Hex(), err)
	}
	tokens := reserveTokens{
		aToken:       out[0].(common.Address),
		stableDebt:   out[1].(common.Address),
		variableDebt: out[2].(common.Address),
	}
	a.reserves.Add(underlying, tokens)
	return tokens, nil
}
