package bot

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/liquidator/fetcher"
	"github.com/michaelpento.lv/liquidator/protocol"
	"github.com/michaelpento.lv/liquidator/types"
	"github.com/michaelpento.lv/liquidator/utils/math"
)

var (
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	usdc = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	aDAI  = common.HexToAddress("0x018008bfb33d285247A21d44E50697654f754e63")
	aUSDC = common.HexToAddress("0x98C23E9d8f34FEFb1B7BD6a91B7FF122F4e16F5c")
	aWETH = common.HexToAddress("0x4d5F47FA6A74757f35C14fD3a6Ef8E3C9BC514E8")
)

func usd(dollars int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(dollars), math.Pow10(8))
}

func units(amount int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), math.Pow10(decimals))
}

func user(n int64) common.Address {
	return common.BigToAddress(big.NewInt(1000 + n))
}

type fakeMarket struct {
	underlying common.Address
	decimals   uint8
	price      *big.Int
	bonus      *big.Int
}

type position struct {
	supply *big.Int
	borrow *big.Int
}

// fakeAdapter is an in-memory lending pool
type fakeAdapter struct {
	mu          sync.Mutex
	markets     map[common.Address]fakeMarket
	order       []common.Address
	positions   map[common.Address]map[common.Address]position
	health      map[common.Address]*big.Int
	fail        map[common.Address]error
	prices      map[common.Address]*big.Int
	marketsErr  error
	healthCalls int
}

func newFakeAdapter() *fakeAdapter {
	a := &fakeAdapter{
		markets:   make(map[common.Address]fakeMarket),
		positions: make(map[common.Address]map[common.Address]position),
		health:    make(map[common.Address]*big.Int),
		fail:      make(map[common.Address]error),
		prices:    make(map[common.Address]*big.Int),
	}
	a.addMarket(aDAI, dai, 18, usd(1), 0)
	a.addMarket(aWETH, weth, 18, usd(2000), 10500)
	return a
}

func (a *fakeAdapter) addMarket(market, underlying common.Address, decimals uint8, price *big.Int, bonus int64) {
	a.markets[market] = fakeMarket{underlying: underlying, decimals: decimals, price: price, bonus: big.NewInt(bonus)}
	a.prices[underlying] = price
	a.order = append(a.order, market)
}

func (a *fakeAdapter) setPosition(u, market common.Address, supply, borrow *big.Int) {
	if a.positions[u] == nil {
		a.positions[u] = make(map[common.Address]position)
	}
	a.positions[u][market] = position{supply: supply, borrow: borrow}
}

func (a *fakeAdapter) Markets(ctx context.Context) ([]common.Address, error) {
	if a.marketsErr != nil {
		return nil, a.marketsErr
	}
	return a.order, nil
}

func (a *fakeAdapter) UserHealthFactor(ctx context.Context, u common.Address) *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.healthCalls++
	if hf, ok := a.health[u]; ok {
		return hf
	}
	return new(big.Int)
}

func (a *fakeAdapter) balance(u, market common.Address, borrow bool) (*big.Int, error) {
	if err := a.fail[u]; err != nil {
		return nil, err
	}
	p, ok := a.positions[u][market]
	if !ok {
		return new(big.Int), nil
	}
	if borrow {
		return p.borrow, nil
	}
	return p.supply, nil
}

func (a *fakeAdapter) SupplyBalance(ctx context.Context, market, u common.Address) (*big.Int, error) {
	return a.balance(u, market, false)
}

func (a *fakeAdapter) BorrowBalance(ctx context.Context, market, u common.Address) (*big.Int, error) {
	return a.balance(u, market, true)
}

func (a *fakeAdapter) Normalize(ctx context.Context, market common.Address, balances ...*big.Int) (*protocol.Normalized, error) {
	m, ok := a.markets[market]
	if !ok {
		return nil, errors.New("unknown market")
	}
	out := &protocol.Normalized{Underlying: m.underlying, Decimals: m.decimals, Price: m.price}
	for _, b := range balances {
		out.USD = append(out.USD, math.ToUSD(b, m.price, m.decimals))
	}
	return out, nil
}

func (a *fakeAdapter) LiquidationBonus(ctx context.Context, market common.Address) (*big.Int, error) {
	m, ok := a.markets[market]
	if !ok {
		return nil, errors.New("unknown market")
	}
	return m.bonus, nil
}

func (a *fakeAdapter) Underlying(ctx context.Context, market common.Address) (common.Address, error) {
	return a.markets[market].underlying, nil
}

func (a *fakeAdapter) Decimals(ctx context.Context, underlying common.Address) (uint8, error) {
	return 18, nil
}

func (a *fakeAdapter) AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error) {
	price, ok := a.prices[asset]
	if !ok {
		return nil, errors.New("no price")
	}
	return price, nil
}

func (a *fakeAdapter) GetMaxLiquidationAmount(debt, collateral *types.MarketLiquidationParams) (*big.Int, *big.Int) {
	return protocol.MaxLiquidationAmount(debt, collateral)
}

// fakeHandler records dispatched liquidations
type fakeHandler struct {
	mu        sync.Mutex
	gas       uint64
	gasErr    error
	failUsers map[common.Address]error
	handled   []*types.LiquidationParams
}

func (h *fakeHandler) EstimateGas(ctx context.Context, p *types.LiquidationParams) (uint64, error) {
	if h.gasErr != nil {
		return 0, h.gasErr
	}
	return h.gas, nil
}

func (h *fakeHandler) HandleLiquidation(ctx context.Context, p *types.LiquidationParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failUsers[p.User]; err != nil {
		return err
	}
	h.handled = append(h.handled, p)
	return nil
}

func (h *fakeHandler) users() []common.Address {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]common.Address, 0, len(h.handled))
	for _, p := range h.handled {
		out = append(out, p.User)
	}
	return out
}

// pagedFetcher serves fixed pages keyed by the page index cursor
type pagedFetcher struct {
	pages   [][]common.Address
	failAt  int
	err     error
	stall   bool
	cursors []string
}

func (f *pagedFetcher) FetchUsers(ctx context.Context, lastID string) (*fetcher.UsersPage, error) {
	f.cursors = append(f.cursors, lastID)
	index := 0
	if lastID != "" {
		n, err := strconv.Atoi(lastID)
		if err != nil {
			return nil, err
		}
		index = n + 1
	}
	if f.err != nil && index == f.failAt {
		return nil, f.err
	}
	if index >= len(f.pages) {
		return &fetcher.UsersPage{}, nil
	}
	next := strconv.Itoa(index)
	if f.stall {
		next = lastID
	}
	return &fetcher.UsersPage{
		Users:   f.pages[index],
		HasMore: index < len(f.pages)-1,
		LastID:  next,
	}, nil
}
