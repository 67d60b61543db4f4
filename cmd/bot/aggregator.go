package bot

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/liquidator/protocol"
	"github.com/michaelpento.lv/liquidator/types"
)

// GetUserLiquidationParams reads the user's position in every market and
// picks the largest debt and the largest seizable collateral. Ties keep the
// order of markets.
func (b *Bot) GetUserLiquidationParams(ctx context.Context, user common.Address, markets []common.Address) (*types.UserLiquidationParams, error) {
	if len(markets) == 0 {
		return nil, fmt.Errorf("no markets for %s: %w", user.Hex(), types.ErrNoLiquidatableMarket)
	}

	positions := make([]*types.MarketLiquidationParams, len(markets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.settings.BatchSize)
	for i, market := range markets {
		i, market := i, market
		g.Go(func() error {
			p, err := b.marketParams(gctx, market, user)
			if err != nil {
				return fmt.Errorf("market %s: %w", market.Hex(), err)
			}
			positions[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	debt := byDescending(positions, func(p *types.MarketLiquidationParams) *big.Int {
		return p.TotalBorrowBalanceUSD
	})[0]

	var eligible []*types.MarketLiquidationParams
	for _, p := range positions {
		if p.LiquidationBonus != nil && p.LiquidationBonus.Sign() > 0 {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("user %s: %w", user.Hex(), types.ErrNoLiquidatableMarket)
	}
	collateral := byDescending(eligible, func(p *types.MarketLiquidationParams) *big.Int {
		return p.TotalSupplyBalanceUSD
	})[0]

	toLiquidate, rewardedUSD := b.adapter.GetMaxLiquidationAmount(debt, collateral)

	b.logger.Info("Liquidation params",
		zap.String("user", user.Hex()),
		zap.Object("debt", debt),
		zap.Object("collateral", collateral),
		zap.String("to_liquidate", toLiquidate.String()),
		zap.String("rewarded_usd", rewardedUSD.String()),
		zap.String("repay_capacity_usd", protocol.RepayCapacityUSD(collateral).String()))

	return &types.UserLiquidationParams{
		User:             user,
		DebtMarket:       debt,
		CollateralMarket: collateral,
		ToLiquidate:      toLiquidate,
		RewardedUSD:      rewardedUSD,
	}, nil
}

// byDescending returns a stably sorted copy, largest key first
func byDescending(in []*types.MarketLiquidationParams, key func(*types.MarketLiquidationParams) *big.Int) []*types.MarketLiquidationParams {
	out := make([]*types.MarketLiquidationParams, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return cmpNil(key(out[i]), key(out[j])) > 0
	})
	return out
}

func cmpNil(a, b *big.Int) int {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b)
}

// marketParams reads and normalizes one market position
func (b *Bot) marketParams(ctx context.Context, market, user common.Address) (*types.MarketLiquidationParams, error) {
	var supply, borrow, bonus *big.Int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		supply, err = b.adapter.SupplyBalance(gctx, market, user)
		return err
	})
	g.Go(func() error {
		var err error
		borrow, err = b.adapter.BorrowBalance(gctx, market, user)
		return err
	})
	g.Go(func() error {
		var err error
		bonus, err = b.adapter.LiquidationBonus(gctx, market)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	normalized, err := b.adapter.Normalize(ctx, market, supply, borrow)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize: %w", err)
	}
	if len(normalized.USD) != 2 {
		return nil, fmt.Errorf("normalize returned %d balances, want 2", len(normalized.USD))
	}

	return &types.MarketLiquidationParams{
		Market:                market,
		Underlying:            normalized.Underlying,
		Decimals:              normalized.Decimals,
		LiquidationBonus:      bonus,
		TotalSupplyBalance:    supply,
		TotalBorrowBalance:    borrow,
		Price:                 normalized.Price,
		TotalSupplyBalanceUSD: normalized.USD[0],
		TotalBorrowBalanceUSD: normalized.USD[1],
	}, nil
}
