package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/liquidator/fetcher"
	"github.com/michaelpento.lv/liquidator/protocol"
	"github.com/michaelpento.lv/liquidator/types"
	"github.com/michaelpento.lv/liquidator/utils/metrics"
)

// Discovery pages through the indexer and keeps the users whose health
// factor lies inside the liquidation band
type Discovery struct {
	fetcher  fetcher.Fetcher
	adapter  protocol.Adapter
	settings Settings
	limiter  *rate.Limiter
	metrics  *metrics.BotMetrics
	logger   *zap.Logger
}

func NewDiscovery(f fetcher.Fetcher, adapter protocol.Adapter, settings Settings, m *metrics.BotMetrics, logger *zap.Logger) *Discovery {
	limit := rate.Inf
	if settings.PageDelay > 0 {
		limit = rate.Every(settings.PageDelay)
	}
	return &Discovery{
		fetcher:  f,
		adapter:  adapter,
		settings: settings,
		limiter:  rate.NewLimiter(limit, 1),
		metrics:  m,
		logger:   logger,
	}
}

// Walk calls fn with the liquidable users of every page, in page order.
// Pages with no liquidable user are skipped. An error from the fetcher or
// from fn ends the walk.
func (d *Discovery) Walk(ctx context.Context, fn func([]types.UserHealth) error) error {
	seen := make(map[common.Address]struct{})
	lastID := ""

	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		page, err := d.fetcher.FetchUsers(ctx, lastID)
		if err != nil {
			var dsErr *types.DataSourceError
			if errors.As(err, &dsErr) {
				d.metrics.DataSourceFailures.Inc()
			}
			return fmt.Errorf("failed to fetch users after %q: %w", lastID, err)
		}

		users := make([]common.Address, 0, len(page.Users))
		for _, user := range page.Users {
			if _, dup := seen[user]; dup {
				continue
			}
			seen[user] = struct{}{}
			users = append(users, user)
		}
		d.metrics.UsersScanned.Add(float64(len(users)))

		liquidable, err := d.filter(ctx, users)
		if err != nil {
			return err
		}
		d.logger.Debug("Fetched users page",
			zap.String("last_id", lastID),
			zap.Int("users", len(users)),
			zap.Int("liquidable", len(liquidable)))

		if len(liquidable) > 0 {
			d.metrics.UsersLiquidable.Add(float64(len(liquidable)))
			if err := fn(liquidable); err != nil {
				return err
			}
		}

		if !page.HasMore {
			return nil
		}
		if page.LastID == lastID {
			d.logger.Warn("Indexer cursor did not advance, stopping", zap.String("last_id", lastID))
			return nil
		}
		lastID = page.LastID
	}
}

// ComputeLiquidableUsers collects every liquidable user across all pages
func (d *Discovery) ComputeLiquidableUsers(ctx context.Context) ([]types.UserHealth, error) {
	var all []types.UserHealth
	err := d.Walk(ctx, func(users []types.UserHealth) error {
		all = append(all, users...)
		return nil
	})
	return all, err
}

// filter reads health factors concurrently and keeps min < hf < max
func (d *Discovery) filter(ctx context.Context, users []common.Address) ([]types.UserHealth, error) {
	factors := make([]*big.Int, len(users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.settings.BatchSize)
	for i, user := range users {
		i, user := i, user
		g.Go(func() error {
			factors[i] = d.adapter.UserHealthFactor(gctx, user)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var liquidable []types.UserHealth
	for i, hf := range factors {
		if hf == nil {
			continue
		}
		if d.settings.LowHealthFactor != nil && hf.Sign() > 0 && hf.Cmp(d.settings.LowHealthFactor) < 0 {
			d.logger.Debug("Low health factor",
				zap.String("user", users[i].Hex()),
				zap.String("health_factor", hf.String()))
		}
		if d.settings.InBand(hf) {
			liquidable = append(liquidable, types.UserHealth{Address: users[i], HealthFactor: hf})
		}
	}
	return liquidable, nil
}
