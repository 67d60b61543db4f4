package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/liquidator/dex/uniswap"
	"github.com/michaelpento.lv/liquidator/fetcher"
	"github.com/michaelpento.lv/liquidator/gas"
	"github.com/michaelpento.lv/liquidator/handler"
	"github.com/michaelpento.lv/liquidator/protocol"
	"github.com/michaelpento.lv/liquidator/types"
	"github.com/michaelpento.lv/liquidator/utils"
	"github.com/michaelpento.lv/liquidator/utils/math"
	"github.com/michaelpento.lv/liquidator/utils/metrics"
)

// State is the phase of a run
type State int32

const (
	StateIdle State = iota
	StateDiscovering
	StateAggregating
	StateSizing
	StateFiltering
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateAggregating:
		return "aggregating"
	case StateSizing:
		return "sizing"
	case StateFiltering:
		return "filtering"
	case StateDispatching:
		return "dispatching"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dependencies are the collaborators of a protocol bot
type Dependencies struct {
	Name    string
	Adapter protocol.Adapter
	Fetcher fetcher.Fetcher
	Handler handler.Handler
	Paths   *uniswap.PathBuilder
	Gas     *gas.Estimator

	// NativeAsset prices gas; usually the wrapped native token
	NativeAsset common.Address
	// Markets pins the market universe
	Markets []common.Address

	Metrics *metrics.BotMetrics
}

// Bot runs the liquidation pipeline for one protocol
type Bot struct {
	name        string
	adapter     protocol.Adapter
	fetcher     fetcher.Fetcher
	handler     handler.Handler
	paths       *uniswap.PathBuilder
	gas         *gas.Estimator
	profit      *utils.ProfitCalculator
	nativeAsset common.Address
	markets     []common.Address
	settings    Settings
	discovery   *Discovery
	metrics     *metrics.BotMetrics
	logger      *zap.Logger
	state       atomic.Int32
}

// New creates a bot with the default settings merged with override
func New(deps Dependencies, override SettingsOverride, logger *zap.Logger) (*Bot, error) {
	if deps.Adapter == nil {
		return nil, fmt.Errorf("adapter cannot be nil")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if deps.Handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if deps.Name == "" {
		deps.Name = "default"
	}

	settings := DefaultSettings().Merge(override)
	if settings.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	if settings.MinHealthFactor == nil || settings.MaxHealthFactor == nil {
		return nil, fmt.Errorf("health factor band must be set")
	}

	logger = logger.With(zap.String("protocol", deps.Name))
	m := deps.Metrics
	if m == nil {
		m = metrics.NewBotMetrics(prometheus.NewRegistry(), "liquidator", deps.Name)
	}
	paths := deps.Paths
	if paths == nil {
		paths = uniswap.NewPathBuilder(uniswap.WETH, uniswap.DefaultStablecoins, nil, uniswap.DefaultFeeTiers(), settings.DefaultPoolFee)
	}
	estimator := deps.Gas
	if estimator == nil {
		estimator = gas.NewEstimator(nil, settings.GasPrice, 0, logger)
	}
	native := deps.NativeAsset
	if native == (common.Address{}) {
		native = uniswap.WETH
	}

	return &Bot{
		name:        deps.Name,
		adapter:     deps.Adapter,
		fetcher:     deps.Fetcher,
		handler:     deps.Handler,
		paths:       paths,
		gas:         estimator,
		profit:      utils.NewProfitCalculator(settings.SlippageTolerance, settings.ProfitableThresholdUSD),
		nativeAsset: native,
		markets:     deps.Markets,
		settings:    settings,
		discovery:   NewDiscovery(deps.Fetcher, deps.Adapter, settings, m, logger),
		metrics:     m,
		logger:      logger,
	}, nil
}

func (b *Bot) Name() string { return b.name }

func (b *Bot) Settings() Settings { return b.settings.Merge(SettingsOverride{}) }

func (b *Bot) State() State { return State(b.state.Load()) }

func (b *Bot) setState(s State) {
	b.state.Store(int32(s))
	b.metrics.State.Set(float64(s))
}

// Evaluation is a sized liquidation with its cost and expected profit
type Evaluation struct {
	Params         *types.UserLiquidationParams
	Liquidation    *types.LiquidationParams
	GasLimit       uint64
	GasCostUSD     *big.Int
	ExpectedProfit *big.Int
	Profitable     bool
}

// stageError tags a per-user failure with the pipeline step it came from
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// Run performs one full pass over the indexer
func (b *Bot) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		b.setState(StateIdle)
		b.metrics.Runs.Inc()
		b.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	markets, err := b.resolveMarkets(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve markets: %w", err)
	}
	b.logger.Info("Starting liquidation run", zap.Int("markets", len(markets)))

	b.setState(StateDiscovering)
	var processed int
	err = b.discovery.Walk(ctx, func(users []types.UserHealth) error {
		processed += len(users)
		return b.processUsers(ctx, users, markets)
	})
	if err != nil {
		var dsErr *types.DataSourceError
		if !errors.As(err, &dsErr) {
			return err
		}
		b.logger.Warn("Indexer unavailable, ending discovery for this run", zap.Error(err))
	}

	b.logger.Info("Finished liquidation run",
		zap.Int("liquidable_users", processed),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (b *Bot) resolveMarkets(ctx context.Context) ([]common.Address, error) {
	if len(b.markets) > 0 {
		return b.markets, nil
	}
	if mf, ok := b.fetcher.(fetcher.MarketFetcher); ok {
		markets, err := mf.FetchMarkets(ctx)
		if err == nil && len(markets) > 0 {
			return markets, nil
		}
		if err != nil {
			b.logger.Warn("Failed to fetch markets from indexer, using pool", zap.Error(err))
		}
	}
	return b.adapter.Markets(ctx)
}

// processUsers handles liquidable users in batches of BatchSize
func (b *Bot) processUsers(ctx context.Context, users []types.UserHealth, markets []common.Address) error {
	for start := 0; start < len(users); start += b.settings.BatchSize {
		end := start + b.settings.BatchSize
		if end > len(users) {
			end = len(users)
		}
		if err := b.processBatch(ctx, users[start:end], markets); err != nil {
			return err
		}
		b.setState(StateDiscovering)
	}
	return nil
}

func (b *Bot) processBatch(ctx context.Context, batch []types.UserHealth, markets []common.Address) error {
	b.setState(StateAggregating)
	params := make([]*types.UserLiquidationParams, len(batch))
	b.fanOut(ctx, len(batch), func(i int) {
		p, err := b.GetUserLiquidationParams(ctx, batch[i].Address, markets)
		if err != nil {
			b.userError(batch[i].Address, nil, &stageError{"aggregate", err})
			return
		}
		params[i] = p
	})

	b.setState(StateSizing)
	evaluations := make([]*Evaluation, len(batch))
	b.fanOut(ctx, len(batch), func(i int) {
		if params[i] == nil {
			return
		}
		if params[i].ToLiquidate == nil || params[i].ToLiquidate.Sign() == 0 {
			b.logger.Debug("Nothing to liquidate", zap.String("user", batch[i].Address.Hex()))
			return
		}
		e, err := b.evaluate(ctx, params[i])
		if err != nil {
			b.userError(batch[i].Address, params[i], err)
			return
		}
		evaluations[i] = e
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	b.setState(StateFiltering)
	var selected []*Evaluation
	for _, e := range evaluations {
		if e == nil {
			continue
		}
		if !e.Profitable {
			b.metrics.Unprofitable.Inc()
			b.logger.Info("Liquidation not profitable",
				zap.String("user", e.Params.User.Hex()),
				zap.String("expected_profit", math.FormatUnits(e.ExpectedProfit, 8)),
				zap.String("gas_cost_usd", math.FormatUnits(e.GasCostUSD, 8)))
			continue
		}
		selected = append(selected, e)
	}

	// sequential so a single signer never races its own nonce
	b.setState(StateDispatching)
	for _, e := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.logger.Info("Liquidating user",
			zap.String("user", e.Params.User.Hex()),
			zap.String("amount", e.Liquidation.Amount.String()),
			zap.String("expected_profit", math.FormatUnits(e.ExpectedProfit, 8)))
		if err := b.handler.HandleLiquidation(ctx, e.Liquidation); err != nil {
			b.userError(e.Params.User, e.Params, &stageError{"dispatch", err})
			continue
		}
		b.metrics.Dispatched.Inc()
	}
	return nil
}

// fanOut runs fn for 0..n-1 with at most BatchSize in flight
func (b *Bot) fanOut(ctx context.Context, n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(b.settings.BatchSize)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

// Evaluate sizes a liquidation for user without dispatching it
func (b *Bot) Evaluate(ctx context.Context, user common.Address) (*Evaluation, error) {
	markets, err := b.resolveMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve markets: %w", err)
	}
	params, err := b.GetUserLiquidationParams(ctx, user, markets)
	if err != nil {
		return nil, err
	}
	return b.evaluate(ctx, params)
}

func (b *Bot) evaluate(ctx context.Context, params *types.UserLiquidationParams) (*Evaluation, error) {
	debt, collateral := params.DebtMarket, params.CollateralMarket
	liquidation := &types.LiquidationParams{
		PoolTokenBorrowed:    debt.Market,
		PoolTokenCollateral:  collateral.Market,
		UnderlyingBorrowed:   debt.Underlying,
		UnderlyingCollateral: collateral.Underlying,
		User:                 params.User,
		Amount:               params.ToLiquidate,
		SwapPath:             b.paths.Path(debt.Underlying, collateral.Underlying),
	}

	gasLimit, err := b.handler.EstimateGas(ctx, liquidation)
	if err != nil {
		if gasLimit == 0 {
			gasLimit = handler.DefaultFallbackGasLimit
		}
		b.metrics.GasFallbacks.Inc()
		b.logger.Warn("Using fallback gas limit",
			zap.String("user", params.User.Hex()),
			zap.Uint64("gas_limit", gasLimit),
			zap.Error(err))
	}

	gasPrice := b.settings.GasPrice
	if gasPrice == nil {
		gasPrice, err = b.gas.GasPrice(ctx)
		if err != nil {
			return nil, &stageError{"gas_price", err}
		}
	}
	nativePrice, err := b.adapter.AssetPrice(ctx, b.nativeAsset)
	if err != nil {
		return nil, &stageError{"native_price", err}
	}
	gasCostUSD := gas.CostUSD(b.gas.EstimateGasCost(gasLimit, gasPrice), nativePrice)

	expectedProfit, err := b.profit.CalculateExpectedProfit(params)
	if err != nil {
		return nil, &stageError{"profit", err}
	}

	return &Evaluation{
		Params:         params,
		Liquidation:    liquidation,
		GasLimit:       gasLimit,
		GasCostUSD:     gasCostUSD,
		ExpectedProfit: expectedProfit,
		Profitable:     b.profit.IsProfitable(expectedProfit, gasCostUSD),
	}, nil
}

// userError logs and counts a failure that only skips this user
func (b *Bot) userError(user common.Address, params *types.UserLiquidationParams, err error) {
	stage := "unknown"
	var se *stageError
	if errors.As(err, &se) {
		stage = se.stage
	}
	b.metrics.UserErrors.WithLabelValues(stage).Inc()

	fields := []zap.Field{
		zap.String("user", user.Hex()),
		zap.String("stage", stage),
		zap.Error(err),
	}
	if params != nil && params.DebtMarket != nil && params.CollateralMarket != nil {
		fields = append(fields,
			zap.String("debt_market", params.DebtMarket.Market.Hex()),
			zap.String("collateral_market", params.CollateralMarket.Market.Hex()))
	}
	b.logger.Error("Skipping user", fields...)
}
