package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/michaelpento.lv/liquidator/utils/math"
)

// DefaultRefreshInterval is roughly one mainnet block
const DefaultRefreshInterval = 12 * time.Second

// Pricer is the part of an RPC client that suggests gas prices
type Pricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Estimator provides the gas price used to cost liquidations
type Estimator struct {
	client  Pricer
	logger  *zap.Logger
	fixed   *big.Int
	refresh time.Duration

	mu        sync.RWMutex
	gasPrice  *big.Int
	updatedAt time.Time
	now       func() time.Time
}

// NewEstimator creates a gas estimator. A non-nil fixed price bypasses the
// client entirely.
func NewEstimator(client Pricer, fixed *big.Int, refresh time.Duration, logger *zap.Logger) *Estimator {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	return &Estimator{
		client:  client,
		logger:  logger,
		fixed:   fixed,
		refresh: refresh,
		now:     time.Now,
	}
}

// GasPrice returns the configured price or the node suggestion, cached for
// the refresh interval
func (e *Estimator) GasPrice(ctx context.Context) (*big.Int, error) {
	if e.fixed != nil {
		return new(big.Int).Set(e.fixed), nil
	}

	e.mu.RLock()
	cached, fresh := e.gasPrice, e.now().Sub(e.updatedAt) < e.refresh
	e.mu.RUnlock()
	if cached != nil && fresh {
		return new(big.Int).Set(cached), nil
	}

	if e.client == nil {
		return nil, fmt.Errorf("no gas price source configured")
	}
	price, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	e.mu.Lock()
	e.gasPrice = price
	e.updatedAt = e.now()
	e.mu.Unlock()

	e.logger.Debug("Updated gas price", zap.String("gas_price", price.String()))
	return new(big.Int).Set(price), nil
}

// EstimateGasCost returns gasLimit * gasPrice in wei
func (e *Estimator) EstimateGasCost(gasLimit uint64, gasPrice *big.Int) *big.Int {
	if gasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
}

// CostUSD converts a wei amount into oracle USD units given the native
// asset price in the same units
func CostUSD(costWei, nativePrice *big.Int) *big.Int {
	if costWei == nil || nativePrice == nil {
		return new(big.Int)
	}
	return math.MulDiv(costWei, nativePrice, math.WAD)
}
