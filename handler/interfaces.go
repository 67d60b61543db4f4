package handler

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	liqtypes "github.com/michaelpento.lv/liquidator/types"
)

// ErrGasEstimateFailed marks an estimate replaced by the fallback gas limit.
// EstimateGas still returns a usable limit alongside it.
var ErrGasEstimateFailed = errors.New("gas estimation failed")

// Handler executes, or pretends to execute, a sized liquidation
type Handler interface {
	HandleLiquidation(ctx context.Context, params *liqtypes.LiquidationParams) error
	EstimateGas(ctx context.Context, params *liqtypes.LiquidationParams) (uint64, error)
}

// Backend is the chain access a transacting handler needs
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// TxSender submits a signed transaction, either to the public mempool or a
// private relay
type TxSender interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// TxCanceler is implemented by senders that can withdraw a submitted
// transaction which never made it into a block
type TxCanceler interface {
	CancelTransaction(ctx context.Context, txHash common.Hash) (bool, error)
}

// Gas limits shared by the transacting handlers
const (
	DefaultGasBufferPercent = 10
	DefaultMinGasLimit      = 500_000
	DefaultMaxGasLimit      = 5_000_000
	DefaultFallbackGasLimit = 3_000_000
	ReadOnlyGasEstimate     = 10_000

	DefaultReceiptTimeout = 3 * time.Minute
)

// Options bound the gas limit a handler attaches to its transactions
type Options struct {
	GasBufferPercent uint64
	MinGasLimit      uint64
	MaxGasLimit      uint64
	FallbackGasLimit uint64
	ReceiptTimeout   time.Duration
}

// DefaultOptions returns a 10% buffer clamped to [500k, 5M] with a 3M fallback
func DefaultOptions() Options {
	return Options{
		GasBufferPercent: DefaultGasBufferPercent,
		MinGasLimit:      DefaultMinGasLimit,
		MaxGasLimit:      DefaultMaxGasLimit,
		FallbackGasLimit: DefaultFallbackGasLimit,
		ReceiptTimeout:   DefaultReceiptTimeout,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinGasLimit == 0 {
		o.MinGasLimit = d.MinGasLimit
	}
	if o.MaxGasLimit == 0 {
		o.MaxGasLimit = d.MaxGasLimit
	}
	if o.FallbackGasLimit == 0 {
		o.FallbackGasLimit = d.FallbackGasLimit
	}
	if o.ReceiptTimeout == 0 {
		o.ReceiptTimeout = d.ReceiptTimeout
	}
	return o
}

// Bound applies the buffer to a raw estimate and clamps the result
func (o Options) Bound(estimate uint64, logger *zap.Logger) uint64 {
	buffered := estimate * (100 + o.GasBufferPercent) / 100

	if buffered > o.MaxGasLimit {
		logger.Info("Gas estimate too high",
			zap.Uint64("estimate", buffered),
			zap.Uint64("max", o.MaxGasLimit))
		return o.MaxGasLimit
	}
	if buffered < o.MinGasLimit {
		logger.Info("Gas estimate too low",
			zap.Uint64("estimate", buffered),
			zap.Uint64("min", o.MinGasLimit))
		return o.MinGasLimit
	}
	return buffered
}
