package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	liqtypes "github.com/michaelpento.lv/liquidator/types"
	"github.com/michaelpento.lv/liquidator/utils/metrics"
)

// Config carries the collaborators shared by transacting handlers
type Config struct {
	Backend Backend

	// Signer is the signing capability; nil selects the read-only handler
	Signer *bind.TransactOpts

	// Sender defaults to Backend
	Sender TxSender

	Metrics *metrics.HandlerMetrics
	Logger  *zap.Logger
}

// executor signs transactions locally and hands them to a TxSender
type executor struct {
	backend Backend
	signer  *bind.TransactOpts
	sender  TxSender
	metrics *metrics.HandlerMetrics
	logger  *zap.Logger
	opts    Options
}

func newExecutor(cfg Config, name string, opts Options) (*executor, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	sender := cfg.Sender
	if sender == nil {
		sender = cfg.Backend
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewHandlerMetrics(prometheus.NewRegistry(), "liquidator", name)
	}

	return &executor{
		backend: cfg.Backend,
		signer:  cfg.Signer,
		sender:  sender,
		metrics: m,
		logger:  cfg.Logger.With(zap.String("handler", name)),
		opts:    opts.withDefaults(),
	}, nil
}

func parseABI(def string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsed, nil
}

// estimate asks the node for the gas of a call sent from the signer
func (e *executor) estimate(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) (uint64, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return e.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: e.signer.From,
		To:   &to,
		Data: data,
	})
}

// call performs a read against the contract
func (e *executor) call(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx, From: e.signer.From}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return out, nil
}

// send signs a transaction, submits it and waits for a successful receipt.
// A zero gasLimit lets the node estimate it.
func (e *executor) send(ctx context.Context, contract *bind.BoundContract, gasLimit uint64, method string, args ...interface{}) (*types.Receipt, error) {
	opts := *e.signer
	opts.Context = ctx
	opts.GasLimit = gasLimit
	opts.NoSend = true

	tx, err := contract.Transact(&opts, method, args...)
	if err != nil {
		e.metrics.Failed.Inc()
		return nil, fmt.Errorf("failed to sign %s: %w", method, err)
	}
	if err := e.sender.SendTransaction(ctx, tx); err != nil {
		e.metrics.Failed.Inc()
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}
	e.metrics.Submitted.Inc()
	e.logger.Info("Transaction submitted",
		zap.String("method", method),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("gas_limit", tx.Gas()))

	waitCtx, cancel := context.WithTimeout(ctx, e.opts.ReceiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, e.backend, tx)
	if err != nil {
		e.metrics.Failed.Inc()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			e.cancel(ctx, tx)
		}
		return nil, fmt.Errorf("failed to wait for %s: %w", tx.Hash().Hex(), err)
	}
	e.metrics.GasUsed.Observe(float64(receipt.GasUsed))

	if receipt.Status != types.ReceiptStatusSuccessful {
		e.metrics.Reverted.Inc()
		return receipt, fmt.Errorf("%s %s: %w", method, tx.Hash().Hex(), liqtypes.ErrTransactionReverted)
	}
	return receipt, nil
}

// cancel withdraws a transaction still pending after the receipt timeout
// so a stale liquidation cannot land later
func (e *executor) cancel(ctx context.Context, tx *types.Transaction) {
	canceler, ok := e.sender.(TxCanceler)
	if !ok {
		return
	}
	cancelled, err := canceler.CancelTransaction(ctx, tx.Hash())
	if err != nil {
		e.logger.Warn("Failed to cancel pending transaction",
			zap.String("tx_hash", tx.Hash().Hex()),
			zap.Error(err))
		return
	}
	e.logger.Info("Pending transaction cancelled",
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Bool("cancelled", cancelled))
}

// logEfficiency reports how much of the estimate a mined transaction used
func (e *executor) logEfficiency(receipt *types.Receipt, estimate uint64) {
	if estimate == 0 {
		return
	}
	efficiency := receipt.GasUsed * 100 / estimate
	e.metrics.GasEfficiency.Observe(float64(efficiency))
	e.logger.Info("Liquidation successful",
		zap.String("tx_hash", receipt.TxHash.Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.Uint64("gas_estimate", estimate),
		zap.Uint64("efficiency_percent", efficiency))
}
