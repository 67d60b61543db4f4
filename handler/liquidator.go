package handler

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	liqtypes "github.com/michaelpento.lv/liquidator/types"
)

const liquidatorABI = `[
	{"type":"function","name":"liquidate","stateMutability":"nonpayable","inputs":[
		{"name":"_poolTokenBorrowedAddress","type":"address"},
		{"name":"_poolTokenCollateralAddress","type":"address"},
		{"name":"_borrower","type":"address"},
		{"name":"_toLiquidate","type":"uint256"},
		{"name":"_stakeTokens","type":"bool"},
		{"name":"_path","type":"bytes"}],"outputs":[]}
]`

// LiquidatorOptions configures the flash-loan liquidator handler
type LiquidatorOptions struct {
	Options
	// StakeTokens leaves the seized collateral on the liquidator contract
	StakeTokens bool
}

// DefaultLiquidatorOptions stakes the proceeds with the default gas bounds
func DefaultLiquidatorOptions() LiquidatorOptions {
	return LiquidatorOptions{Options: DefaultOptions(), StakeTokens: true}
}

// LiquidatorHandler liquidates through a deployed flash-loan liquidator
// contract that borrows the debt asset and swaps the collateral back
type LiquidatorHandler struct {
	*executor
	address     common.Address
	abi         abi.ABI
	contract    *bind.BoundContract
	stakeTokens bool
}

// NewLiquidatorHandler binds the liquidator contract at address
func NewLiquidatorHandler(cfg Config, address common.Address, opts LiquidatorOptions) (*LiquidatorHandler, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("liquidator address cannot be zero")
	}
	exec, err := newExecutor(cfg, "liquidator", opts.Options)
	if err != nil {
		return nil, err
	}
	parsed, err := parseABI(liquidatorABI)
	if err != nil {
		return nil, err
	}

	return &LiquidatorHandler{
		executor:    exec,
		address:     address,
		abi:         parsed,
		contract:    bind.NewBoundContract(address, parsed, cfg.Backend, cfg.Backend, cfg.Backend),
		stakeTokens: opts.StakeTokens,
	}, nil
}

func (h *LiquidatorHandler) args(p *liqtypes.LiquidationParams) []interface{} {
	path := p.SwapPath
	if path == nil {
		path = []byte{}
	}
	return []interface{}{
		p.PoolTokenBorrowed,
		p.PoolTokenCollateral,
		p.User,
		p.Amount,
		h.stakeTokens,
		path,
	}
}

// EstimateGas returns the buffered and clamped estimate for liquidate. On
// failure it returns the fallback limit together with ErrGasEstimateFailed.
func (h *LiquidatorHandler) EstimateGas(ctx context.Context, p *liqtypes.LiquidationParams) (uint64, error) {
	estimate, err := h.estimate(ctx, h.address, h.abi, "liquidate", h.args(p)...)
	if err != nil {
		h.logger.Error("Gas estimation failed",
			zap.String("user", p.User.Hex()),
			zap.Error(err))
		return h.opts.FallbackGasLimit, fmt.Errorf("%w: %w", ErrGasEstimateFailed, err)
	}
	return h.opts.Bound(estimate, h.logger), nil
}

// HandleLiquidation sends liquidate and waits for it to be mined
func (h *LiquidatorHandler) HandleLiquidation(ctx context.Context, p *liqtypes.LiquidationParams) error {
	gasLimit, _ := h.EstimateGas(ctx, p)

	receipt, err := h.send(ctx, h.contract, gasLimit, "liquidate", h.args(p)...)
	if err != nil {
		h.logger.Error("Liquidation failed",
			zap.String("user", p.User.Hex()),
			zap.Error(err))
		return err
	}
	h.logEfficiency(receipt, gasLimit)
	return nil
}

var _ Handler = (*LiquidatorHandler)(nil)
