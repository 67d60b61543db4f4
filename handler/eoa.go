package handler

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	liqtypes "github.com/michaelpento.lv/liquidator/types"
)

const (
	lendingPoolABI = `[
		{"type":"function","name":"liquidationCall","stateMutability":"nonpayable","inputs":[
			{"name":"collateralAsset","type":"address"},
			{"name":"debtAsset","type":"address"},
			{"name":"user","type":"address"},
			{"name":"debtToCover","type":"uint256"},
			{"name":"receiveAToken","type":"bool"}],"outputs":[]}
	]`

	erc20ABI = `[
		{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`
)

// USDT reverts on approve when the current allowance is non-zero
var USDT = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")

// EOAOptions configures the wallet-funded handler
type EOAOptions struct {
	Options

	CheckBalance   bool
	CheckAllowance bool
	// ApproveMax approves the maximum uint256 instead of the exact amount
	ApproveMax bool
	// ReceiveAToken takes the seized collateral as interest-bearing tokens
	ReceiveAToken bool

	// ApproveZeroTokens must have their allowance reset to zero first
	ApproveZeroTokens []common.Address
}

// DefaultEOAOptions checks balance and allowance and approves the maximum
func DefaultEOAOptions() EOAOptions {
	return EOAOptions{
		Options:           DefaultOptions(),
		CheckBalance:      true,
		CheckAllowance:    true,
		ApproveMax:        true,
		ApproveZeroTokens: []common.Address{USDT},
	}
}

// EOAHandler repays the debt from the signer's own balance by calling the
// lending pool directly
type EOAHandler struct {
	*executor
	pool        common.Address
	poolABI     abi.ABI
	tokenABI    abi.ABI
	contract    *bind.BoundContract
	options     EOAOptions
	approveZero map[common.Address]bool
}

// NewEOAHandler binds the lending pool at pool
func NewEOAHandler(cfg Config, pool common.Address, opts EOAOptions) (*EOAHandler, error) {
	if pool == (common.Address{}) {
		return nil, fmt.Errorf("lending pool address cannot be zero")
	}
	exec, err := newExecutor(cfg, "eoa", opts.Options)
	if err != nil {
		return nil, err
	}
	parsedPool, err := parseABI(lendingPoolABI)
	if err != nil {
		return nil, err
	}
	parsedToken, err := parseABI(erc20ABI)
	if err != nil {
		return nil, err
	}

	approveZero := make(map[common.Address]bool, len(opts.ApproveZeroTokens))
	for _, token := range opts.ApproveZeroTokens {
		approveZero[token] = true
	}

	return &EOAHandler{
		executor:    exec,
		pool:        pool,
		poolABI:     parsedPool,
		tokenABI:    parsedToken,
		contract:    bind.NewBoundContract(pool, parsedPool, cfg.Backend, cfg.Backend, cfg.Backend),
		options:     opts,
		approveZero: approveZero,
	}, nil
}

func (h *EOAHandler) token(address common.Address) *bind.BoundContract {
	return bind.NewBoundContract(address, h.tokenABI, h.backend, h.backend, h.backend)
}

func (h *EOAHandler) liquidationArgs(p *liqtypes.LiquidationParams) []interface{} {
	return []interface{}{
		p.CollateralAsset(),
		p.DebtAsset(),
		p.User,
		p.Amount,
		h.options.ReceiveAToken,
	}
}

func (h *EOAHandler) approveAmount(amount *big.Int) *big.Int {
	if h.options.ApproveMax {
		return abi.MaxUint256
	}
	return amount
}

func (h *EOAHandler) readUint(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	out, err := h.call(ctx, h.token(token), method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s output %T", method, out[0])
	}
	return v, nil
}

func (h *EOAHandler) allowance(ctx context.Context, token common.Address) (*big.Int, error) {
	return h.readUint(ctx, token, "allowance", h.signer.From, h.pool)
}

// EstimateGas sums the pending approvals and liquidationCall, then buffers
// and clamps the total. On failure it returns the fallback limit together
// with ErrGasEstimateFailed.
func (h *EOAHandler) EstimateGas(ctx context.Context, p *liqtypes.LiquidationParams) (uint64, error) {
	total, err := h.estimateTotal(ctx, p)
	if err != nil {
		h.logger.Error("Gas estimation failed",
			zap.String("user", p.User.Hex()),
			zap.Error(err))
		return h.opts.FallbackGasLimit, fmt.Errorf("%w: %w", ErrGasEstimateFailed, err)
	}
	return h.opts.Bound(total, h.logger), nil
}

func (h *EOAHandler) estimateTotal(ctx context.Context, p *liqtypes.LiquidationParams) (uint64, error) {
	var total uint64
	debt := p.DebtAsset()

	if h.options.CheckAllowance {
		current, err := h.allowance(ctx, debt)
		if err != nil {
			return 0, err
		}
		if current.Cmp(p.Amount) < 0 {
			if h.approveZero[debt] {
				gas, err := h.estimate(ctx, debt, h.tokenABI, "approve", h.pool, new(big.Int))
				if err != nil {
					return 0, err
				}
				total += gas
			}
			gas, err := h.estimate(ctx, debt, h.tokenABI, "approve", h.pool, h.approveAmount(p.Amount))
			if err != nil {
				return 0, err
			}
			total += gas
		}
	}

	gas, err := h.estimate(ctx, h.pool, h.poolABI, "liquidationCall", h.liquidationArgs(p)...)
	if err != nil {
		return 0, err
	}
	return total + gas, nil
}

func (h *EOAHandler) checkBalance(ctx context.Context, p *liqtypes.LiquidationParams) error {
	balance, err := h.readUint(ctx, p.DebtAsset(), "balanceOf", h.signer.From)
	if err != nil {
		return err
	}
	if balance.Cmp(p.Amount) < 0 {
		return &liqtypes.InsufficientBalanceError{Required: p.Amount, Available: balance}
	}
	return nil
}

func (h *EOAHandler) ensureAllowance(ctx context.Context, p *liqtypes.LiquidationParams) error {
	debt := p.DebtAsset()
	current, err := h.allowance(ctx, debt)
	if err != nil {
		return err
	}
	if current.Cmp(p.Amount) >= 0 {
		return nil
	}

	token := h.token(debt)
	if h.approveZero[debt] && current.Sign() > 0 {
		h.logger.Info("Resetting allowance", zap.String("token", debt.Hex()))
		if _, err := h.send(ctx, token, 0, "approve", h.pool, new(big.Int)); err != nil {
			return fmt.Errorf("%w: failed to reset %s: %w", liqtypes.ErrInsufficientAllowance, debt.Hex(), err)
		}
	}

	amount := h.approveAmount(p.Amount)
	h.logger.Info("Approving lending pool",
		zap.String("token", debt.Hex()),
		zap.String("amount", amount.String()))
	if _, err := h.send(ctx, token, 0, "approve", h.pool, amount); err != nil {
		return fmt.Errorf("%w: failed to approve %s: %w", liqtypes.ErrInsufficientAllowance, debt.Hex(), err)
	}
	return nil
}

// HandleLiquidation verifies the wallet can repay, approves the pool if
// needed and sends liquidationCall
func (h *EOAHandler) HandleLiquidation(ctx context.Context, p *liqtypes.LiquidationParams) error {
	if err := h.handle(ctx, p); err != nil {
		h.logger.Error("Liquidation failed",
			zap.String("user", p.User.Hex()),
			zap.Error(err))
		return err
	}
	return nil
}

func (h *EOAHandler) handle(ctx context.Context, p *liqtypes.LiquidationParams) error {
	if h.options.CheckBalance {
		if err := h.checkBalance(ctx, p); err != nil {
			return err
		}
	}
	if h.options.CheckAllowance {
		if err := h.ensureAllowance(ctx, p); err != nil {
			return err
		}
	}

	// approvals are mined by now, so only liquidationCall is estimated
	gas, err := h.estimate(ctx, h.pool, h.poolABI, "liquidationCall", h.liquidationArgs(p)...)
	gasLimit := h.opts.FallbackGasLimit
	if err != nil {
		h.logger.Warn("Gas estimation failed, using fallback",
			zap.Uint64("gas_limit", gasLimit),
			zap.Error(err))
	} else {
		gasLimit = h.opts.Bound(gas, h.logger)
	}

	receipt, err := h.send(ctx, h.contract, gasLimit, "liquidationCall", h.liquidationArgs(p)...)
	if err != nil {
		return err
	}
	h.logEfficiency(receipt, gasLimit)
	return nil
}

var _ Handler = (*EOAHandler)(nil)
