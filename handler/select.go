package handler

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Selection names the contracts a handler may be bound to
type Selection struct {
	// FlashLiquidator selects the flash-loan handler when set
	FlashLiquidator common.Address
	// Pool is the lending pool used by the wallet-funded handler
	Pool common.Address

	Liquidator LiquidatorOptions
	EOA        EOAOptions
}

// New picks the handler for the available capabilities: no signer means
// read-only, a flash liquidator takes precedence over the wallet
func New(cfg Config, sel Selection) (Handler, error) {
	if cfg.Signer == nil {
		cfg.Logger.Info("No signer configured, running read-only")
		return NewReadOnlyHandler(cfg.Logger), nil
	}
	if sel.FlashLiquidator != (common.Address{}) {
		cfg.Logger.Info("Using flash liquidator",
			zap.String("liquidator", sel.FlashLiquidator.Hex()))
		return NewLiquidatorHandler(cfg, sel.FlashLiquidator, sel.Liquidator)
	}
	cfg.Logger.Info("Using wallet funded liquidations",
		zap.String("pool", sel.Pool.Hex()),
		zap.String("wallet", cfg.Signer.From.Hex()))
	return NewEOAHandler(cfg, sel.Pool, sel.EOA)
}
