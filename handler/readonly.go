package handler

import (
	"context"

	"go.uber.org/zap"

	liqtypes "github.com/michaelpento.lv/liquidator/types"
)

// ReadOnlyHandler logs liquidations instead of sending them
type ReadOnlyHandler struct {
	logger *zap.Logger
}

func NewReadOnlyHandler(logger *zap.Logger) *ReadOnlyHandler {
	return &ReadOnlyHandler{logger: logger.With(zap.String("handler", "read-only"))}
}

func (h *ReadOnlyHandler) HandleLiquidation(ctx context.Context, p *liqtypes.LiquidationParams) error {
	h.logger.Info("Read only mode, no liquidation will be performed",
		zap.String("user", p.User.Hex()),
		zap.String("debt", p.PoolTokenBorrowed.Hex()),
		zap.String("collateral", p.PoolTokenCollateral.Hex()),
		zap.String("amount", p.Amount.String()))
	return nil
}

func (h *ReadOnlyHandler) EstimateGas(ctx context.Context, p *liqtypes.LiquidationParams) (uint64, error) {
	return ReadOnlyGasEstimate, nil
}

var _ Handler = (*ReadOnlyHandler)(nil)
