package bot

import (
	"math/big"
	"time"

	"github.com/michaelpento.lv/liquidator/utils/math"
)

// Settings are fixed for the lifetime of a bot. USD amounts use oracle
// units and health factors are 1e18 scaled.
type Settings struct {
	ProfitableThresholdUSD *big.Int
	BatchSize              int
	MinHealthFactor        *big.Int
	MaxHealthFactor        *big.Int
	// GasPrice in wei; nil asks the node
	GasPrice *big.Int
	// SlippageTolerance in basis points of the seized value
	SlippageTolerance int64
	DefaultPoolFee    uint32

	PageDelay time.Duration
	// LowHealthFactor marks users worth a debug line even outside the band
	LowHealthFactor *big.Int
}

// SettingsOverride replaces the fields that are set
type SettingsOverride struct {
	ProfitableThresholdUSD *big.Int
	BatchSize              *int
	MinHealthFactor        *big.Int
	MaxHealthFactor        *big.Int
	GasPrice               *big.Int
	SlippageTolerance      *int64
	DefaultPoolFee         *uint32
	PageDelay              *time.Duration
	LowHealthFactor        *big.Int
}

// DefaultSettings liquidate anything under a health factor of 1 that earns
// at least 100 USD after gas
func DefaultSettings() Settings {
	return Settings{
		ProfitableThresholdUSD: new(big.Int).Mul(big.NewInt(100), math.Pow10(8)),
		BatchSize:              15,
		MinHealthFactor:        new(big.Int),
		MaxHealthFactor:        new(big.Int).Set(math.WAD),
		SlippageTolerance:      100,
		DefaultPoolFee:         3000,
		PageDelay:              100 * time.Millisecond,
		LowHealthFactor:        big.NewInt(1_000_100_000_000_000_000),
	}
}

func clone(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// Merge returns a copy of s with the override applied
func (s Settings) Merge(o SettingsOverride) Settings {
	out := Settings{
		ProfitableThresholdUSD: clone(s.ProfitableThresholdUSD),
		BatchSize:              s.BatchSize,
		MinHealthFactor:        clone(s.MinHealthFactor),
		MaxHealthFactor:        clone(s.MaxHealthFactor),
		GasPrice:               clone(s.GasPrice),
		SlippageTolerance:      s.SlippageTolerance,
		DefaultPoolFee:         s.DefaultPoolFee,
		PageDelay:              s.PageDelay,
		LowHealthFactor:        clone(s.LowHealthFactor),
	}

	if o.ProfitableThresholdUSD != nil {
		out.ProfitableThresholdUSD = clone(o.ProfitableThresholdUSD)
	}
	if o.BatchSize != nil && *o.BatchSize > 0 {
		out.BatchSize = *o.BatchSize
	}
	if o.MinHealthFactor != nil {
		out.MinHealthFactor = clone(o.MinHealthFactor)
	}
	if o.MaxHealthFactor != nil {
		out.MaxHealthFactor = clone(o.MaxHealthFactor)
	}
	if o.GasPrice != nil {
		out.GasPrice = clone(o.GasPrice)
	}
	if o.SlippageTolerance != nil {
		out.SlippageTolerance = *o.SlippageTolerance
	}
	if o.DefaultPoolFee != nil {
		out.DefaultPoolFee = *o.DefaultPoolFee
	}
	if o.PageDelay != nil {
		out.PageDelay = *o.PageDelay
	}
	if o.LowHealthFactor != nil {
		out.LowHealthFactor = clone(o.LowHealthFactor)
	}
	return out
}

// InBand reports whether min < hf < max
func (s Settings) InBand(hf *big.Int) bool {
	if hf == nil {
		return false
	}
	return hf.Cmp(s.MinHealthFactor) > 0 && hf.Cmp(s.MaxHealthFactor) < 0
}
