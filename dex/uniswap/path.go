package uniswap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Mainnet assets recognized by the default path builder
var (
	WETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	DefaultStablecoins = []common.Address{
		common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), // DAI
		common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"), // USDC
		common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), // USDT
		common.HexToAddress("0x956f47f50a910163d8bf957cf5846d573e7f87ca"), // FEI
	}
)

// ErrUnknownMarket is returned when a market has no registered underlying
var ErrUnknownMarket = errors.New("unknown market")

const (
	addressLength = common.AddressLength
	feeLength     = 3
)

// FeeTiers are Uniswap V3 pool fees in hundredths of a bip
type FeeTiers struct {
	Stable  uint32 `yaml:"stable"`
	Classic uint32 `yaml:"classic"`
	Exotic  uint32 `yaml:"exotic"`
}

// DefaultFeeTiers are the 0.01%, 0.05% and 0.3% pools
func DefaultFeeTiers() FeeTiers {
	return FeeTiers{Stable: 100, Classic: 500, Exotic: 3000}
}

// PathBuilder derives the swap route used to turn seized collateral back
// into the debt asset
type PathBuilder struct {
	wrappedNative common.Address
	stablecoins   map[common.Address]struct{}
	underlyings   map[common.Address]common.Address
	fees          FeeTiers
}

// NewPathBuilder creates a path builder. underlyings maps markets to their
// underlying asset; defaultFee replaces any unset tier.
func NewPathBuilder(wrappedNative common.Address, stablecoins []common.Address, underlyings map[common.Address]common.Address, fees FeeTiers, defaultFee uint32) *PathBuilder {
	stable := make(map[common.Address]struct{}, len(stablecoins))
	for _, s := range stablecoins {
		stable[s] = struct{}{}
	}
	resolved := make(map[common.Address]common.Address, len(underlyings))
	for market, underlying := range underlyings {
		resolved[market] = underlying
	}

	for _, tier := range []*uint32{&fees.Stable, &fees.Classic, &fees.Exotic} {
		if *tier == 0 {
			*tier = defaultFee
		}
	}

	return &PathBuilder{
		wrappedNative: wrappedNative,
		stablecoins:   stable,
		underlyings:   resolved,
		fees:          fees,
	}
}

// GetPath builds the route between two markets given as hex strings. Address
// casing is ignored.
func (b *PathBuilder) GetPath(borrowMarket, collateralMarket string) ([]byte, error) {
	if strings.EqualFold(borrowMarket, collateralMarket) {
		return []byte{}, nil
	}
	borrow, err := b.resolve(borrowMarket)
	if err != nil {
		return nil, err
	}
	collateral, err := b.resolve(collateralMarket)
	if err != nil {
		return nil, err
	}
	return b.Path(borrow, collateral), nil
}

func (b *PathBuilder) resolve(market string) (common.Address, error) {
	if !common.IsHexAddress(market) {
		return common.Address{}, fmt.Errorf("invalid market address %q", market)
	}
	address := common.HexToAddress(strings.ToLower(market))
	underlying, ok := b.underlyings[address]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownMarket, address.Hex())
	}
	return underlying, nil
}

// Path builds the packed route between the borrowed and the collateral
// underlying. The route starts at the borrowed asset, matching the reversed
// order exact-output swaps consume.
func (b *PathBuilder) Path(borrowUnderlying, collateralUnderlying common.Address) []byte {
	if borrowUnderlying == collateralUnderlying {
		return []byte{}
	}
	if borrowUnderlying == b.wrappedNative || collateralUnderlying == b.wrappedNative {
		return EncodePath([]common.Address{borrowUnderlying, collateralUnderlying}, []uint32{b.fees.Classic})
	}
	if b.isStable(borrowUnderlying) && b.isStable(collateralUnderlying) {
		return EncodePath([]common.Address{borrowUnderlying, collateralUnderlying}, []uint32{b.fees.Stable})
	}
	return EncodePath(
		[]common.Address{borrowUnderlying, b.wrappedNative, collateralUnderlying},
		[]uint32{b.fees.Exotic, b.fees.Exotic},
	)
}

func (b *PathBuilder) isStable(token common.Address) bool {
	_, ok := b.stablecoins[token]
	return ok
}

// EncodePath packs tokens and fees the way the V3 router expects:
// token0 (20 bytes) | fee0 (3 bytes) | token1 | fee1 | token2 ...
func EncodePath(tokens []common.Address, fees []uint32) []byte {
	if len(tokens) == 0 || len(fees) != len(tokens)-1 {
		return []byte{}
	}
	path := make([]byte, 0, len(tokens)*addressLength+len(fees)*feeLength)
	for i, token := range tokens {
		path = append(path, token.Bytes()...)
		if i < len(fees) {
			fee := fees[i]
			path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return path
}

// DecodePath splits a packed route back into tokens and fees
func DecodePath(path []byte) ([]common.Address, []uint32, error) {
	if len(path) == 0 {
		return nil, nil, nil
	}
	if (len(path)-addressLength)%(addressLength+feeLength) != 0 {
		return nil, nil, fmt.Errorf("invalid path length %d", len(path))
	}
	var (
		tokens []common.Address
		fees   []uint32
	)
	for offset := 0; ; {
		tokens = append(tokens, common.BytesToAddress(path[offset:offset+addressLength]))
		offset += addressLength
		if offset == len(path) {
			break
		}
		fees = append(fees, uint32(path[offset])<<16|uint32(path[offset+1])<<8|uint32(path[offset+2]))
		offset += feeLength
	}
	return tokens, fees, nil
}
