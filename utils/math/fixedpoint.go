package math

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// PercentageFactor is the base of percent math (100.00%)
	PercentageFactor = big.NewInt(1e4)

	// WAD is the 1e18 fixed-point base used for health factors
	WAD = big.NewInt(1e18)

	halfPercent = big.NewInt(5e3)
)

// Pow10 returns 10^n
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// PercentMul returns value * percentage / 1e4 rounded half up
func PercentMul(value, percentage *big.Int) *big.Int {
	if value == nil || percentage == nil || value.Sign() == 0 || percentage.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(value, percentage)
	out.Add(out, halfPercent)
	return out.Div(out, PercentageFactor)
}

// PercentDiv returns value * 1e4 / percentage rounded half up. A zero
// percentage yields zero.
func PercentDiv(value, percentage *big.Int) *big.Int {
	if value == nil || percentage == nil || percentage.Sign() == 0 {
		return new(big.Int)
	}
	half := new(big.Int).Rsh(percentage, 1)
	out := new(big.Int).Mul(value, PercentageFactor)
	out.Add(out, half)
	return out.Div(out, percentage)
}

// MulDiv returns a * b / c rounded down
func MulDiv(a, b, c *big.Int) *big.Int {
	if c.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(a, b)
	return out.Div(out, c)
}

// ToUSD converts a native balance into oracle price units:
// balance * price / 10^decimals
func ToUSD(balance, price *big.Int, decimals uint8) *big.Int {
	if balance == nil || price == nil {
		return new(big.Int)
	}
	return MulDiv(balance, price, Pow10(decimals))
}

// FromUSD converts an amount in oracle price units back into native units:
// usd * 10^decimals / price
func FromUSD(usd, price *big.Int, decimals uint8) *big.Int {
	if usd == nil || price == nil || price.Sign() == 0 {
		return new(big.Int)
	}
	return MulDiv(usd, Pow10(decimals), price)
}

// FormatUnits renders a fixed-point integer as a decimal string
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

// ParseUnits parses a decimal string such as "100.5" into a fixed-point
// integer with the given number of decimals. Extra precision is truncated.
func ParseUnits(value string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", value)
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// ExceedsWithMargin reports whether value > cost + margin
func ExceedsWithMargin(value, cost, margin *big.Int) bool {
	floor := new(big.Int)
	if cost != nil {
		floor.Add(floor, cost)
	}
	if margin != nil {
		floor.Add(floor, margin)
	}
	return value != nil && value.Cmp(floor) > 0
}
