package math

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedPoint(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"TestPow10", testPow10},
		{"TestPercentMul", testPercentMul},
		{"TestPercentDiv", testPercentDiv},
		{"TestToUSD", testToUSD},
		{"TestFromUSD", testFromUSD},
		{"TestUnits", testUnits},
		{"TestExceedsWithMargin", testExceedsWithMargin},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testPow10(t *testing.T) {
	assert.Equal(t, "1", Pow10(0).String())
	assert.Equal(t, "1000000", Pow10(6).String())
	assert.Equal(t, "1000000000000000000", Pow10(18).String())
}

func testPercentMul(t *testing.T) {
	// 500 * 105% = 525
	assert.Equal(t, big.NewInt(525), PercentMul(big.NewInt(500), big.NewInt(10500)))
	// 1 * 50.00% = 0.5, rounds half up
	assert.Equal(t, big.NewInt(1), PercentMul(big.NewInt(1), big.NewInt(5000)))
	assert.Equal(t, int64(0), PercentMul(big.NewInt(1), big.NewInt(4999)).Int64())
	assert.Equal(t, int64(0), PercentMul(nil, big.NewInt(10500)).Int64())
	assert.Equal(t, int64(0), PercentMul(big.NewInt(10), big.NewInt(0)).Int64())
}

func testPercentDiv(t *testing.T) {
	// 525 / 105% = 500
	assert.Equal(t, big.NewInt(500), PercentDiv(big.NewInt(525), big.NewInt(10500)))
	// 400 / 105% = 380.95 -> 381
	assert.Equal(t, big.NewInt(381), PercentDiv(big.NewInt(400), big.NewInt(10500)))
	assert.Equal(t, int64(0), PercentDiv(big.NewInt(400), big.NewInt(0)).Int64())
}

func testToUSD(t *testing.T) {
	// 400 USDC at $1 with an 8 decimal oracle
	usd := ToUSD(big.NewInt(400_000_000), big.NewInt(100_000_000), 6)
	assert.Equal(t, "40000000000", usd.String())

	dai := new(big.Int).Mul(big.NewInt(1000), Pow10(18))
	assert.Equal(t, "100000000000", ToUSD(dai, big.NewInt(100_000_000), 18).String())
	assert.Equal(t, int64(0), ToUSD(nil, big.NewInt(1), 6).Int64())
}

func testFromUSD(t *testing.T) {
	native := FromUSD(big.NewInt(40_000_000_000), big.NewInt(100_000_000), 6)
	assert.Equal(t, "400000000", native.String())
	assert.Equal(t, int64(0), FromUSD(big.NewInt(1), big.NewInt(0), 6).Int64())
}

func testUnits(t *testing.T) {
	v, err := ParseUnits("100", 8)
	require.NoError(t, err)
	assert.Equal(t, "10000000000", v.String())

	v, err = ParseUnits("1.000000019", 8)
	require.NoError(t, err)
	assert.Equal(t, "100000001", v.String())

	_, err = ParseUnits("abc", 8)
	assert.Error(t, err)
	_, err = ParseUnits("-1", 8)
	assert.Error(t, err)

	assert.Equal(t, "380.95238095", FormatUnits(big.NewInt(38095238095), 8))
	assert.Equal(t, "0", FormatUnits(nil, 8))
}

func testExceedsWithMargin(t *testing.T) {
	assert.False(t, ExceedsWithMargin(big.NewInt(10), big.NewInt(10), big.NewInt(0)))
	assert.True(t, ExceedsWithMargin(big.NewInt(11), big.NewInt(10), big.NewInt(0)))
	assert.False(t, ExceedsWithMargin(big.NewInt(15), big.NewInt(10), big.NewInt(5)))
	assert.True(t, ExceedsWithMargin(big.NewInt(16), big.NewInt(10), big.NewInt(5)))
	assert.False(t, ExceedsWithMargin(nil, nil, nil))
}
