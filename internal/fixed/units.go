package fixed

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseUnits reads a human decimal such as "0.8" or "1.5" and scales it by
// 10^decimals. Digits beyond decimals are rejected rather than rounded.
func ParseUnits(s string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("parse %q: negative amount", s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("parse %q: more than %d fractional digits", s, decimals)
	}
	return FromBig(scaled.BigInt())
}

// FormatUnits renders v divided by 10^decimals without trailing zeros.
func FormatUnits(v *uint256.Int, decimals uint8) string {
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).String()
}
