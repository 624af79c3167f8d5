// Package amount provides the fixed-point integer type used for every
// monetary value in the engine. An Amount is an arbitrary-precision integer
// tagged with the number of decimals it is expressed in — raw token amounts
// carry their token's decimals, USD prices carry 6, and USD valuations
// carry 24 (an 18-decimal amount multiplied by a 6-decimal price).
//
// All arithmetic is big.Int — never float64 for money. Conversion to
// display strings happens only at the presentation boundary via Display.
package amount

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimal bases used throughout the engine.
const (
	// WadDecimals is the common base raw token amounts are rescaled to
	// before valuation.
	WadDecimals int32 = 18

	// PriceDecimals is the base of USD price-feed values.
	PriceDecimals int32 = 6

	// UsdDecimals is the base of derived USD valuations:
	// an 18-decimal amount multiplied by a 6-decimal price.
	UsdDecimals int32 = WadDecimals + PriceDecimals
)

// ErrInvalidAmount is returned when a string cannot be parsed as a
// non-negative integer amount.
var ErrInvalidAmount = errors.New("amount: invalid integer amount")

// Amount is a fixed-point monetary value: an integer count of the smallest
// unit, tagged with the decimal base it is expressed in. The zero value is
// a valid zero amount with 0 decimals.
type Amount struct {
	value    *big.Int
	decimals int32
}

// New creates an Amount from a big.Int. The value is copied; nil is
// treated as zero.
func New(value *big.Int, decimals int32) Amount {
	v := new(big.Int)
	if value != nil {
		v.Set(value)
	}
	return Amount{value: v, decimals: decimals}
}

// Zero returns a zero amount in the given decimal base.
func Zero(decimals int32) Amount {
	return Amount{value: new(big.Int), decimals: decimals}
}

// Parse parses a base-10 integer string into an Amount.
func Parse(s string, decimals int32) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Zero(decimals), fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount{value: v, decimals: decimals}, nil
}

// ParseOrZero parses a base-10 integer string, degrading to zero on any
// malformed or empty input. Fragment fields pass through here so that
// missing or garbled data never aborts normalization.
func ParseOrZero(s string, decimals int32) Amount {
	if s == "" {
		return Zero(decimals)
	}
	a, err := Parse(s, decimals)
	if err != nil {
		return Zero(decimals)
	}
	return a
}

// Value returns a copy of the underlying integer.
func (a Amount) Value() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.value)
}

// Decimals returns the decimal base this amount is expressed in.
func (a Amount) Decimals() int32 { return a.decimals }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.value == nil || a.value.Sign() == 0 }

// Sign returns -1, 0, or +1 depending on the sign of the amount.
func (a Amount) Sign() int {
	if a.value == nil {
		return 0
	}
	return a.value.Sign()
}

// Rescale converts the amount to a different decimal base. Scaling up is
// exact; scaling down truncates toward zero.
func (a Amount) Rescale(decimals int32) Amount {
	if a.value == nil {
		return Zero(decimals)
	}
	diff := decimals - a.decimals
	if diff == 0 {
		return New(a.value, decimals)
	}
	v := new(big.Int).Set(a.value)
	if diff > 0 {
		v.Mul(v, pow10(diff))
	} else {
		v.Quo(v, pow10(-diff))
	}
	return Amount{value: v, decimals: decimals}
}

// Add returns a + b. Operands in different bases are rescaled to the
// larger base first so no precision is lost.
func (a Amount) Add(b Amount) Amount {
	x, y := align(a, b)
	return Amount{value: new(big.Int).Add(x.value, y.value), decimals: x.decimals}
}

// Sub returns a - b, aligned the same way as Add.
func (a Amount) Sub(b Amount) Amount {
	x, y := align(a, b)
	return Amount{value: new(big.Int).Sub(x.value, y.value), decimals: x.decimals}
}

// Cmp compares a and b after aligning bases: -1 if a < b, 0 if equal,
// +1 if a > b.
func (a Amount) Cmp(b Amount) int {
	x, y := align(a, b)
	return x.value.Cmp(y.value)
}

// MulPrice multiplies a raw amount by a price. The result's base is the
// sum of both bases, so an 18-decimal amount times a 6-decimal price
// yields a 24-decimal USD valuation with no precision loss.
func (a Amount) MulPrice(price Amount) Amount {
	if a.value == nil || price.value == nil {
		return Zero(a.decimals + price.decimals)
	}
	return Amount{
		value:    new(big.Int).Mul(a.value, price.value),
		decimals: a.decimals + price.decimals,
	}
}

// Ratio returns a / b as an exact decimal ratio of the two amounts
// interpreted in their own bases. Returns decimal zero when b is zero.
func (a Amount) Ratio(b Amount) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	da := decimal.NewFromBigInt(a.Value(), -a.decimals)
	db := decimal.NewFromBigInt(b.Value(), -b.decimals)
	return da.Div(db)
}

// String returns the raw integer representation (the wei-equivalent).
func (a Amount) String() string {
	if a.value == nil {
		return "0"
	}
	return a.value.String()
}

// Display normalizes the amount to a human-readable decimal string with
// the given number of fraction digits. Presentation boundary only.
func (a Amount) Display(places int32) string {
	return decimal.NewFromBigInt(a.Value(), -a.decimals).StringFixed(places)
}

// Decimal returns the amount as a shopspring decimal in its own base.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.Value(), -a.decimals)
}

// MarshalJSON encodes the amount as its raw integer string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes a raw integer string, quoted or bare. The wire
// format does not carry a decimal base; the decoded amount is tagged with
// 0 decimals and callers that need a base must Rescale explicitly.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*a = Zero(0)
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	*a = Amount{value: v}
	return nil
}

// align rescales both operands to the larger of the two bases.
func align(a, b Amount) (Amount, Amount) {
	if a.value == nil {
		a = Zero(a.decimals)
	}
	if b.value == nil {
		b = Zero(b.decimals)
	}
	switch {
	case a.decimals == b.decimals:
		return a, b
	case a.decimals > b.decimals:
		return a, b.Rescale(a.decimals)
	default:
		return a.Rescale(b.decimals), b
	}
}

// pow10 returns 10^n for n >= 0.
func pow10(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
