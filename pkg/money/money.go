// Package money implements the engine's fixed-point value domain: Price and
// Quantity are integer scalars at a fixed 8-decimal scale, and Value is
// their wide (128-bit-range) product. All arithmetic is exact; the only
// rounding is the explicit RoundToTick/RoundToLot operations. Float
// conversions exist only at ingress/egress boundaries and are lossy.
package money

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Decimals is the number of implied fractional digits carried by every
// Price and Quantity raw integer.
const Decimals = 8

// Scale is 10^Decimals; raw == scaled_value * Scale.
const Scale int64 = 100_000_000

// Price is an integer-backed price at Scale. The zero value is 0.00000000.
type Price int64

// Quantity is an integer-backed quantity at Scale.
type Quantity int64

// PriceFromInt builds a Price from a whole-number integer, e.g.
// PriceFromInt(50000) == 50000.00000000.
func PriceFromInt(n int64) Price { return Price(n * Scale) }

// PriceFromRaw wraps an already-scaled raw integer.
func PriceFromRaw(raw int64) Price { return Price(raw) }

// Raw returns the underlying scaled integer.
func (p Price) Raw() int64 { return int64(p) }

// IsZero reports whether p is exactly zero.
func (p Price) IsZero() bool { return p == 0 }

func (p Price) Add(o Price) Price { return p + o }
func (p Price) Sub(o Price) Price { return p - o }

// SaturatingSub returns p-o clamped at zero; prices never go negative.
func (p Price) SaturatingSub(o Price) Price {
	if o >= p {
		return 0
	}
	return p - o
}

func (p Price) Abs() Price {
	if p < 0 {
		return -p
	}
	return p
}

// MulInt scales a price by an integer multiplier (not by a Quantity — use
// MulQty for a Price x Quantity product, which must widen to Value).
func (p Price) MulInt(n int64) Price { return Price(int64(p) * n) }

func (p Price) DivInt(n int64) Price { return Price(int64(p) / n) }

// RoundToTick rounds p down to the nearest multiple of tick (tick must be
// a positive raw increment). Prices never round up implicitly.
func (p Price) RoundToTick(tick Price) Price {
	if tick <= 0 {
		return p
	}
	return Price(int64(p) / int64(tick) * int64(tick))
}

// String renders the price as a fixed 8-digit decimal, e.g. "50000.00000000".
func (p Price) String() string { return formatFixed(int64(p)) }

// ParsePrice parses a decimal string losslessly for up to 8 fractional
// digits; additional digits beyond the 8th are truncated, not rounded.
func ParsePrice(s string) (Price, error) {
	raw, err := parseFixed(s)
	if err != nil {
		return 0, err
	}
	return Price(raw), nil
}

// ToFloat64 is a lossy boundary conversion; never used internally for
// comparisons or arithmetic.
func (p Price) ToFloat64() float64 { return float64(p) / float64(Scale) }

// PriceFromFloat64 is a lossy boundary conversion.
func PriceFromFloat64(f float64) Price { return Price(f * float64(Scale)) }

func QuantityFromInt(n int64) Quantity  { return Quantity(n * Scale) }
func QuantityFromRaw(raw int64) Quantity { return Quantity(raw) }
func (q Quantity) Raw() int64           { return int64(q) }
func (q Quantity) IsZero() bool         { return q == 0 }
func (q Quantity) Add(o Quantity) Quantity { return q + o }
func (q Quantity) Sub(o Quantity) Quantity { return q - o }

func (q Quantity) SaturatingSub(o Quantity) Quantity {
	if o >= q {
		return 0
	}
	return q - o
}

func (q Quantity) RoundToLot(lot Quantity) Quantity {
	if lot <= 0 {
		return q
	}
	return Quantity(int64(q) / int64(lot) * int64(lot))
}

// MulDivQty computes floor(q * mul / div) exactly, widening the q*mul
// product through the same 128-bit math/bits path MulQty uses for a
// Price*Quantity product, so a pro-rata allocation ratio cannot silently
// overflow the way a plain int64 multiply would for large resting/
// aggressor quantities. div must be positive.
func (q Quantity) MulDivQty(mul, div Quantity) Quantity {
	hi, lo := bits.Mul64(uint64(q), uint64(mul))
	quo, _ := bits.Div64(hi, lo, uint64(div))
	return Quantity(quo)
}

func (q Quantity) String() string { return formatFixed(int64(q)) }

func ParseQuantity(s string) (Quantity, error) {
	raw, err := parseFixed(s)
	if err != nil {
		return 0, err
	}
	return Quantity(raw), nil
}

func (q Quantity) ToFloat64() float64     { return float64(q) / float64(Scale) }
func QuantityFromFloat64(f float64) Quantity { return Quantity(f * float64(Scale)) }

// Value is the wide product of a Price and a Quantity (or two Values),
// carried at the same Scale. Go has no native 128-bit integer, so Value is
// a sign plus a 128-bit magnitude split across two uint64 halves, built on
// math/bits widening primitives rather than a decimal library, so no
// rounding or scale metadata is smuggled into the representation.
type Value struct {
	neg    bool
	hi, lo uint64
}

// ZeroValue is the additive identity.
var ZeroValue = Value{}

// MulQty computes the exact product price * qty at Scale, widening through
// a 128-bit intermediate so it cannot overflow for any price/quantity pair
// bounded by realistic session maxima (documented unreachable per the
// value-domain contract: both operands fit in int64 and their unscaled
// product fits in 128 bits with Decimals*2 headroom).
func (p Price) MulQty(q Quantity) Value {
	pn, pneg := abs64(int64(p))
	qn, qneg := abs64(int64(q))
	hi, lo := bits.Mul64(pn, qn)
	// Undo the double scale factor introduced by multiplying two
	// Scale-scaled integers: divide the 128-bit product by Scale.
	hi, lo = div128BySmall(hi, lo, uint64(Scale))
	return Value{neg: pneg != qneg, hi: hi, lo: lo}
}

func abs64(n int64) (uint64, bool) {
	if n < 0 {
		return uint64(-n), true
	}
	return uint64(n), false
}

// div128BySmall divides the 128-bit value (hi:lo) by a small divisor d
// (d must fit comfortably in 64 bits, which Scale does), discarding the
// remainder. Used only to undo the double scaling from a raw*raw product.
func div128BySmall(hi, lo, d uint64) (uint64, uint64) {
	q1, r1 := bits.Div64(0, hi, d)
	q0, _ := bits.Div64(r1, lo, d)
	return q1, q0
}

func (v Value) Add(o Value) Value {
	if v.neg == o.neg {
		lo, carry := bits.Add64(v.lo, o.lo, 0)
		hi, _ := bits.Add64(v.hi, o.hi, carry)
		return Value{neg: v.neg, hi: hi, lo: lo}
	}
	// Differing signs: subtract the smaller magnitude from the larger.
	if cmpMag(v.hi, v.lo, o.hi, o.lo) >= 0 {
		lo, borrow := bits.Sub64(v.lo, o.lo, 0)
		hi, _ := bits.Sub64(v.hi, o.hi, borrow)
		return Value{neg: v.neg, hi: hi, lo: lo}
	}
	lo, borrow := bits.Sub64(o.lo, v.lo, 0)
	hi, _ := bits.Sub64(o.hi, v.hi, borrow)
	return Value{neg: o.neg, hi: hi, lo: lo}
}

func (v Value) Sub(o Value) Value { return v.Add(o.Neg()) }

func (v Value) Neg() Value {
	if v.hi == 0 && v.lo == 0 {
		return v
	}
	return Value{neg: !v.neg, hi: v.hi, lo: v.lo}
}

func cmpMag(hi1, lo1, hi2, lo2 uint64) int {
	if hi1 != hi2 {
		if hi1 < hi2 {
			return -1
		}
		return 1
	}
	if lo1 != lo2 {
		if lo1 < lo2 {
			return -1
		}
		return 1
	}
	return 0
}

func (v Value) Cmp(o Value) int {
	if v.neg != o.neg {
		if v.IsZero() && o.IsZero() {
			return 0
		}
		if v.neg {
			return -1
		}
		return 1
	}
	c := cmpMag(v.hi, v.lo, o.hi, o.lo)
	if v.neg {
		return -c
	}
	return c
}

func (v Value) IsZero() bool { return v.hi == 0 && v.lo == 0 }

// Int64 returns the value truncated to an int64, valid only when the
// caller knows the magnitude fits — used at settlement time where
// per-account fill values are bounded well under 2^63.
func (v Value) Int64() int64 {
	n := int64(v.lo)
	if v.neg {
		return -n
	}
	return n
}

func ValueFromRaw(raw int64) Value {
	n, neg := abs64(raw)
	return Value{neg: neg, lo: n}
}

func (v Value) String() string {
	s := formatFixed(v.Int64())
	return s
}

func formatFixed(raw int64) string {
	neg := raw < 0
	if neg {
		raw = -raw
	}
	whole := raw / Scale
	frac := raw % Scale
	s := fmt.Sprintf("%d.%08d", whole, frac)
	if neg {
		s = "-" + s
	}
	return s
}

func parseFixed(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty value")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid value %q: %w", s, err)
	}
	raw := whole * Scale
	if len(parts) == 2 {
		frac := parts[1]
		if len(frac) > Decimals {
			frac = frac[:Decimals] // truncate beyond 8 digits, never round
		}
		for len(frac) < Decimals {
			frac += "0"
		}
		fracVal, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("money: invalid fraction %q: %w", s, err)
		}
		raw += fracVal
	}
	if neg {
		raw = -raw
	}
	return raw, nil
}
