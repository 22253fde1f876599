// Package types defines the core data model shared across the arbitrage
// execution core: assets, prices, order book levels, opportunities, legs,
// execution plans and trade state. All monetary arithmetic is performed in
// github.com/shopspring/decimal; binary floats are reserved for non-monetary
// metrics (latencies, quality fractions).
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of fractional digits carried by a Price (spec §3:
// "price: 4 fractional digits").
const PriceScale = 4

// SizeScale is the number of fractional digits carried by a Size/Quantity.
// Contracts are integer counts, so the scale is 0.
const SizeScale = 0

// MinPrice and MaxPrice bound valid prices per spec §3: "[0.0000, 1.0000]".
var (
	MinPrice = decimal.Zero
	MaxPrice = decimal.NewFromInt(1)
)

// Price is a fixed-scale decimal in [0, 1] representing a prediction-market
// contract price.
type Price struct {
	d decimal.Decimal
}

// NewPrice constructs a Price from a decimal string, rounding to PriceScale.
func NewPrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("parse price %q: %w", s, err)
	}
	return NewPriceFromDecimal(d), nil
}

// NewPriceFromDecimal wraps a decimal.Decimal as a Price, rounding to scale.
func NewPriceFromDecimal(d decimal.Decimal) Price {
	return Price{d: d.Round(PriceScale)}
}

// MustPrice parses s into a Price and panics on error. For use in tests and
// literal construction sites where the value is a compile-time constant.
func MustPrice(s string) Price {
	p, err := NewPrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Decimal returns the underlying decimal value.
func (p Price) Decimal() decimal.Decimal { return p.d }

// Valid reports whether the price lies in [MinPrice, MaxPrice].
func (p Price) Valid() bool {
	return p.d.GreaterThanOrEqual(MinPrice) && p.d.LessThanOrEqual(MaxPrice)
}

func (p Price) Add(o Price) Price           { return NewPriceFromDecimal(p.d.Add(o.d)) }
func (p Price) Sub(o Price) Price           { return NewPriceFromDecimal(p.d.Sub(o.d)) }
func (p Price) Mul(d decimal.Decimal) decimal.Decimal { return p.d.Mul(d) }
func (p Price) GreaterThan(o Price) bool    { return p.d.GreaterThan(o.d) }
func (p Price) LessThan(o Price) bool       { return p.d.LessThan(o.d) }
func (p Price) Equal(o Price) bool          { return p.d.Equal(o.d) }
func (p Price) IsZero() bool                { return p.d.IsZero() }
func (p Price) String() string              { return p.d.StringFixed(PriceScale) }
func (p Price) Float64() float64            { f, _ := p.d.Float64(); return f }

// Size is a non-negative integer contract count.
type Size struct {
	d decimal.Decimal
}

// NewSize constructs a Size from an int64 contract count.
func NewSize(n int64) Size {
	return Size{d: decimal.NewFromInt(n)}
}

// NewSizeFromDecimal truncates d to an integer Size.
func NewSizeFromDecimal(d decimal.Decimal) Size {
	return Size{d: d.Truncate(SizeScale)}
}

func (s Size) Decimal() decimal.Decimal { return s.d }
func (s Size) Int64() int64             { return s.d.IntPart() }
func (s Size) IsZero() bool             { return s.d.IsZero() }
func (s Size) IsPositive() bool         { return s.d.IsPositive() }
func (s Size) Add(o Size) Size          { return Size{d: s.d.Add(o.d)} }
func (s Size) Sub(o Size) Size          { return Size{d: s.d.Sub(o.d)} }
func (s Size) GreaterThan(o Size) bool  { return s.d.GreaterThan(o.d) }
func (s Size) LessThan(o Size) bool     { return s.d.LessThan(o.d) }
func (s Size) Equal(o Size) bool        { return s.d.Equal(o.d) }
func (s Size) Min(o Size) Size {
	if s.d.LessThan(o.d) {
		return s
	}
	return o
}
func (s Size) String() string { return s.d.String() }

// Cost returns price * size as an arbitrary-precision decimal (not rounded
// to PriceScale — callers round only at the point they present a total).
func Cost(p Price, s Size) decimal.Decimal {
	return p.d.Mul(s.d)
}
