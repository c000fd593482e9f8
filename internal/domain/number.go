package domain

import (
	"github.com/shopspring/decimal"
)

// Number is a decimal amount that marshals as a bare JSON number.
type Number struct {
	decimal.Decimal
}

// NewNumber wraps d.
func NewNumber(d decimal.Decimal) Number {
	return Number{Decimal: d}
}

// NumberFromInt wraps an integer value.
func NumberFromInt(v int64) Number {
	return Number{Decimal: decimal.NewFromInt(v)}
}

// OrZero returns the value of n, or zero when it is NULL.
func OrZero(n decimal.NullDecimal) Number {
	if !n.Valid {
		return Number{Decimal: decimal.Zero}
	}
	return Number{Decimal: n.Decimal}
}

// MarshalJSON writes the shortest exact decimal representation.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

// UnmarshalJSON accepts both quoted and bare numbers.
func (n *Number) UnmarshalJSON(b []byte) error {
	return n.Decimal.UnmarshalJSON(b)
}

// Equal reports whether both numbers hold the same value.
func (n Number) Equal(o Number) bool {
	return n.Decimal.Equal(o.Decimal)
}
