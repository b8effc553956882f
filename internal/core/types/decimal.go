// Package types holds the money representation shared by prices, costs and ledgers.
package types

import (
	"github.com/shopspring/decimal"
)

// Money is an exact decimal amount. Amounts are stored with MoneyPlaces digits.
type Money = decimal.Decimal

// NullMoney is an optional amount (NULL in storage).
type NullMoney = decimal.NullDecimal

// MoneyPlaces is the number of fractional digits kept for stored amounts.
const MoneyPlaces = 2

// MustMoney parses s and panics on error. Use only for constants and tests.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Round rounds half away from zero to MoneyPlaces.
func Round(m Money) Money {
	return m.Round(MoneyPlaces)
}

// SomeMoney wraps a value as a present NullMoney.
func SomeMoney(m Money) NullMoney {
	return decimal.NewNullDecimal(m)
}

// OptionalMoney converts an optional request field.
func OptionalMoney(p *Money) NullMoney {
	if p == nil {
		return NullMoney{}
	}
	return SomeMoney(*p)
}

// HasAmount reports whether n is present and non-zero.
func HasAmount(n NullMoney) bool {
	return n.Valid && !n.Decimal.IsZero()
}

// MulInt multiplies a money value by an integer quantity.
func MulInt(m Money, qty int) Money {
	return m.Mul(decimal.NewFromInt(int64(qty)))
}

// DivInt divides m by a non-zero quantity without rounding.
func DivInt(m Money, qty int) Money {
	return m.Div(decimal.NewFromInt(int64(qty)))
}
