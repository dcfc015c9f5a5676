package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an immutable decimal amount. Arithmetic returns a new value.
type Money struct {
	amount decimal.Decimal
}

func NewMoney(amount decimal.Decimal) Money {
	return Money{amount: amount}
}

func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("ParseMoney: %w", err)
	}
	return Money{amount: d}, nil
}

// MustMoney parses s and panics on malformed input. Intended for fixtures.
func MustMoney(s string) Money {
	return Money{amount: decimal.RequireFromString(s)}
}

func (m Money) Decimal() decimal.Decimal { return m.amount }

func (m Money) Plus(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

func (m Money) Minus(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

func (m Money) IsPositive() bool       { return m.amount.IsPositive() }
func (m Money) IsPositiveOrZero() bool { return !m.amount.IsNegative() }
func (m Money) IsNegative() bool       { return m.amount.IsNegative() }

func (m Money) IsGreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

func (m Money) IsGreaterThanOrEqual(other Money) bool {
	return m.amount.GreaterThanOrEqual(other.amount)
}

func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

// String renders at least two fraction digits, more when the value carries them.
func (m Money) String() string {
	places := int32(2)
	if e := -m.amount.Exponent(); e > places {
		places = e
	}
	return m.amount.StringFixed(places)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m Money) Value() (driver.Value, error) {
	return m.amount.Value()
}

func (m *Money) Scan(src any) error {
	if err := m.amount.Scan(src); err != nil {
		return fmt.Errorf("Money.Scan: %w", err)
	}
	return nil
}
