package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_ArithmeticReturnsNewValues(t *testing.T) {
	balance := MustMoney("1600.00")
	amount := MustMoney("600.99")

	after := balance.Minus(amount)

	assert.Equal(t, "999.01", after.String())
	assert.Equal(t, "1600.00", balance.String(), "receiver must not be mutated")
	assert.Equal(t, "2200.99", balance.Plus(amount).String())
}

func TestMoney_String(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1600", "1600.00"},
		{"0", "0.00"},
		{"-600", "-600.00"},
		{"12.5", "12.50"},
		{"12.243", "12.243"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, MustMoney(tc.in).String())
		})
	}
}

func TestMoney_Predicates(t *testing.T) {
	zero := MustMoney("0")
	one := MustMoney("1")
	neg := MustMoney("-0.01")

	assert.True(t, one.IsPositive())
	assert.False(t, zero.IsPositive())
	assert.True(t, zero.IsPositiveOrZero())
	assert.False(t, neg.IsPositiveOrZero())
	assert.True(t, neg.IsNegative())

	assert.True(t, one.IsGreaterThan(zero))
	assert.False(t, zero.IsGreaterThan(zero))
	assert.True(t, zero.IsGreaterThanOrEqual(zero))
	assert.True(t, MustMoney("10.00").Equal(MustMoney("10")))
}

func TestMoney_ScanValue(t *testing.T) {
	m := MustMoney("42.10")

	v, err := m.Value()
	require.NoError(t, err)

	var out Money
	require.NoError(t, out.Scan(v))
	assert.True(t, out.Decimal().Equal(decimal.RequireFromString("42.1")))

	require.Error(t, out.Scan(struct{}{}))
}

func TestParseMoney(t *testing.T) {
	m, err := ParseMoney("-600")
	require.NoError(t, err)
	assert.Equal(t, "-600.00", m.String())

	_, err = ParseMoney("12,50")
	require.Error(t, err)
}

func TestMoney_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Balance Money `json:"balance"`
	}{Balance: MustMoney("999.010")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":"999.010"}`, string(b))
}
