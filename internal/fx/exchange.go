package fx

import (
	"fmt"
	"sort"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/shopspring/decimal"
)

// BaseCurrency is the settlement currency every balance is held in.
const BaseCurrency = "EUR"

// Exchange converts amounts to the base currency using a fixed rate table.
type Exchange struct {
	rates map[string]decimal.Decimal
}

func NewExchange() *Exchange {
	return &Exchange{
		rates: map[string]decimal.Decimal{
			BaseCurrency: decimal.NewFromInt(1),
			"USD":        decimal.RequireFromString("0.92"),
			"GBP":        decimal.RequireFromString("1.166"),
			"CHF":        decimal.RequireFromString("1.04"),
			"CAD":        decimal.RequireFromString("0.68"),
			"JPY":        decimal.RequireFromString("0.0062"),
		},
	}
}

// NewExchangeWithRates is used where a different table is needed. The base
// currency is always present at rate 1.
func NewExchangeWithRates(rates map[string]decimal.Decimal) *Exchange {
	table := make(map[string]decimal.Decimal, len(rates)+1)
	for c, r := range rates {
		table[c] = r
	}
	table[BaseCurrency] = decimal.NewFromInt(1)
	return &Exchange{rates: table}
}

func (e *Exchange) HasCurrency(currency string) bool {
	_, ok := e.rates[currency]
	return ok
}

func (e *Exchange) Currencies() []string {
	out := make([]string, 0, len(e.rates))
	for c := range e.rates {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (e *Exchange) ToBaseCurrency(currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	if currency == "" {
		return decimal.Zero, fmt.Errorf("ToBaseCurrency: currency is null: %w", domain.ErrInvalidCurrency)
	}
	if currency == BaseCurrency {
		return amount, nil
	}

	rate, ok := e.rates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("ToBaseCurrency: unsupported currency %s: %w", currency, domain.ErrInvalidCurrency)
	}
	return amount.Mul(rate), nil
}
