package domain

import (
	"fmt"
	"time"
)

type AccountKind string

const (
	AccountKindChecking    AccountKind = "checking"
	AccountKindSaving      AccountKind = "saving"
	AccountKindMoneyMarket AccountKind = "money_market"
)

// BalanceRange is a closed interval a balance must stay within.
type BalanceRange struct {
	Min Money
	Max Money
}

func (r BalanceRange) Contains(m Money) bool {
	return m.IsGreaterThanOrEqual(r.Min) && r.Max.IsGreaterThanOrEqual(m)
}

var balanceRanges = map[AccountKind]BalanceRange{
	AccountKindChecking:    {Min: MustMoney("-600"), Max: MustMoney("100000")},
	AccountKindSaving:      {Min: MustMoney("1"), Max: MustMoney("22950")},
	AccountKindMoneyMarket: {Min: MustMoney("1000"), Max: MustMoney("250000")},
}

func (k AccountKind) IsValid() bool {
	_, ok := balanceRanges[k]
	return ok
}

func (k AccountKind) Range() (BalanceRange, bool) {
	r, ok := balanceRanges[k]
	return r, ok
}

type Account struct {
	ID                     int64       `json:"id"`
	Kind                   AccountKind `json:"accountKind"`
	Balance                Money       `json:"balance"`
	OwnerIDs               []int64     `json:"ownerIds"`
	IssuedTransactionIDs   []int64     `json:"issuedTransactionIds"`
	IncomingTransactionIDs []int64     `json:"incomingTransactionIds"`
	Version                int64       `json:"version"`
	CreatedAt              time.Time   `json:"createdAt"`
}

// NewAccount builds an account of the given kind. The result is not yet
// persisted and has no ID.
func NewAccount(kind AccountKind, balance Money, ownerIDs []int64) (*Account, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("NewAccount: %q: %w", kind, ErrUnknownAccountKind)
	}
	a := &Account{
		Kind:      kind,
		Balance:   balance,
		OwnerIDs:  append([]int64(nil), ownerIDs...),
		CreatedAt: time.Now().UTC(),
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("NewAccount: %w", err)
	}
	return a, nil
}

func (a *Account) Validate() error {
	r, ok := a.Kind.Range()
	if !ok {
		return fmt.Errorf("account %d: %q: %w", a.ID, a.Kind, ErrUnknownAccountKind)
	}
	if !r.Contains(a.Balance) {
		return fmt.Errorf("account %d: balance %s outside [%s, %s] for %s: %w",
			a.ID, a.Balance, r.Min, r.Max, a.Kind, ErrBalanceOutOfRange)
	}
	if len(a.OwnerIDs) == 0 {
		return fmt.Errorf("account %d: %w", a.ID, ErrNoOwners)
	}
	return nil
}

func (a *Account) Referenced() bool {
	return len(a.IssuedTransactionIDs) > 0 || len(a.IncomingTransactionIDs) > 0
}

func (a *Account) Clone() *Account {
	c := *a
	c.OwnerIDs = append([]int64(nil), a.OwnerIDs...)
	c.IssuedTransactionIDs = append([]int64(nil), a.IssuedTransactionIDs...)
	c.IncomingTransactionIDs = append([]int64(nil), a.IncomingTransactionIDs...)
	return &c
}
