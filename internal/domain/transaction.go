package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusUnprocessed TransactionStatus = "UNPROCESSED"
	StatusOutstanding TransactionStatus = "OUTSTANDING"
	StatusWaiting     TransactionStatus = "WAITING"
	StatusCompleted   TransactionStatus = "COMPLETED"
	StatusRefused     TransactionStatus = "REFUSED"
	StatusError       TransactionStatus = "ERROR"
)

var statuses = []TransactionStatus{
	StatusUnprocessed, StatusOutstanding, StatusWaiting,
	StatusCompleted, StatusRefused, StatusError,
}

// ParseStatus matches s against the known statuses ignoring case.
func ParseStatus(s string) (TransactionStatus, error) {
	for _, st := range statuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidStatus, s)
}

func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRefused || s == StatusError
}

func (s TransactionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *TransactionStatus) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("TransactionStatus.Scan: unsupported type %T", src)
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

type CategoryGroup string

const (
	Digital CategoryGroup = "digital"
	Cash    CategoryGroup = "cash"
)

type Category string

const (
	CategoryCredit   Category = "credit"
	CategoryDebit    Category = "debit"
	CategoryDeposit  Category = "deposit"
	CategoryWithdraw Category = "withdraw"
)

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(s))
	if c.Group() == "" {
		return "", fmt.Errorf("ParseCategory: %q: %w", s, ErrUnknownCategory)
	}
	return c, nil
}

func (c Category) Group() CategoryGroup {
	switch c {
	case CategoryCredit, CategoryDebit:
		return Digital
	case CategoryDeposit, CategoryWithdraw:
		return Cash
	default:
		return ""
	}
}

func (c Category) Title() string {
	if c == "" {
		return "Unknown"
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// IdPair keys the consumer queues. It is never persisted.
type IdPair struct {
	EmitterAccountID  int64
	ReceiverAccountID int64
}

func (p IdPair) String() string {
	return fmt.Sprintf("%d->%d", p.EmitterAccountID, p.ReceiverAccountID)
}

const (
	MetaEmitterBefore  = "emitter_amount_before"
	MetaEmitterAfter   = "emitter_amount_after"
	MetaReceiverBefore = "receiver_amount_before"
	MetaReceiverAfter  = "receiver_amount_after"
	MetaError          = "error"
	MetaBill           = "bill"
)

type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("Metadata.Scan: type assertion to []byte failed")
	}
	out := Metadata{}
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("Metadata.Scan: %w", err)
	}
	*m = out
	return nil
}

type Transaction struct {
	ID                int64             `json:"id"`
	EmitterAccountID  *int64            `json:"emitterAccountId"`
	ReceiverAccountID *int64            `json:"receiverAccountId"`
	Amount            *decimal.Decimal  `json:"amount"`
	Currency          string            `json:"currency"`
	Category          Category          `json:"type"`
	Status            TransactionStatus `json:"status"`
	Date              *time.Time        `json:"date"`
	Label             string            `json:"label"`
	Metadata          Metadata          `json:"metadata"`
}

// Pair returns the queueing key. Missing ids map to zero.
func (t *Transaction) Pair() IdPair {
	var p IdPair
	if t.EmitterAccountID != nil {
		p.EmitterAccountID = *t.EmitterAccountID
	}
	if t.ReceiverAccountID != nil {
		p.ReceiverAccountID = *t.ReceiverAccountID
	}
	return p
}

// Accounts lists the distinct account ids the transaction touches.
func (t *Transaction) Accounts() []int64 {
	p := t.Pair()
	ids := make([]int64, 0, 2)
	if p.EmitterAccountID != 0 {
		ids = append(ids, p.EmitterAccountID)
	}
	if p.ReceiverAccountID != 0 && p.ReceiverAccountID != p.EmitterAccountID {
		ids = append(ids, p.ReceiverAccountID)
	}
	return ids
}

// Before orders transactions by date, oldest first. Undated transactions sort
// last; ties fall back to the id.
func (t *Transaction) Before(o *Transaction) bool {
	switch {
	case t.Date == nil && o.Date == nil:
		return t.ID < o.ID
	case t.Date == nil:
		return false
	case o.Date == nil:
		return true
	case t.Date.Equal(*o.Date):
		return t.ID < o.ID
	default:
		return t.Date.Before(*o.Date)
	}
}

// SameAs compares identity fields only. Status and metadata are ignored so a
// status transition does not change which transaction this is.
func (t *Transaction) SameAs(o *Transaction) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.ID == o.ID &&
		eqPtr(t.EmitterAccountID, o.EmitterAccountID) &&
		eqPtr(t.ReceiverAccountID, o.ReceiverAccountID) &&
		eqDecimal(t.Amount, o.Amount) &&
		t.Currency == o.Currency &&
		t.Category == o.Category &&
		eqTime(t.Date, o.Date) &&
		t.Label == o.Label
}

func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.EmitterAccountID != nil {
		v := *t.EmitterAccountID
		c.EmitterAccountID = &v
	}
	if t.ReceiverAccountID != nil {
		v := *t.ReceiverAccountID
		c.ReceiverAccountID = &v
	}
	if t.Amount != nil {
		v := *t.Amount
		c.Amount = &v
	}
	if t.Date != nil {
		v := *t.Date
		c.Date = &v
	}
	if t.Metadata != nil {
		c.Metadata = maps.Clone(t.Metadata)
	}
	return &c
}

func eqPtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqDecimal(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func eqTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
