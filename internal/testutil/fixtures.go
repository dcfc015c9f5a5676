package testutil

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func Int64(v int64) *int64 { return &v }

func Decimal(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func Time(t time.Time) *time.Time { return &t }

// Credit builds an unprocessed credit moving amount EUR from emitter to receiver.
func Credit(emitter, receiver int64, amount string, date time.Time) *domain.Transaction {
	return &domain.Transaction{
		EmitterAccountID:  Int64(emitter),
		ReceiverAccountID: Int64(receiver),
		Amount:            Decimal(amount),
		Currency:          "EUR",
		Category:          domain.CategoryCredit,
		Status:            domain.StatusUnprocessed,
		Date:              Time(date),
		Label:             "credit",
		Metadata:          domain.Metadata{},
	}
}

func Debit(emitter, receiver int64, amount string, date time.Time) *domain.Transaction {
	tx := Credit(emitter, receiver, amount, date)
	tx.Category = domain.CategoryDebit
	tx.Label = "debit"
	return tx
}

// Deposit builds an unprocessed cash deposit of amount EUR into account.
func Deposit(account int64, amount string, date time.Time) *domain.Transaction {
	return &domain.Transaction{
		EmitterAccountID: Int64(account),
		Amount:           Decimal(amount),
		Currency:         "EUR",
		Category:         domain.CategoryDeposit,
		Status:           domain.StatusUnprocessed,
		Date:             Time(date),
		Label:            "deposit",
		Metadata:         domain.Metadata{domain.MetaBill: "1x" + amount},
	}
}

func Withdraw(account int64, amount string, date time.Time) *domain.Transaction {
	tx := Deposit(account, amount, date)
	tx.Category = domain.CategoryWithdraw
	tx.Label = "withdraw"
	return tx
}

func SeedAccount(t *testing.T, db *sqlx.DB, kind domain.AccountKind, balance string, owners ...int64) *domain.Account {
	t.Helper()

	if len(owners) == 0 {
		owners = []int64{1}
	}
	a := &domain.Account{
		Kind:      kind,
		Balance:   domain.MustMoney(balance),
		OwnerIDs:  owners,
		CreatedAt: time.Now().UTC(),
	}

	err := db.QueryRow(
		`INSERT INTO accounts (kind, balance, owner_ids, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		a.Kind, a.Balance, pq.Int64Array(a.OwnerIDs), a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		t.Fatalf("seed account %s/%s: %v", kind, balance, err)
	}
	return a
}

func SeedTransaction(t *testing.T, db *sqlx.DB, tx *domain.Transaction) *domain.Transaction {
	t.Helper()

	err := db.QueryRow(
		`INSERT INTO transactions (
			emitter_account_id, receiver_account_id, amount, currency,
			category, status, date, label, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		tx.EmitterAccountID, tx.ReceiverAccountID, tx.Amount, tx.Currency,
		tx.Category, tx.Status, tx.Date, tx.Label, tx.Metadata,
	).Scan(&tx.ID)
	if err != nil {
		t.Fatalf("seed transaction %s: %v", tx.Category, err)
	}
	return tx
}

func GetAccountBalance(t *testing.T, db *sqlx.DB, accountID int64) domain.Money {
	t.Helper()

	var balance domain.Money
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %d: %v", accountID, err)
	}
	return balance
}

func GetTransactionStatus(t *testing.T, db *sqlx.DB, txID int64) domain.TransactionStatus {
	t.Helper()

	var status domain.TransactionStatus
	err := db.QueryRow(`SELECT status FROM transactions WHERE id = $1`, txID).Scan(&status)
	if err != nil {
		t.Fatalf("get transaction status %d: %v", txID, err)
	}
	return status
}
