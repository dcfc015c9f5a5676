package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, emitter_account_id, receiver_account_id, amount, currency,
	category, status, date, label, metadata`

type transactionRow struct {
	ID                int64                    `db:"id"`
	EmitterAccountID  *int64                   `db:"emitter_account_id"`
	ReceiverAccountID *int64                   `db:"receiver_account_id"`
	Amount            *decimal.Decimal         `db:"amount"`
	Currency          string                   `db:"currency"`
	Category          domain.Category          `db:"category"`
	Status            domain.TransactionStatus `db:"status"`
	Date              *time.Time               `db:"date"`
	Label             string                   `db:"label"`
	Metadata          domain.Metadata          `db:"metadata"`
}

func (r transactionRow) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:                r.ID,
		EmitterAccountID:  r.EmitterAccountID,
		ReceiverAccountID: r.ReceiverAccountID,
		Amount:            r.Amount,
		Currency:          r.Currency,
		Category:          r.Category,
		Status:            r.Status,
		Date:              r.Date,
		Label:             r.Label,
		Metadata:          r.Metadata,
	}
}

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	var row transactionRow
	err := sqlx.GetContext(ctx, r.db.ext(ctx), &row,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("FindByID: transaction %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("FindByID: %w", err)
	}
	return row.toDomain(), nil
}

// Create inserts tx and assigns the generated id to it.
func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	err := r.db.ext(ctx).QueryRowxContext(ctx,
		`INSERT INTO transactions (
			emitter_account_id, receiver_account_id, amount, currency,
			category, status, date, label, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		tx.EmitterAccountID, tx.ReceiverAccountID, tx.Amount, tx.Currency,
		tx.Category, tx.Status, tx.Date, tx.Label, tx.Metadata,
	).Scan(&tx.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Update overwrites a stored transaction. Rows already in a terminal status
// are left untouched and reported as ErrStateConflict.
func (r *TransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	res, err := r.db.ext(ctx).ExecContext(ctx,
		`UPDATE transactions SET
			emitter_account_id = $1, receiver_account_id = $2, amount = $3, currency = $4,
			category = $5, status = $6, date = $7, label = $8, metadata = $9, updated_at = now()
		WHERE id = $10 AND status NOT IN ('COMPLETED', 'REFUSED', 'ERROR')`,
		tx.EmitterAccountID, tx.ReceiverAccountID, tx.Amount, tx.Currency,
		tx.Category, tx.Status, tx.Date, tx.Label, tx.Metadata,
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return r.checkClaimed(ctx, "Update", res, tx.ID)
}

// MarkOutstanding moves an UNPROCESSED row to OUTSTANDING. Exactly one caller
// can win this for a given row.
func (r *TransactionRepository) MarkOutstanding(ctx context.Context, id int64) error {
	res, err := r.db.ext(ctx).ExecContext(ctx,
		`UPDATE transactions SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		domain.StatusOutstanding, id, domain.StatusUnprocessed,
	)
	if err != nil {
		return fmt.Errorf("MarkOutstanding: %w", err)
	}
	return r.checkClaimed(ctx, "MarkOutstanding", res, id)
}

// FindUnprocessed returns every UNPROCESSED transaction, oldest date first.
func (r *TransactionRepository) FindUnprocessed(ctx context.Context) ([]*domain.Transaction, error) {
	var rows []transactionRow
	err := sqlx.SelectContext(ctx, r.db.ext(ctx), &rows,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE status = $1 ORDER BY date NULLS LAST, id`,
		domain.StatusUnprocessed,
	)
	if err != nil {
		return nil, fmt.Errorf("FindUnprocessed: %w", err)
	}

	out := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *TransactionRepository) checkClaimed(ctx context.Context, op string, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: transaction %d: %w", op, id, domain.ErrStateConflict)
}
