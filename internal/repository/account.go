package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/lib/pq"
)

const accountSelect = `SELECT a.id, a.kind, a.balance, a.owner_ids, a.version, a.created_at,
	ARRAY(SELECT t.id FROM transactions t WHERE t.emitter_account_id = a.id ORDER BY t.id) AS issued_ids,
	ARRAY(SELECT t.id FROM transactions t WHERE t.receiver_account_id = a.id ORDER BY t.id) AS incoming_ids
	FROM accounts a`

type accountRow struct {
	ID          int64              `db:"id"`
	Kind        domain.AccountKind `db:"kind"`
	Balance     domain.Money       `db:"balance"`
	OwnerIDs    pq.Int64Array      `db:"owner_ids"`
	Version     int64              `db:"version"`
	CreatedAt   time.Time          `db:"created_at"`
	IssuedIDs   pq.Int64Array      `db:"issued_ids"`
	IncomingIDs pq.Int64Array      `db:"incoming_ids"`
}

func (r accountRow) toDomain() *domain.Account {
	return &domain.Account{
		ID:                     r.ID,
		Kind:                   r.Kind,
		Balance:                r.Balance,
		OwnerIDs:               []int64(r.OwnerIDs),
		IssuedTransactionIDs:   []int64(r.IssuedIDs),
		IncomingTransactionIDs: []int64(r.IncomingIDs),
		Version:                r.Version,
		CreatedAt:              r.CreatedAt,
	}
}

type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	var row accountRow
	err := sqlx.GetContext(ctx, r.db.ext(ctx), &row, accountSelect+` WHERE a.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("FindByID: account %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("FindByID: %w", err)
	}
	return row.toDomain(), nil
}

// FindByIDForUpdate is FindByID with the account row locked until the
// enclosing WithinTx ends. Outside WithinTx the lock is released at once.
func (r *AccountRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Account, error) {
	var row accountRow
	err := sqlx.GetContext(ctx, r.db.ext(ctx), &row, accountSelect+` WHERE a.id = $1 FOR UPDATE OF a`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("FindByIDForUpdate: account %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("FindByIDForUpdate: %w", err)
	}
	return row.toDomain(), nil
}

func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err := r.db.ext(ctx).QueryRowxContext(ctx,
		`INSERT INTO accounts (kind, balance, owner_ids, version, created_at)
		VALUES ($1, $2, $3, 0, $4)
		RETURNING id, version, created_at`,
		a.Kind, a.Balance, pq.Int64Array(a.OwnerIDs), createdAt,
	).Scan(&a.ID, &a.Version, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Save writes balance, kind and owners back, guarded by the version read with
// the account. On success a.Version is advanced.
func (r *AccountRepository) Save(ctx context.Context, a *domain.Account) error {
	res, err := r.db.ext(ctx).ExecContext(ctx,
		`UPDATE accounts SET kind = $1, balance = $2, owner_ids = $3, version = version + 1
		WHERE id = $4 AND version = $5`,
		a.Kind, a.Balance, pq.Int64Array(a.OwnerIDs), a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Save: rows affected: %w", err)
	}
	if rows == 0 {
		if _, findErr := r.FindByID(ctx, a.ID); errors.Is(findErr, domain.ErrNotFound) {
			return fmt.Errorf("Save: account %d: %w", a.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("Save: account %d: %w", a.ID, domain.ErrVersionConflict)
	}
	a.Version++
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ext(ctx).ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Delete: account %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
