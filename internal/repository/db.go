package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// DB hands out the connection a repository call should use: the *sqlx.Tx
// carried by ctx when inside WithinTx, the pool otherwise.
type DB struct {
	pool *sqlx.DB
}

func NewDB(pool *sqlx.DB) *DB {
	return &DB{pool: pool}
}

func (d *DB) Conn() *sqlx.DB {
	return d.pool
}

func (d *DB) PingContext(ctx context.Context) error {
	return d.pool.PingContext(ctx)
}

// WithinTx runs fn in a single database transaction. Repository calls made
// with the ctx passed to fn join that transaction. Nested calls reuse the
// outer transaction.
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := d.pool.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("WithinTx: begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("WithinTx: rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("WithinTx: commit: %w", err)
	}
	return nil
}

func (d *DB) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return d.pool
}
