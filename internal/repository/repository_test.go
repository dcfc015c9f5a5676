package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/josh-kwaku/bank-backoffice/internal/repository"
	"github.com/josh-kwaku/bank-backoffice/internal/testutil"
)

func TestAccountRepository_CreateFindSaveDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewAccountRepository(repository.NewDB(db))
	ctx := context.Background()

	acct, err := domain.NewAccount(domain.AccountKindChecking, domain.MustMoney("1600.00"), []int64{7, 8})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, acct))
	require.NotZero(t, acct.ID)

	got, err := repo.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountKindChecking, got.Kind)
	assert.Equal(t, "1600.00", got.Balance.String())
	assert.Equal(t, []int64{7, 8}, got.OwnerIDs)
	assert.False(t, got.Referenced())

	got.Balance = got.Balance.Minus(domain.MustMoney("600.99"))
	require.NoError(t, repo.Save(ctx, got))
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "999.01", testutil.GetAccountBalance(t, db, acct.ID).String())

	require.NoError(t, repo.Delete(ctx, acct.ID))
	_, err = repo.FindByID(ctx, acct.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, acct.ID), domain.ErrNotFound)
}

func TestAccountRepository_SaveDetectsStaleVersion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewAccountRepository(repository.NewDB(db))
	ctx := context.Background()

	seeded := testutil.SeedAccount(t, db, domain.AccountKindSaving, "100")

	first, err := repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, seeded.ID)
	require.NoError(t, err)

	first.Balance = first.Balance.Plus(domain.MustMoney("10"))
	require.NoError(t, repo.Save(ctx, first))

	second.Balance = second.Balance.Plus(domain.MustMoney("20"))
	require.ErrorIs(t, repo.Save(ctx, second), domain.ErrVersionConflict)

	assert.Equal(t, "110.00", testutil.GetAccountBalance(t, db, seeded.ID).String())
}

func TestAccountRepository_FindByIDForUpdateHoldsRowLock(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewDB(db)
	repo := repository.NewAccountRepository(store)
	ctx := context.Background()

	seeded := testutil.SeedAccount(t, db, domain.AccountKindChecking, "100")

	locked := make(chan struct{})
	done := make(chan struct{})
	holderErr := make(chan error, 1)
	go func() {
		holderErr <- store.WithinTx(ctx, func(ctx context.Context) error {
			a, err := repo.FindByIDForUpdate(ctx, seeded.ID)
			if err != nil {
				close(locked)
				return err
			}
			close(locked)
			<-done
			a.Balance = a.Balance.Plus(domain.MustMoney("5"))
			return repo.Save(ctx, a)
		})
	}()
	<-locked

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	err := store.WithinTx(waitCtx, func(ctx context.Context) error {
		_, err := repo.FindByIDForUpdate(ctx, seeded.ID)
		return err
	})
	require.Error(t, err, "second locker must wait for the first transaction")

	close(done)
	require.NoError(t, <-holderErr)

	got, err := repo.FindByIDForUpdate(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "105.00", got.Balance.String())
	assert.Equal(t, int64(1), got.Version)

	_, err = repo.FindByIDForUpdate(ctx, seeded.ID+100)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccountRepository_ReferencedTransactions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewAccountRepository(repository.NewDB(db))
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, domain.AccountKindChecking, "1600")
	b := testutil.SeedAccount(t, db, domain.AccountKindChecking, "400")
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tx := testutil.SeedTransaction(t, db, testutil.Credit(a.ID, b.ID, "10", date))

	emitter, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{tx.ID}, emitter.IssuedTransactionIDs)
	assert.Empty(t, emitter.IncomingTransactionIDs)

	receiver, err := repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{tx.ID}, receiver.IncomingTransactionIDs)
	assert.True(t, receiver.Referenced())
}

func TestTransactionRepository_CreateAndFind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewTransactionRepository(repository.NewDB(db))
	ctx := context.Background()

	date := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tx := testutil.Withdraw(3, "50", date)
	tx.Metadata[domain.MetaEmitterBefore] = "100.00"

	require.NoError(t, repo.Create(ctx, tx))
	require.NotZero(t, tx.ID)

	got, err := repo.FindByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, tx.SameAs(got))
	assert.Equal(t, domain.StatusUnprocessed, got.Status)
	assert.Nil(t, got.ReceiverAccountID)
	assert.Equal(t, "1x50", got.Metadata[domain.MetaBill])
	assert.Equal(t, "100.00", got.Metadata[domain.MetaEmitterBefore])

	_, err = repo.FindByID(ctx, tx.ID+100)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionRepository_UpdateRefusesTerminalRows(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewTransactionRepository(repository.NewDB(db))
	ctx := context.Background()

	tx := testutil.SeedTransaction(t, db, testutil.Credit(1, 2, "10", time.Now().UTC()))

	tx.Status = domain.StatusCompleted
	tx.Metadata = domain.Metadata{domain.MetaEmitterAfter: "0.00"}
	require.NoError(t, repo.Update(ctx, tx))

	tx.Status = domain.StatusError
	require.ErrorIs(t, repo.Update(ctx, tx), domain.ErrStateConflict)
	assert.Equal(t, domain.StatusCompleted, testutil.GetTransactionStatus(t, db, tx.ID))

	missing := testutil.Credit(1, 2, "10", time.Now().UTC())
	missing.ID = 9999
	require.ErrorIs(t, repo.Update(ctx, missing), domain.ErrNotFound)
}

func TestTransactionRepository_MarkOutstandingClaimsOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewTransactionRepository(repository.NewDB(db))
	ctx := context.Background()

	tx := testutil.SeedTransaction(t, db, testutil.Credit(1, 2, "10", time.Now().UTC()))

	require.NoError(t, repo.MarkOutstanding(ctx, tx.ID))
	require.ErrorIs(t, repo.MarkOutstanding(ctx, tx.ID), domain.ErrStateConflict)
	assert.Equal(t, domain.StatusOutstanding, testutil.GetTransactionStatus(t, db, tx.ID))
}

func TestTransactionRepository_FindUnprocessedOrdersByDate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewTransactionRepository(repository.NewDB(db))
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	late := testutil.SeedTransaction(t, db, testutil.Credit(1, 2, "10", base.Add(2*time.Hour)))
	early := testutil.SeedTransaction(t, db, testutil.Credit(1, 2, "10", base))
	done := testutil.Credit(1, 2, "10", base.Add(-time.Hour))
	done.Status = domain.StatusCompleted
	testutil.SeedTransaction(t, db, done)

	got, err := repo.FindUnprocessed(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, late.ID, got[1].ID)
}

func TestDB_WithinTxRollsBack(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := repository.NewDB(db)
	accounts := repository.NewAccountRepository(store)
	txs := repository.NewTransactionRepository(store)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, domain.AccountKindChecking, "100")
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		a, err := accounts.FindByID(ctx, acct.ID)
		if err != nil {
			return err
		}
		a.Balance = domain.MustMoney("0")
		if err := accounts.Save(ctx, a); err != nil {
			return err
		}
		if err := txs.Create(ctx, testutil.Deposit(acct.ID, "10", time.Now().UTC())); err != nil {
			return err
		}
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, "100.00", testutil.GetAccountBalance(t, db, acct.ID).String())

	pending, err := txs.FindUnprocessed(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
