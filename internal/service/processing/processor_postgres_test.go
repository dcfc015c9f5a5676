package processing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/josh-kwaku/bank-backoffice/internal/fx"
	"github.com/josh-kwaku/bank-backoffice/internal/logging"
	"github.com/josh-kwaku/bank-backoffice/internal/repository"
	"github.com/josh-kwaku/bank-backoffice/internal/testutil"
	"github.com/josh-kwaku/bank-backoffice/internal/validation"
)

type slowConverter struct {
	*fx.Exchange
	delay time.Duration
}

func (c slowConverter) ToBaseCurrency(currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	time.Sleep(c.delay)
	return c.Exchange.ToBaseCurrency(currency, amount)
}

// Two processors stand in for two replicas sharing one database.
func TestProcess_ConcurrentRunsOnSharedAccountsBothComplete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, domain.AccountKindChecking, "1600")
	b := testutil.SeedAccount(t, db, domain.AccountKindChecking, "400")
	first := testutil.SeedTransaction(t, db, testutil.Credit(a.ID, b.ID, "100", day))
	// Opposite direction: row locks are taken in id order either way.
	second := testutil.SeedTransaction(t, db, testutil.Debit(b.ID, a.ID, "50", day.Add(time.Hour)))

	newReplica := func() *Processor {
		store := repository.NewDB(db)
		txs := repository.NewTransactionRepository(store)
		ex := fx.NewExchange()
		return NewProcessor(
			repository.NewAccountRepository(store),
			txs,
			store,
			NewStatusService(txs),
			slowConverter{Exchange: ex, delay: 50 * time.Millisecond},
			validation.New(ex),
			nil,
			logging.Discard(),
		)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, tx := range []*domain.Transaction{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = newReplica().Process(ctx, tx)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, domain.StatusCompleted, testutil.GetTransactionStatus(t, db, first.ID))
	assert.Equal(t, domain.StatusCompleted, testutil.GetTransactionStatus(t, db, second.ID))

	// Credit a->b 100, then debit b<-a 50 (a pays b 50 more).
	assert.Equal(t, "1450.00", testutil.GetAccountBalance(t, db, a.ID).String())
	assert.Equal(t, "550.00", testutil.GetAccountBalance(t, db, b.ID).String())
}

func TestProcess_SameStoredTransactionTwiceAppliesOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, domain.AccountKindChecking, "1600")
	b := testutil.SeedAccount(t, db, domain.AccountKindChecking, "400")
	tx := testutil.SeedTransaction(t, db, testutil.Credit(a.ID, b.ID, "100", day))

	store := repository.NewDB(db)
	txs := repository.NewTransactionRepository(store)
	ex := fx.NewExchange()
	proc := NewProcessor(repository.NewAccountRepository(store), txs, store, NewStatusService(txs),
		slowConverter{Exchange: ex, delay: 30 * time.Millisecond}, validation.New(ex), nil, logging.Discard())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = proc.Process(ctx, tx)
		}()
	}
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, domain.ErrStateConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, domain.StatusCompleted, testutil.GetTransactionStatus(t, db, tx.ID))
	assert.Equal(t, "1500.00", testutil.GetAccountBalance(t, db, a.ID).String())
	assert.Equal(t, "500.00", testutil.GetAccountBalance(t, db, b.ID).String())
}
