package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/josh-kwaku/bank-backoffice/internal/fx"
	"github.com/josh-kwaku/bank-backoffice/internal/logging"
	"github.com/josh-kwaku/bank-backoffice/internal/testutil"
	"github.com/josh-kwaku/bank-backoffice/internal/validation"
)

type MockTransactionCreator struct {
	mock.Mock
}

func (m *MockTransactionCreator) Create(ctx context.Context, tx *domain.Transaction) error {
	args := m.Called(ctx, tx)
	if args.Error(0) == nil {
		tx.ID = 42
	}
	return args.Error(0)
}

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Add(tx *domain.Transaction) {
	m.Called(tx)
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

var submitDate = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestSubmitter(txs *MockTransactionCreator, queue *MockQueue, proc *MockProcessor) *Submitter {
	return NewSubmitter(validation.New(fx.NewExchange()), txs, queue, proc, logging.Discard())
}

func TestSubmit_DigitalIsStoredAndQueued(t *testing.T) {
	txs := new(MockTransactionCreator)
	queue := new(MockQueue)
	proc := new(MockProcessor)
	s := newTestSubmitter(txs, queue, proc)

	txs.On("Create", mock.Anything, mock.AnythingOfType("*domain.Transaction")).Return(nil)
	queue.On("Add", mock.MatchedBy(func(tx *domain.Transaction) bool {
		return tx.ID == 42 && tx.Status == domain.StatusUnprocessed
	})).Return()

	in := testutil.Credit(2, 1, "600.99", submitDate)
	got, err := s.Submit(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, domain.StatusUnprocessed, got.Status)
	assert.Zero(t, in.ID, "caller's transaction is not modified")

	txs.AssertExpectations(t)
	queue.AssertExpectations(t)
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestSubmit_InvalidDigitalIsNotStored(t *testing.T) {
	txs := new(MockTransactionCreator)
	queue := new(MockQueue)
	proc := new(MockProcessor)
	s := newTestSubmitter(txs, queue, proc)

	in := testutil.Debit(2, 1, "600.99", submitDate)
	in.ReceiverAccountID = nil
	in.Label = ""

	_, err := s.Submit(context.Background(), in)

	require.ErrorIs(t, err, domain.ErrValidation)
	var txErr *domain.TransactionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, "submission", txErr.Action)
	assert.Contains(t, err.Error(), "receiverAccountId must not be null")
	assert.Contains(t, err.Error(), "label must not be null")

	txs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	queue.AssertNotCalled(t, "Add", mock.Anything)
}

func TestSubmit_DigitalCreateFailure(t *testing.T) {
	txs := new(MockTransactionCreator)
	queue := new(MockQueue)
	proc := new(MockProcessor)
	s := newTestSubmitter(txs, queue, proc)

	dbErr := errors.New("connection refused")
	txs.On("Create", mock.Anything, mock.Anything).Return(dbErr)

	_, err := s.Submit(context.Background(), testutil.Credit(2, 1, "10", submitDate))

	require.ErrorIs(t, err, dbErr)
	queue.AssertNotCalled(t, "Add", mock.Anything)
}

func TestSubmit_CashRunsSynchronously(t *testing.T) {
	txs := new(MockTransactionCreator)
	queue := new(MockQueue)
	proc := new(MockProcessor)
	s := newTestSubmitter(txs, queue, proc)

	in := testutil.Deposit(1, "1000.00", submitDate)
	done := in.Clone()
	done.ID = 7
	done.Status = domain.StatusCompleted
	proc.On("Process", mock.Anything, in).Return(done, nil)

	got, err := s.Submit(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	proc.AssertExpectations(t)
	txs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	queue.AssertNotCalled(t, "Add", mock.Anything)
}

func TestSubmit_CashErrorIsReturned(t *testing.T) {
	txs := new(MockTransactionCreator)
	queue := new(MockQueue)
	proc := new(MockProcessor)
	s := newTestSubmitter(txs, queue, proc)

	in := testutil.Withdraw(1, "50", submitDate)
	refused := in.Clone()
	refused.Status = domain.StatusRefused
	procErr := &domain.TransactionError{
		Category: domain.CategoryWithdraw,
		Action:   "processing",
		Status:   domain.StatusRefused,
		Err:      domain.ErrBalanceOutOfRange,
	}
	proc.On("Process", mock.Anything, in).Return(refused, procErr)

	got, err := s.Submit(context.Background(), in)

	require.ErrorIs(t, err, domain.ErrBalanceOutOfRange)
	assert.Equal(t, domain.StatusRefused, got.Status)
}

func TestSubmit_NilTransaction(t *testing.T) {
	s := newTestSubmitter(new(MockTransactionCreator), new(MockQueue), new(MockProcessor))

	_, err := s.Submit(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrValidation)
}
