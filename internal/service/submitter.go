// Package service is the entry point the outer layers use to hand
// transactions to the processing core and to administer accounts.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/josh-kwaku/bank-backoffice/internal/validation"
)

const submitAction = "submission"

type newTransactionValidator interface {
	Validate(tx *domain.Transaction, stage validation.Stage, group domain.CategoryGroup) error
}

type transactionCreator interface {
	Create(ctx context.Context, tx *domain.Transaction) error
}

type enqueuer interface {
	Add(tx *domain.Transaction)
}

type cashProcessor interface {
	Process(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
}

type Submitter struct {
	validate newTransactionValidator
	txs      transactionCreator
	queue    enqueuer
	proc     cashProcessor
	logger   *slog.Logger
}

func NewSubmitter(validate newTransactionValidator, txs transactionCreator, queue enqueuer, proc cashProcessor, logger *slog.Logger) *Submitter {
	return &Submitter{
		validate: validate,
		txs:      txs,
		queue:    queue,
		proc:     proc,
		logger:   logger,
	}
}

// Submit accepts a new transaction. Credits and debits are stored as
// UNPROCESSED and handed to the consumer, so the returned copy is not yet
// processed. Deposits, withdrawals and anything with an unknown category go
// through the processor synchronously and come back in a terminal status.
func (s *Submitter) Submit(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("Submit: %w", &domain.ValidationError{Violations: []string{"transaction must not be null"}})
	}
	if tx.Category.Group() != domain.Digital {
		return s.proc.Process(ctx, tx)
	}

	tx = tx.Clone()
	if err := s.validate.Validate(tx, validation.StageNew, domain.Digital); err != nil {
		return tx, &domain.TransactionError{
			Category: tx.Category,
			Action:   submitAction,
			Status:   tx.Status,
			Err:      err,
		}
	}

	tx.Status = domain.StatusUnprocessed
	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("Submit: %w", err)
	}

	s.queue.Add(tx.Clone())

	s.logger.Info("transaction submitted",
		"transaction_id", tx.ID,
		"category", tx.Category,
		"pair", tx.Pair().String(),
	)
	return tx, nil
}
