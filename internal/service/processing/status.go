package processing

import (
	"context"
	"fmt"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
)

type statusRepo interface {
	MarkOutstanding(ctx context.Context, id int64) error
	Update(ctx context.Context, tx *domain.Transaction) error
}

// StatusService owns transaction status transitions.
type StatusService struct {
	txs statusRepo
}

func NewStatusService(txs statusRepo) *StatusService {
	return &StatusService{txs: txs}
}

// SetAsOutstanding claims tx for processing. It fails with ErrStateConflict
// unless tx is UNPROCESSED both in memory and in storage.
func (s *StatusService) SetAsOutstanding(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	if tx.Status != domain.StatusUnprocessed {
		return tx, fmt.Errorf("SetAsOutstanding: transaction %d is %s: %w", tx.ID, tx.Status, domain.ErrStateConflict)
	}
	if err := s.txs.MarkOutstanding(ctx, tx.ID); err != nil {
		return tx, fmt.Errorf("SetAsOutstanding: %w", err)
	}
	tx.Status = domain.StatusOutstanding
	return tx, nil
}

// SetStatus changes the status in memory and merges metadata into the
// transaction's own. Nothing is persisted.
func (s *StatusService) SetStatus(tx *domain.Transaction, status domain.TransactionStatus, metadata domain.Metadata) *domain.Transaction {
	tx.Status = status
	if tx.Metadata == nil {
		tx.Metadata = domain.Metadata{}
	}
	for k, v := range metadata {
		tx.Metadata[k] = v
	}
	return tx
}

func (s *StatusService) SaveStatus(ctx context.Context, tx *domain.Transaction, status domain.TransactionStatus, metadata domain.Metadata) (*domain.Transaction, error) {
	s.SetStatus(tx, status, metadata)
	if err := s.txs.Update(ctx, tx); err != nil {
		return tx, fmt.Errorf("SaveStatus: %w", err)
	}
	return tx, nil
}
