package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
)

type transactionFinder interface {
	FindByID(ctx context.Context, id int64) (*domain.Transaction, error)
}

type enqueuer interface {
	Add(tx *domain.Transaction)
}

// Feed turns submission announcements into Consumer work. It reloads the
// transaction so the consumer always gets the stored copy.
type Feed struct {
	txs    transactionFinder
	queue  enqueuer
	logger *slog.Logger
}

func NewFeed(txs transactionFinder, queue enqueuer, logger *slog.Logger) *Feed {
	return &Feed{txs: txs, queue: queue, logger: logger}
}

// Deliver queues transaction id when it is still UNPROCESSED.
func (f *Feed) Deliver(ctx context.Context, id int64) {
	tx, err := f.txs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			f.logger.Warn("announced transaction not found", "transaction_id", id)
			return
		}
		f.logger.Error("failed to load announced transaction", "transaction_id", id, "error", err)
		return
	}
	if tx.Status != domain.StatusUnprocessed {
		f.logger.Debug("announced transaction already handled", "transaction_id", id, "status", tx.Status)
		return
	}
	f.queue.Add(tx)
}
