// Package processing runs a single transaction through validation, balance
// movement and outcome persistence.
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/josh-kwaku/bank-backoffice/internal/validation"
)

const action = "processing"

type accountRepo interface {
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.Account, error)
	Save(ctx context.Context, a *domain.Account) error
}

type transactionRepo interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	Update(ctx context.Context, tx *domain.Transaction) error
}

type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type converter interface {
	ToBaseCurrency(currency string, amount decimal.Decimal) (decimal.Decimal, error)
}

type txValidator interface {
	Validate(tx *domain.Transaction, stage validation.Stage, group domain.CategoryGroup) error
	Violations(tx *domain.Transaction, stage validation.Stage, group domain.CategoryGroup) []string
}

type Recorder interface {
	ObserveProcessed(category, status string, d time.Duration)
}

type Processor struct {
	accounts accountRepo
	txs      transactionRepo
	db       transactor
	status   *StatusService
	exchange converter
	validate txValidator
	metrics  Recorder
	logger   *slog.Logger
}

func NewProcessor(
	accounts accountRepo,
	txs transactionRepo,
	db transactor,
	status *StatusService,
	exchange converter,
	validate txValidator,
	metrics Recorder,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		accounts: accounts,
		txs:      txs,
		db:       db,
		status:   status,
		exchange: exchange,
		validate: validate,
		metrics:  metrics,
		logger:   logger,
	}
}

// Process runs tx through its category pipeline and persists the outcome.
// The returned transaction carries the final status and metadata. Any
// failure is returned as a *domain.TransactionError after the outcome has
// been stored, except for state conflicts, which store nothing.
func (p *Processor) Process(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("Process: %w", &domain.ValidationError{Violations: []string{"transaction must not be null"}})
	}

	tx = tx.Clone()
	if tx.Status.IsTerminal() {
		err := fmt.Errorf("Process: transaction %d is already %s: %w", tx.ID, tx.Status, domain.ErrStateConflict)
		return tx, p.txError(tx, err)
	}

	start := time.Now()
	log := p.logger.With("category", tx.Category)

	isNew := tx.ID == 0
	origMeta := maps.Clone(tx.Metadata)

	// The claim, the account row locks and the balance writes share one
	// database transaction, so a failed step leaves storage untouched.
	var stepErr error
	commitErr := p.db.WithinTx(ctx, func(ctx context.Context) error {
		var touched []*domain.Account
		var meta domain.Metadata
		touched, meta, stepErr = p.run(ctx, tx, isNew)
		if stepErr != nil {
			return stepErr
		}
		return p.persist(ctx, tx, isNew, touched, domain.StatusCompleted, meta)
	})
	if stepErr == nil && commitErr != nil {
		// The commit failed and took the balance changes with it, so
		// record the failure instead of the success.
		tx.Metadata = origMeta
		if isNew {
			tx.ID = 0
		}
		stepErr = commitErr
	}

	if stepErr != nil {
		if err := p.recordFailure(ctx, tx, isNew, stepErr); err != nil {
			log.Error("outcome not persisted", "transaction_id", tx.ID, "status", tx.Status, "error", err)
			stepErr = errors.Join(stepErr, err)
		}
	}

	if p.metrics != nil {
		p.metrics.ObserveProcessed(string(tx.Category), string(tx.Status), time.Since(start))
	}

	if stepErr != nil {
		log.Warn("transaction not completed",
			"transaction_id", tx.ID,
			"status", tx.Status,
			"cause", domain.Cause(stepErr),
			"error", stepErr,
		)
		return tx, p.txError(tx, stepErr)
	}

	log.Info("transaction completed",
		"transaction_id", tx.ID,
		"emitter_after", tx.Metadata[domain.MetaEmitterAfter],
		"receiver_after", tx.Metadata[domain.MetaReceiverAfter],
	)
	return tx, nil
}

func (p *Processor) run(ctx context.Context, tx *domain.Transaction, isNew bool) ([]*domain.Account, domain.Metadata, error) {
	stage := validation.StageExisting
	if isNew {
		stage = validation.StageNew
	}

	s, ok := strategyFor(tx.Category)
	if !ok {
		return nil, nil, p.unknownCategory(tx, stage)
	}

	if err := p.validate.Validate(tx, stage, s.group); err != nil {
		return nil, nil, err
	}

	if s.group == domain.Digital && *tx.ReceiverAccountID == *tx.EmitterAccountID {
		return nil, nil, &domain.ValidationError{Violations: []string{"receiverAccountId must differ from emitterAccountId"}}
	}

	locked, err := p.lockAccounts(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	emitter := locked[*tx.EmitterAccountID]
	var receiver *domain.Account
	if s.group == domain.Digital {
		receiver = locked[*tx.ReceiverAccountID]
	}

	// A transaction that was never stored cannot be seen by another worker.
	if s.claim && !isNew {
		if _, err := p.status.SetAsOutstanding(ctx, tx); err != nil {
			return nil, nil, err
		}
	}

	converted, err := p.exchange.ToBaseCurrency(tx.Currency, *tx.Amount)
	if err != nil {
		return nil, nil, err
	}
	if !converted.IsPositive() {
		return nil, nil, fmt.Errorf("transaction %d: converted amount %s: %w", tx.ID, converted, domain.ErrNonPositiveAmount)
	}
	amount := domain.NewMoney(converted)

	meta := domain.Metadata{domain.MetaEmitterBefore: emitter.Balance.String()}
	touched := []*domain.Account{emitter}
	if receiver != nil {
		meta[domain.MetaReceiverBefore] = receiver.Balance.String()
		touched = append(touched, receiver)
	}

	s.apply(emitter, receiver, amount)

	for _, a := range touched {
		if err := a.Validate(); err != nil {
			return nil, nil, err
		}
	}

	meta[domain.MetaEmitterAfter] = emitter.Balance.String()
	if receiver != nil {
		meta[domain.MetaReceiverAfter] = receiver.Balance.String()
	}
	return touched, meta, nil
}

// lockAccounts loads the accounts tx touches with their rows locked until
// the surrounding database transaction ends. Rows are locked in id order so
// two transfers in opposite directions cannot deadlock.
func (p *Processor) lockAccounts(ctx context.Context, tx *domain.Transaction) (map[int64]*domain.Account, error) {
	ids := tx.Accounts()
	slices.Sort(ids)

	locked := make(map[int64]*domain.Account, len(ids))
	for _, id := range ids {
		a, err := p.accounts.FindByIDForUpdate(ctx, id)
		if err != nil {
			role := "receiver"
			if id == *tx.EmitterAccountID {
				role = "emitter"
			}
			return nil, fmt.Errorf("%s: %w", role, err)
		}
		locked[id] = a
	}
	return locked, nil
}

func (p *Processor) persist(ctx context.Context, tx *domain.Transaction, isNew bool, touched []*domain.Account, status domain.TransactionStatus, meta domain.Metadata) error {
	p.status.SetStatus(tx, status, meta)

	for _, a := range touched {
		if err := p.accounts.Save(ctx, a); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
	}
	if isNew {
		if err := p.txs.Create(ctx, tx); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
		return nil
	}
	if err := p.txs.Update(ctx, tx); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// recordFailure stores the REFUSED or ERROR outcome of a failed run. State
// conflicts store nothing: another run owns the transaction.
func (p *Processor) recordFailure(ctx context.Context, tx *domain.Transaction, isNew bool, stepErr error) error {
	var status domain.TransactionStatus
	switch {
	case errors.Is(stepErr, domain.ErrStateConflict):
		return nil
	case domain.IsRefusal(stepErr):
		status = domain.StatusRefused
	default:
		status = domain.StatusError
	}

	meta := domain.Metadata{domain.MetaError: stepErr.Error()}
	return p.db.WithinTx(ctx, func(ctx context.Context) error {
		return p.persist(ctx, tx, isNew, nil, status, meta)
	})
}

func (p *Processor) unknownCategory(tx *domain.Transaction, stage validation.Stage) error {
	violations := p.validate.Violations(tx, stage, "")
	if tx.Category != "" {
		violations = append(violations, "type must be one of [credit debit deposit withdraw]")
	}
	return &domain.ValidationError{Violations: violations}
}

func (p *Processor) txError(tx *domain.Transaction, err error) *domain.TransactionError {
	return &domain.TransactionError{
		Category:      tx.Category,
		Action:        action,
		Status:        tx.Status,
		TransactionID: tx.ID,
		Err:           err,
	}
}
