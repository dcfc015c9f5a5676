// Package worker drives transactions through the processor in the
// background: the Consumer for freshly submitted work and the Scheduler for
// anything left behind in storage.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/josh-kwaku/bank-backoffice/internal/logging"
)

type processor interface {
	Process(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
}

type unprocessedSource interface {
	FindUnprocessed(ctx context.Context) ([]*domain.Transaction, error)
}

type DepthRecorder interface {
	SetConsumerDepth(queued, running int)
}

// Consumer processes submitted transactions in the background. Transactions
// are queued per account pair and leave each queue in submission order. Two
// transactions that touch a common account never run at the same time;
// unrelated ones run in parallel up to maxInFlight.
type Consumer struct {
	proc    processor
	source  unprocessedSource
	metrics DepthRecorder
	logger  *slog.Logger

	maxInFlight int
	slots       *semaphore.Weighted
	wake        chan struct{}
	wg          sync.WaitGroup

	locks *AccountLocks

	mu      sync.Mutex
	queues  map[domain.IdPair][]*domain.Transaction
	ring    []domain.IdPair
	next    int
	ids     map[int64]struct{}
	queued  int
	running int
	active  bool
}

func NewConsumer(proc processor, source unprocessedSource, maxInFlight int, metrics DepthRecorder, logger *slog.Logger) *Consumer {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Consumer{
		proc:        proc,
		source:      source,
		metrics:     metrics,
		logger:      logger,
		maxInFlight: maxInFlight,
		slots:       semaphore.NewWeighted(int64(maxInFlight)),
		wake:        make(chan struct{}, 1),
		queues:      make(map[domain.IdPair][]*domain.Transaction),
		locks:       NewAccountLocks(),
		ids:         make(map[int64]struct{}),
		active:      true,
	}
}

// Locks returns the account exclusion the consumer dispatches under. Any
// other worker that processes transactions must hold the same locks.
func (c *Consumer) Locks() *AccountLocks {
	return c.locks
}

// Add appends tx to its pair's queue. It never blocks on processing and
// still queues while the consumer is inactive. A stored transaction that is
// already queued is not queued twice.
func (c *Consumer) Add(tx *domain.Transaction) {
	if tx == nil {
		return
	}

	c.mu.Lock()
	if tx.ID != 0 {
		if _, dup := c.ids[tx.ID]; dup {
			c.mu.Unlock()
			return
		}
		c.ids[tx.ID] = struct{}{}
	}
	pair := tx.Pair()
	if _, ok := c.queues[pair]; !ok {
		c.ring = append(c.ring, pair)
	}
	c.queues[pair] = append(c.queues[pair], tx)
	c.queued++
	c.reportLocked()
	c.mu.Unlock()

	c.signal()
}

// Restore queues every stored UNPROCESSED transaction. Call it before Run so
// work accepted before a restart is picked up again.
func (c *Consumer) Restore(ctx context.Context) (int, error) {
	txs, err := c.source.FindUnprocessed(ctx)
	if err != nil {
		return 0, fmt.Errorf("Restore: %w", err)
	}
	for _, tx := range txs {
		c.Add(tx)
	}
	c.logger.Info("consumer restored backlog", "count", len(txs))
	return len(txs), nil
}

// SetActive switches processing on or off. Transactions already running are
// not interrupted.
func (c *Consumer) SetActive(active bool) {
	c.mu.Lock()
	c.active = active
	c.mu.Unlock()

	if active {
		c.signal()
	}
}

func (c *Consumer) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Pending reports how many transactions are queued and how many are running.
func (c *Consumer) Pending() (queued, running int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queued, c.running
}

// Run dispatches work until ctx is done, then waits for running pipelines to
// finish. Pipelines are not cancelled by ctx, and nothing new is started
// once ctx is done.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("consumer started", "max_in_flight", c.maxInFlight)
	defer c.wg.Wait()

	for {
		if ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return
		}

		// Taken before dispatch so an unlock by another worker during
		// dispatch still wakes the loop.
		changed := c.locks.Changed()
		c.dispatch(ctx)

		select {
		case <-ctx.Done():
		case <-c.wake:
		case <-changed:
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context) {
	for ctx.Err() == nil {
		if !c.slots.TryAcquire(1) {
			return
		}

		tx, accounts, ok := c.claim()
		if !ok {
			c.slots.Release(1)
			return
		}

		c.wg.Add(1)
		go c.runOne(ctx, tx, accounts)
	}
}

// claim pops the head of the next ready queue, round-robin. A queue is ready
// when none of the accounts its pair touches is locked.
func (c *Consumer) claim() (*domain.Transaction, []int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || len(c.ring) == 0 {
		return nil, nil, false
	}

	for n := 0; n < len(c.ring); n++ {
		i := (c.next + n) % len(c.ring)
		pair := c.ring[i]
		q := c.queues[pair]

		accounts := q[0].Accounts()
		if !c.locks.TryLock(accounts) {
			continue
		}

		tx := q[0]
		if len(q) == 1 {
			delete(c.queues, pair)
			c.ring = append(c.ring[:i], c.ring[i+1:]...)
			c.next = i
		} else {
			c.queues[pair] = q[1:]
			c.next = i + 1
		}
		if len(c.ring) > 0 {
			c.next %= len(c.ring)
		} else {
			c.next = 0
		}

		delete(c.ids, tx.ID)
		c.queued--
		c.running++
		c.reportLocked()
		return tx, accounts, true
	}
	return nil, nil, false
}

func (c *Consumer) runOne(ctx context.Context, tx *domain.Transaction, accounts []int64) {
	defer c.wg.Done()
	defer c.release(accounts)

	log := c.logger.With(
		"transaction_id", tx.ID,
		"pair", tx.Pair().String(),
		"dispatch_id", uuid.NewString(),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("transaction processing panicked", "panic", r)
		}
	}()

	runCtx := logging.WithLogger(context.WithoutCancel(ctx), log)
	if _, err := c.proc.Process(runCtx, tx); err != nil {
		log.Error("transaction processing failed", "error", err)
		return
	}
	log.Debug("transaction processed")
}

func (c *Consumer) release(accounts []int64) {
	c.locks.Unlock(accounts)

	c.mu.Lock()
	c.running--
	c.reportLocked()
	c.mu.Unlock()

	c.slots.Release(1)
	c.signal()
}

func (c *Consumer) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Consumer) reportLocked() {
	if c.metrics != nil {
		c.metrics.SetConsumerDepth(c.queued, c.running)
	}
}
